package session

import (
	"sync"
	"time"

	"github.com/dshills/stepviz/internal/protocol"
)

// DefaultStepDelay is the autoplay delay between two lines.
const DefaultStepDelay = 500 * time.Millisecond

// retryDelay is how soon a step is retried while the current mark is still
// being processed.
const retryDelay = 10 * time.Millisecond

// Player advances a session on a timer. It pauses itself on compilation
// errors, exceptions, interaction requests and the end of a replay.
type Player struct {
	session *Session
	delay   time.Duration

	mu      sync.Mutex
	playing bool
	timer   *time.Timer
}

// NewPlayer creates a paused player and registers it on the session bus.
func NewPlayer(s *Session, delay time.Duration) (*Player, error) {
	if delay <= 0 {
		delay = DefaultStepDelay
	}
	p := &Player{session: s, delay: delay}
	if _, err := s.RegisterNotificationObserver(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Play starts advancing.
func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
	p.schedule(p.delay)
}

// Pause stops advancing.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// Playing reports whether the player advances.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Close pauses the player and removes it from the bus.
func (p *Player) Close() {
	p.Pause()
	p.session.Bus().Unregister(p)
}

// schedule must be called with p.mu held.
func (p *Player) schedule(d time.Duration) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(d, p.tick)
}

func (p *Player) tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return
	}
	p.timer = nil
	if p.session.AdvanceOneCodeLine() {
		return
	}
	if p.session.State() == StateExecuting {
		p.schedule(retryDelay)
	}
}

// Markcl schedules the next step.
func (p *Player) Markcl(int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		p.schedule(p.delay)
	}
}

// OnTraceMessage is a no-op.
func (p *Player) OnTraceMessage(string) {}

// OnCompilationError pauses on errors.
func (p *Player) OnCompilationError(status bool, _ string) {
	if status {
		p.Pause()
	}
}

// OnExceptionMessage pauses on exceptions.
func (p *Player) OnExceptionMessage(status bool, _ string) {
	if status {
		p.Pause()
	}
}

// OnUserInteractionRequest pauses until the user answers.
func (p *Player) OnUserInteractionRequest(protocol.InteractionKind, string, string) {
	p.Pause()
}

// OnExecutionFinished pauses.
func (p *Player) OnExecutionFinished() {
	p.Pause()
}
