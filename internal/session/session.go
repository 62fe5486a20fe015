// Package session drives a stepped replay of a snippet.
//
// A Session instruments the source, runs it in a sandbox through a bridge
// and rebuilds the runtime model the sandbox reports: scope frames, the
// observables living in them, parameter aliases and host mirrors of graph
// structures. Every change is published on a notification bus.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/stepviz/internal/bridge"
	"github.com/dshills/stepviz/internal/graph"
	"github.com/dshills/stepviz/internal/instrument"
	"github.com/dshills/stepviz/internal/notify"
	"github.com/dshills/stepviz/internal/observable"
	"github.com/dshills/stepviz/internal/protocol"
	"github.com/dshills/stepviz/internal/sandbox"
	"github.com/dshills/stepviz/internal/scope"
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBus publishes on an existing bus instead of a private one.
func WithBus(b *notify.Bus) Option {
	return func(s *Session) {
		if b != nil {
			s.bus = b
		}
	}
}

// structure pairs a host mirror with the observable bound to it, if any.
type structure struct {
	mirror *graph.Mirror
	obs    *observable.Observable
}

// Session is a debug session over one sandbox. Its methods are safe for
// concurrent use. Listeners are called from the event goroutine and must
// not call SetSourceCode, StartReplay or Close.
type Session struct {
	logger *zap.Logger
	bus    *notify.Bus
	inst   *instrument.Instrumenter
	bridge *bridge.Bridge

	stateMu sync.RWMutex
	state   State
	err     error
	done    chan struct{}
	started bool
	closed  bool

	// The runtime model, owned by the event goroutine between replays.
	mu         sync.Mutex
	result     instrument.Result
	resolver   *scope.Resolver[*observable.Observable]
	aliases    *scope.Aliases
	structures map[string]*structure
}

// New creates an idle session. The sandbox starts with the first replay.
func New(opts ...Option) *Session {
	s := &Session{
		logger:     zap.NewNop(),
		resolver:   scope.NewResolver[*observable.Observable](),
		aliases:    scope.NewAliases(),
		structures: make(map[string]*structure),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bus == nil {
		s.bus = notify.NewBus(notify.WithLogger(s.logger.Named("bus")))
	}
	s.inst = instrument.New(instrument.WithLogger(s.logger.Named("instrument")))
	s.bridge = bridge.New(s, bridge.WithLogger(s.logger))
	return s
}

// Bus returns the notification bus.
func (s *Session) Bus() *notify.Bus {
	return s.bus
}

// RegisterNotificationObserver adds a listener to the bus.
func (s *Session) RegisterNotificationObserver(o any) (int, error) {
	return s.bus.Register(o)
}

// Result returns the last instrumentation result.
func (s *Session) Result() instrument.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// State returns the current state.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.stateMu.Lock()
	old := s.state
	s.state = state
	s.stateMu.Unlock()
	if old != state {
		s.logger.Debug("state changed", zap.Stringer("from", old), zap.Stringer("to", state))
	}
}

// IsNotStarted reports whether no replay has started since the code was
// set.
func (s *Session) IsNotStarted() bool {
	return s.State() == StateIdle
}

// IsWaiting reports whether the snippet waits for an interaction response.
func (s *Session) IsWaiting() bool {
	return s.State() == StateWaiting
}

// IsReplayFinished reports whether the last replay ended.
func (s *Session) IsReplayFinished() bool {
	return s.State() == StateReplayEnded
}

// SetWaiting forces the waiting flag. Front ends use it to leave the
// waiting state after answering an interaction out of band.
func (s *Session) SetWaiting(waiting bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if !s.state.Running() {
		return
	}
	if waiting {
		s.state = StateWaiting
	} else {
		s.state = StateExecuting
	}
}

// Err returns the protocol violation that ended the last replay, if any.
func (s *Session) Err() error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.err
}

// SetSourceCode stops any running replay, instruments text and reports
// whether it is runnable. Compilation status is published either way.
func (s *Session) SetSourceCode(text string) bool {
	if s.State().Running() {
		s.StopExecution()
		s.awaitFinish()
	}

	res, err := s.inst.SetCode(text)

	s.mu.Lock()
	s.result = res
	s.mu.Unlock()

	s.stateMu.Lock()
	s.state = StateIdle
	s.err = nil
	s.stateMu.Unlock()

	s.bus.OnCompilationError(false, "")
	s.bus.OnExceptionMessage(false, "")
	if err != nil {
		s.logger.Debug("instrumentation failed", zap.Error(err))
		s.bus.OnCompilationError(true, res.Message)
		return false
	}
	return true
}

// awaitFinish blocks until the current run reports its end.
func (s *Session) awaitFinish() {
	s.stateMu.RLock()
	done := s.done
	s.stateMu.RUnlock()
	if done != nil {
		<-done
	}
}

// StartReplay resets the runtime model and starts a run of the current
// code. The sandbox is parked on the first line once its mark arrives.
func (s *Session) StartReplay(ctx context.Context) error {
	s.mu.Lock()
	res := s.result
	s.mu.Unlock()
	if !res.OK {
		return ErrNoCode
	}
	if err := s.ensureStarted(ctx); err != nil {
		return err
	}
	if err := s.bridge.SetSourceCode(ctx, res.Code); err != nil {
		return err
	}

	s.mu.Lock()
	s.resolver.Reset()
	s.aliases.Reset()
	s.structures = make(map[string]*structure)
	s.mu.Unlock()

	done := make(chan struct{})
	s.stateMu.Lock()
	s.state = StateExecuting
	s.err = nil
	s.done = done
	s.stateMu.Unlock()

	s.bus.OnExceptionMessage(false, "")
	run, err := s.bridge.Execute(ctx)
	if err != nil {
		s.logger.Warn("replay failed to start", zap.Uint64("run", run), zap.Error(err))
		s.finish(done, StateIdle)
		s.bus.OnExceptionMessage(true, faultMessage(err))
		s.bus.OnExecutionFinished()
		return err
	}
	s.logger.Info("replay started", zap.Uint64("run", run))
	return nil
}

func (s *Session) ensureStarted(ctx context.Context) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}
	if err := s.bridge.Init(ctx); err != nil {
		return fmt.Errorf("start sandbox: %w", err)
	}
	s.started = true
	return nil
}

// finish moves to state and releases waiters of done.
func (s *Session) finish(done chan struct{}, state State) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
	if s.done == done && done != nil {
		close(done)
		s.done = nil
	}
}

// AdvanceOneCodeLine lets the snippet run to its next line mark. It
// reports false while the current mark is still being processed, while an
// interaction is pending, or when nothing runs.
func (s *Session) AdvanceOneCodeLine() bool {
	if s.State() != StateExecuting {
		return false
	}
	return s.bridge.Advance()
}

// StopExecution halts the running replay. The end is reported through
// OnExecutionFinished.
func (s *Session) StopExecution() {
	if !s.State().Running() {
		return
	}
	s.logger.Debug("stopping replay")
	s.bridge.Stop()
}

// OnUserInteractionResponse answers the pending interaction request.
func (s *Session) OnUserInteractionResponse(kind protocol.InteractionKind, value any) error {
	if !s.IsWaiting() {
		return ErrNotWaiting
	}
	if err := s.bridge.Respond(kind, value); err != nil {
		if errors.Is(err, bridge.ErrNotAwaiting) {
			return ErrNotWaiting
		}
		return err
	}
	s.SetWaiting(false)
	return nil
}

// Wait blocks until the current replay ends and returns Err.
func (s *Session) Wait(ctx context.Context) error {
	s.stateMu.RLock()
	done := s.done
	s.stateMu.RUnlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.Err()
}

// Close stops the sandbox. The session cannot be used afterwards.
func (s *Session) Close() error {
	s.stateMu.Lock()
	if s.closed {
		s.stateMu.Unlock()
		return nil
	}
	s.closed = true
	s.stateMu.Unlock()

	err := s.bridge.Close()
	s.stateMu.Lock()
	s.state = StateIdle
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.stateMu.Unlock()
	return err
}

// fail records a protocol violation of the current run.
func (s *Session) fail(err error) {
	s.stateMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.stateMu.Unlock()
	s.logger.Error("protocol violation", zap.Error(err))
	s.bus.OnExceptionMessage(true, InternalErrorPrefix+err.Error())
}

// faultMessage strips the sandbox wrapping from a run failure.
func faultMessage(err error) string {
	var fault *sandbox.RuntimeFault
	if errors.As(err, &fault) {
		return fault.Message
	}
	return err.Error()
}
