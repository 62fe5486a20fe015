// Package bridge drives a sandbox agent from the host side.
//
// The bridge owns the control block shared with the agent, issues requests
// with one-shot replies and pumps the agent's events, in order, to a single
// EventHandler. A line mark only counts as parked once the handler has
// returned, so every effect of a line is processed before the snippet may
// move on.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/stepviz/internal/protocol"
	"github.com/dshills/stepviz/internal/sandbox"
)

// EventHandler consumes sandbox events. It is called from the event pump
// goroutine, one event at a time. A returned error stops the run.
type EventHandler interface {
	HandleEvent(msg protocol.Message) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(msg protocol.Message) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(msg protocol.Message) error {
	return f(msg)
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger. The agent logs under the "sandbox" name.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithEventBuffer sets the capacity of the event channel.
func WithEventBuffer(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// Bridge is the host end of a sandbox. Its methods are safe for concurrent
// use, but Init, SetSourceCode and Execute must not be called from the
// event handler.
type Bridge struct {
	logger  *zap.Logger
	handler EventHandler
	buffer  int

	cb       *protocol.ControlBlock
	requests chan *protocol.Request
	events   chan protocol.Message

	run atomic.Uint64

	mu       sync.Mutex
	ready    bool
	parked   bool
	awaiting bool
	runDone  chan struct{}

	cancel    context.CancelFunc
	group     *errgroup.Group
	closeOnce sync.Once
	closeErr  error
}

// New creates a bridge delivering events to handler.
func New(handler EventHandler, opts ...Option) *Bridge {
	b := &Bridge{
		logger:  zap.NewNop(),
		handler: handler,
		buffer:  256,
		cb:      protocol.NewControlBlock(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.requests = make(chan *protocol.Request)
	b.events = make(chan protocol.Message, b.buffer)
	return b
}

// ControlBlock returns the block shared with the agent.
func (b *Bridge) ControlBlock() *protocol.ControlBlock {
	return b.cb
}

// Init starts the agent and the event pump and performs the shared memory
// handshake. The sandbox is left stopped until Execute.
func (b *Bridge) Init(ctx context.Context) error {
	b.mu.Lock()
	if b.ready || b.group != nil {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)
	b.cancel, b.group = cancel, g
	b.mu.Unlock()

	agent := sandbox.NewAgent(b.requests, b.events, sandbox.WithLogger(b.logger.Named("sandbox")))
	g.Go(func() error {
		err := agent.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		b.pump(gctx)
		return nil
	})

	if _, err := b.call(ctx, protocol.CmdSharedMem, b.cb); err != nil {
		_ = b.Close()
		return fmt.Errorf("bridge handshake: %w", err)
	}

	b.cb.StoreSignal(protocol.SlotAux, protocol.SignalStop)
	b.cb.StoreSignal(protocol.SlotMain, protocol.SignalProceed)

	b.mu.Lock()
	b.ready = true
	b.mu.Unlock()

	b.logger.Debug("bridge ready")
	return nil
}

// call sends a request and waits for its reply.
func (b *Bridge) call(ctx context.Context, cmd protocol.Command, params ...any) (protocol.Reply, error) {
	req := protocol.NewRequest(cmd, params...)
	select {
	case b.requests <- req:
	case <-ctx.Done():
		return protocol.Reply{}, ctx.Err()
	}
	select {
	case r := <-req.Reply:
		return r, r.Err
	case <-ctx.Done():
		return protocol.Reply{}, ctx.Err()
	}
}

func (b *Bridge) checkReady() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return ErrNotInitialized
	}
	return nil
}

// SetSourceCode stops any active run and hands instrumented code to the
// agent.
func (b *Bridge) SetSourceCode(ctx context.Context, code string) error {
	if err := b.checkReady(); err != nil {
		return err
	}
	if err := b.settle(ctx); err != nil {
		return err
	}
	if _, err := b.call(ctx, protocol.CmdSetSourceCode, code); err != nil {
		return fmt.Errorf("set source code: %w", err)
	}
	return nil
}

// Execute starts a run of the current code and returns its id. Events of
// earlier runs still in flight are dropped. A compile failure is returned
// and no run takes place.
func (b *Bridge) Execute(ctx context.Context) (uint64, error) {
	if err := b.checkReady(); err != nil {
		return 0, err
	}
	if err := b.settle(ctx); err != nil {
		return 0, err
	}

	done := make(chan struct{})
	b.mu.Lock()
	run := b.run.Add(1)
	b.parked, b.awaiting = false, false
	b.runDone = done
	b.mu.Unlock()

	b.cb.StoreSignal(protocol.SlotAux, protocol.SignalNoOp)
	b.cb.StoreSignal(protocol.SlotMain, protocol.SignalProceed)

	if _, err := b.call(ctx, protocol.CmdExecute, run); err != nil {
		b.finish(done)
		return run, fmt.Errorf("execute: %w", err)
	}
	b.logger.Debug("run started", zap.Uint64("run", run))
	return run, nil
}

// settle stops an active run and waits for it to finish.
func (b *Bridge) settle(ctx context.Context) error {
	b.mu.Lock()
	done := b.runDone
	b.mu.Unlock()
	if done == nil {
		return nil
	}
	b.Stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) finish(done chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.runDone == done && done != nil {
		close(done)
		b.runDone = nil
	}
	b.parked, b.awaiting = false, false
}

// Run returns the id of the current or last run.
func (b *Bridge) Run() uint64 {
	return b.run.Load()
}

// Active reports whether a run has not finished yet.
func (b *Bridge) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runDone != nil
}

// Parked reports whether the sandbox waits on a processed line mark.
func (b *Bridge) Parked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parked
}

// Awaiting reports whether the sandbox waits for an interaction response.
func (b *Bridge) Awaiting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.awaiting
}

// Advance releases the sandbox from a processed line mark. It is a no-op
// while a mark is still being handled or an interaction is pending, and
// reports whether the sandbox was released.
func (b *Bridge) Advance() bool {
	b.mu.Lock()
	if !b.parked || b.awaiting {
		b.mu.Unlock()
		return false
	}
	b.parked = false
	b.mu.Unlock()

	b.cb.StoreSignal(protocol.SlotMain, protocol.SignalProceed)
	b.cb.Notify(protocol.SlotMain)
	return true
}

// Stop asks the sandbox to halt at its next line mark, waking it if it is
// parked.
func (b *Bridge) Stop() {
	b.mu.Lock()
	b.parked, b.awaiting = false, false
	b.mu.Unlock()

	b.cb.StoreSignal(protocol.SlotAux, protocol.SignalStop)
	b.cb.StoreSignal(protocol.SlotMain, protocol.SignalProceed)
	b.cb.Notify(protocol.SlotMain)
}

// Respond answers a pending interaction request.
func (b *Bridge) Respond(kind protocol.InteractionKind, value any) error {
	b.mu.Lock()
	if !b.awaiting {
		b.mu.Unlock()
		return ErrNotAwaiting
	}
	b.awaiting = false
	b.mu.Unlock()

	b.cb.WriteResponse(kind, value)
	b.cb.StoreSignal(protocol.SlotAux, protocol.SignalUserInteractionResponse)
	b.cb.StoreSignal(protocol.SlotMain, protocol.SignalProceed)
	b.cb.Notify(protocol.SlotMain)
	return nil
}

// pump delivers events until ctx ends.
func (b *Bridge) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.events:
			b.dispatch(msg)
		}
	}
}

func (b *Bridge) dispatch(msg protocol.Message) {
	if msg.Run != b.run.Load() {
		b.logger.Debug("dropping stale event", zap.Stringer("event", msg))
		return
	}

	failed := false
	if err := b.handler.HandleEvent(msg); err != nil {
		b.logger.Error("event handler failed", zap.Stringer("event", msg), zap.Error(err))
		b.Stop()
		failed = true
	}

	b.mu.Lock()
	stale := b.runDone == nil || failed
	switch msg.Cmd {
	case protocol.CmdMarkcl, protocol.CmdForceMarkcl:
		b.parked = !stale
	case protocol.CmdUserInteractionRequest:
		b.awaiting = !stale
	}
	done := b.runDone
	b.mu.Unlock()

	if msg.Cmd == protocol.CmdExecutionFinished {
		b.finish(done)
	}
}

// Close stops the agent and the pump and waits for both.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		cancel, g := b.cancel, b.group
		b.ready = false
		b.mu.Unlock()
		if cancel == nil {
			return
		}
		cancel()
		b.closeErr = g.Wait()
		b.logger.Debug("bridge closed")
	})
	return b.closeErr
}
