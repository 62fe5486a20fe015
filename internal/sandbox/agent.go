// Package sandbox runs instrumented snippets on a private goja runtime.
//
// An Agent owns the runtime and is driven by a single goroutine through
// Run. Host requests arrive on a channel with a one-shot reply; everything
// the snippet reports is pushed on the events channel in program order.
// While a snippet is parked on a line mark the agent blocks on the shared
// control block, never on a channel.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/dshills/stepviz/internal/graph"
	"github.com/dshills/stepviz/internal/protocol"
)

// HookNames lists the calls the instrumenter injects. They are runtime
// globals: a finally clause entered through a return from a block with
// captured bindings runs on the wrong scope chain, and only lookups by name
// still find the hook there.
var HookNames = []string{
	"markcl", "forcemarkcl", "startScope", "endScope", "setVar",
	"pushParams", "popParams", "alertWrap", "confirmWrap", "promptWrap",
}

// BindingNames lists the parameters of the function an instrumented
// snippet is compiled into, in order.
var BindingNames = []string{
	"console",
	"Graph", "GraphType", "BinaryTree", "BinarySearchTree", "BinaryTreeNode",
	"ParentSide", "NodeAccessType",
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// Agent executes snippets on behalf of a bridge. It must only be used from
// the goroutine running Run.
type Agent struct {
	logger *zap.Logger

	requests <-chan *protocol.Request
	events   chan<- protocol.Message

	vm      *goja.Runtime
	console *goja.Object
	args    []goja.Value

	cb   *protocol.ControlBlock
	code string

	// State of the current run.
	ctx     context.Context
	run     uint64
	halting bool

	structures map[*goja.Object]graph.Structure
	nodes      map[*goja.Object]*graph.TreeNode
	nodeObjs   map[*graph.TreeNode]*goja.Object
	observer   *structureObserver
}

// NewAgent creates an agent reading requests and posting events.
func NewAgent(requests <-chan *protocol.Request, events chan<- protocol.Message, opts ...Option) *Agent {
	a := &Agent{
		logger:   zap.NewNop(),
		requests: requests,
		events:   events,
		vm:       goja.New(),
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.observer = &structureObserver{agent: a}
	a.resetStructures()
	a.console = a.newConsole()
	a.args = a.bindings()
	return a
}

// Run serves requests until ctx is cancelled or the request channel is
// closed. A snippet run happens inside Run, so cancelling ctx also halts a
// parked snippet.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Debug("sandbox agent started")
	defer a.logger.Debug("sandbox agent stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-a.requests:
			if !ok {
				return nil
			}
			a.handle(ctx, req)
		}
	}
}

func (a *Agent) handle(ctx context.Context, req *protocol.Request) {
	msg := protocol.Message{Cmd: req.Cmd, Params: req.Params}

	if req.Cmd != protocol.CmdSharedMem && req.Cmd.IsRequest() && a.cb == nil {
		reply(req, protocol.Reply{Err: &protocol.ProtocolError{Op: req.Cmd.String(), Err: protocol.ErrNoSharedMemory}})
		return
	}

	switch req.Cmd {
	case protocol.CmdSharedMem:
		cb, err := protocol.Param[*protocol.ControlBlock](msg, 0)
		if err == nil && cb == nil {
			err = &protocol.ProtocolError{Op: req.Cmd.String(), Err: protocol.ErrNoSharedMemory}
		}
		if err == nil {
			a.cb = cb
		}
		reply(req, protocol.Reply{Err: err})

	case protocol.CmdSetSourceCode:
		code, err := protocol.Param[string](msg, 0)
		if err == nil {
			a.code = code
		}
		reply(req, protocol.Reply{Err: err})

	case protocol.CmdExecute:
		run, err := protocol.Param[uint64](msg, 0)
		if err != nil {
			reply(req, protocol.Reply{Err: err})
			return
		}
		fn, err := a.compile()
		reply(req, protocol.Reply{Err: err})
		if err == nil {
			a.execute(ctx, run, fn)
		}

	default:
		reply(req, protocol.Reply{Err: &protocol.ProtocolError{Op: req.Cmd.String(), Err: protocol.ErrUnknownCommand}})
	}
}

func reply(req *protocol.Request, r protocol.Reply) {
	select {
	case req.Reply <- r:
	default:
	}
}

// compile wraps the current code in a function taking the bindings.
func (a *Agent) compile() (goja.Callable, error) {
	if a.code == "" {
		return nil, ErrNoCode
	}
	src := "(function(" + strings.Join(BindingNames, ", ") + "){" + a.code + "\n})"
	prog, err := goja.Compile("snippet", src, false)
	if err != nil {
		return nil, fmt.Errorf("compile snippet: %w", err)
	}
	v, err := a.vm.RunProgram(prog)
	if err != nil {
		return nil, fmt.Errorf("load snippet: %w", err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, errors.New("load snippet: not a function")
	}
	return fn, nil
}

// execute runs fn to completion, a fault or a halt, then posts the
// outcome. Exactly one executionFinished is posted.
func (a *Agent) execute(ctx context.Context, run uint64, fn goja.Callable) {
	a.ctx = ctx
	a.run = run
	a.halting = false
	a.resetStructures()
	a.vm.ClearInterrupt()

	a.logger.Debug("run started", zap.Uint64("run", run))

	a.installHooks()
	restore := a.hookConsole()
	err := a.call(fn)
	restore()

	switch {
	case err == nil:
		a.logger.Debug("run finished", zap.Uint64("run", run))
	case IsHalt(err):
		a.logger.Debug("run halted", zap.Uint64("run", run))
	default:
		msg := err.Error()
		var fault *RuntimeFault
		if errors.As(err, &fault) {
			msg = fault.Message
		}
		a.logger.Debug("run raised", zap.Uint64("run", run), zap.String("message", msg))
		a.post(protocol.CmdOnExceptionRaised, msg)
	}
	a.post(protocol.CmdExecutionFinished)

	a.ctx = context.Background()
}

// call invokes fn with panic recovery. Go panics that escape the runtime
// become faults.
func (a *Agent) call(fn goja.Callable) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("snippet call panicked", zap.Any("panic", r))
			err = &RuntimeFault{Message: fmt.Sprint(r)}
		}
	}()

	_, err = fn(goja.Undefined(), a.args...)
	if err == nil {
		return nil
	}
	if a.halting || IsHalt(err) {
		return ErrHalted
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return &RuntimeFault{Message: ex.Value().String(), Err: err}
	}
	return &RuntimeFault{Message: err.Error(), Err: err}
}

// post sends an event for the current run. It reports false when the run
// context ended first.
func (a *Agent) post(cmd protocol.Command, params ...any) bool {
	msg := protocol.Message{Run: a.run, Cmd: cmd, Params: params}
	select {
	case a.events <- msg:
		return true
	case <-a.ctx.Done():
		return false
	}
}

// halt unwinds the running snippet at the next instruction.
func (a *Agent) halt() {
	if a.halting {
		return
	}
	a.halting = true
	a.vm.Interrupt(ErrHalted)
}

func (a *Agent) resetStructures() {
	a.structures = make(map[*goja.Object]graph.Structure)
	a.nodes = make(map[*goja.Object]*graph.TreeNode)
	a.nodeObjs = make(map[*graph.TreeNode]*goja.Object)
}
