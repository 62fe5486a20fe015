package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/dshills/stepviz/internal/graph"
	"github.com/dshills/stepviz/internal/observable"
	"github.com/dshills/stepviz/internal/protocol"
	"github.com/dshills/stepviz/internal/session"
)

// settleTimeout bounds the wait for a step to reach its next stop.
const settleTimeout = 5 * time.Second

// retryDelay spaces advance attempts while a line is still running.
const retryDelay = 10 * time.Millisecond

// Prompter reads one line of input. *liner.State implements it.
type Prompter interface {
	Prompt(prompt string) (string, error)
}

// LineStepper steps a session from a plain prompt and prints every
// notification as a line of text.
type LineStepper struct {
	session *session.Session
	in      Prompter
	logger  *zap.Logger

	mu      sync.Mutex
	out     io.Writer
	source  []string
	scopes  map[*observable.Observable]string
	pending *Interaction

	settled chan struct{}
}

// NewLineStepper creates a line stepper and registers it on the session
// bus.
func NewLineStepper(s *session.Session, in Prompter, out io.Writer, logger *zap.Logger) (*LineStepper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ls := &LineStepper{
		session: s,
		in:      in,
		out:     out,
		logger:  logger,
		scopes:  make(map[*observable.Observable]string),
		settled: make(chan struct{}, 1),
	}
	if _, err := s.RegisterNotificationObserver(ls); err != nil {
		return nil, err
	}
	return ls, nil
}

// Load compiles source into the session.
func (ls *LineStepper) Load(source string) bool {
	ls.mu.Lock()
	ls.source = strings.Split(source, "\n")
	ls.mu.Unlock()
	return ls.session.SetSourceCode(source)
}

// Reload replaces the source from any goroutine and stops a running
// replay.
func (ls *LineStepper) Reload(source string) error {
	if ls.Load(source) {
		ls.printf("reloaded, n starts")
	}
	return nil
}

func (ls *LineStepper) printf(format string, args ...any) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	fmt.Fprintf(ls.out, format+"\n", args...)
}

func (ls *LineStepper) settle() {
	select {
	case ls.settled <- struct{}{}:
	default:
	}
}

// Run reads commands until q, end of input or ctx ends.
func (ls *LineStepper) Run(ctx context.Context) error {
	ls.printf("commands: n step, c continue, s stop, r restart, v scope, q quit")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p := ls.takePending(); p != nil {
			if err := ls.answer(ctx, *p); err != nil {
				return ignoreEOF(err)
			}
			continue
		}

		cmd, err := ls.in.Prompt("step> ")
		if err != nil {
			return ignoreEOF(err)
		}
		switch strings.TrimSpace(cmd) {
		case "", "n":
			ls.step(ctx)
		case "c":
			ls.continueToEnd(ctx)
		case "s":
			ls.session.StopExecution()
			ls.wait(ctx)
		case "r":
			ls.restart(ctx)
		case "v":
			ls.printScope()
		case "q":
			ls.session.StopExecution()
			return nil
		default:
			ls.printf("unknown command %q", cmd)
		}
	}
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
		return nil
	}
	return err
}

func (ls *LineStepper) drain() {
	select {
	case <-ls.settled:
	default:
	}
}

// wait blocks until the next stop of the replay.
func (ls *LineStepper) wait(ctx context.Context) {
	select {
	case <-ls.settled:
	case <-ctx.Done():
	case <-time.After(settleTimeout):
		ls.logger.Warn("step did not settle", zap.Duration("timeout", settleTimeout))
	}
}

func (ls *LineStepper) step(ctx context.Context) {
	switch ls.session.State() {
	case session.StateIdle:
		ls.restart(ctx)
	case session.StateReplayEnded:
		ls.printf("replay finished, r restarts")
	case session.StateWaiting:
	default:
		ls.drain()
		if ls.session.AdvanceOneCodeLine() {
			ls.wait(ctx)
			return
		}
		time.Sleep(retryDelay)
	}
}

func (ls *LineStepper) restart(ctx context.Context) {
	if ls.session.State().Running() {
		ls.drain()
		ls.session.StopExecution()
		ls.wait(ctx)
	}
	ls.drain()
	if err := ls.session.StartReplay(ctx); err != nil {
		ls.printf("cannot start: %v", err)
		return
	}
	ls.wait(ctx)
}

// continueToEnd steps until the replay ends or asks for input.
func (ls *LineStepper) continueToEnd(ctx context.Context) {
	if ls.session.State() == session.StateIdle {
		ls.restart(ctx)
	}
	for ctx.Err() == nil && ls.session.State() == session.StateExecuting && ls.peekPending() == nil {
		ls.step(ctx)
	}
}

func (ls *LineStepper) takePending() *Interaction {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	p := ls.pending
	ls.pending = nil
	return p
}

func (ls *LineStepper) peekPending() *Interaction {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.pending
}

func (ls *LineStepper) answer(ctx context.Context, p Interaction) error {
	var value any
	switch p.Kind {
	case protocol.InteractionAlert:
		if _, err := ls.in.Prompt("[alert] " + p.Title + " (enter) "); err != nil {
			return err
		}
	case protocol.InteractionConfirm:
		line, err := ls.in.Prompt("[confirm] " + p.Title + " [y/N] ")
		if err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			value = true
		default:
			value = false
		}
	case protocol.InteractionPrompt:
		line, err := ls.in.Prompt(fmt.Sprintf("[prompt] %s [%s] ", p.Title, p.Default))
		if err != nil {
			return err
		}
		if line == "" {
			line = p.Default
		}
		value = line
	}
	ls.drain()
	if err := ls.session.OnUserInteractionResponse(p.Kind, value); err != nil {
		ls.printf("cannot answer: %v", err)
		return nil
	}
	ls.wait(ctx)
	return nil
}

func (ls *LineStepper) printScope() {
	ls.mu.Lock()
	byScope := make(map[string][]string)
	var order []string
	for o, scope := range ls.scopes {
		if _, ok := byScope[scope]; !ok {
			order = append(order, scope)
		}
		byScope[scope] = append(byScope[scope], o.Name()+" = "+o.String())
	}
	ls.mu.Unlock()

	if len(order) == 0 {
		ls.printf("  (no variables)")
		return
	}
	slices.Sort(order)
	for _, scope := range order {
		vars := byScope[scope]
		slices.Sort(vars)
		ls.printf("  %s", scope)
		for _, v := range vars {
			ls.printf("    %s", v)
		}
	}
}

// OnEnterScopeVariable prints a variable entering scope and follows its
// value.
func (ls *LineStepper) OnEnterScopeVariable(scope string, o *observable.Observable) {
	if o == nil {
		ls.printf("  { %s", scope)
		return
	}
	ls.mu.Lock()
	ls.scopes[o] = scope
	ls.mu.Unlock()
	o.Subscribe(ls)
	ls.printf("  + %s = %s", o.Name(), o.String())
}

// OnExitScopeVariable prints a variable or frame leaving scope.
func (ls *LineStepper) OnExitScopeVariable(scope string, o *observable.Observable) {
	if o == nil {
		ls.printf("  } %s", scope)
		return
	}
	o.Unsubscribe(ls)
	ls.mu.Lock()
	delete(ls.scopes, o)
	ls.mu.Unlock()
	ls.printf("  - %s", o.Name())
}

// OnSet prints a value change.
func (ls *LineStepper) OnSet(o *observable.Observable, _, _ any) {
	ls.printf("  ~ %s = %s", o.Name(), o.String())
}

// OnSetReference prints a reference change.
func (ls *LineStepper) OnSetReference(o *observable.Observable, _, target string) {
	ls.printf("  ~ %s -> %s", o.Name(), target)
}

// OnTraceMessage prints console output.
func (ls *LineStepper) OnTraceMessage(msg string) {
	ls.printf("console: %s", msg)
}

// OnCompilationError prints compilation errors.
func (ls *LineStepper) OnCompilationError(status bool, msg string) {
	if status {
		ls.printf("compile error: %s", msg)
	}
}

// OnExceptionMessage prints exceptions.
func (ls *LineStepper) OnExceptionMessage(status bool, msg string) {
	if status {
		ls.printf("exception: %s", msg)
	}
}

// OnUserInteractionRequest queues the interaction for the prompt loop.
func (ls *LineStepper) OnUserInteractionRequest(kind protocol.InteractionKind, title, def string) {
	ls.mu.Lock()
	ls.pending = &Interaction{Kind: kind, Title: title, Default: def}
	ls.mu.Unlock()
	ls.settle()
}

// OnExecutionFinished prints the end of the replay.
func (ls *LineStepper) OnExecutionFinished() {
	ls.mu.Lock()
	for o := range ls.scopes {
		o.Unsubscribe(ls)
	}
	clear(ls.scopes)
	ls.pending = nil
	ls.mu.Unlock()
	ls.printf("finished")
	ls.settle()
}

// Markcl prints the line about to execute.
func (ls *LineStepper) Markcl(line int) {
	ls.mu.Lock()
	text := ""
	if line >= 1 && line <= len(ls.source) {
		text = strings.TrimSpace(ls.source[line-1])
	}
	ls.mu.Unlock()
	ls.printf("%4d | %s", line, text)
	ls.settle()
}

// OnAccessNode prints a node access.
func (ls *LineStepper) OnAccessNode(o *observable.Observable, n graph.Node, access graph.AccessType) {
	ls.printf("  %s: %s %s", nameOf(o), access, n.Label)
}

// OnAddEdge prints an added edge.
func (ls *LineStepper) OnAddEdge(o *observable.Observable, src, dst graph.Node) {
	ls.printf("  %s: edge %s -> %s", nameOf(o), src.Label, dst.Label)
}

// OnAddNode prints an added node.
func (ls *LineStepper) OnAddNode(o *observable.Observable, n graph.Node, parent *graph.Node, side *graph.ChildSide) {
	if parent != nil && side != nil {
		ls.printf("  %s: add %s (%s of %s)", nameOf(o), n.Label, side, parent.Label)
		return
	}
	ls.printf("  %s: add %s", nameOf(o), n.Label)
}

// OnRemoveNode prints a removed node.
func (ls *LineStepper) OnRemoveNode(o *observable.Observable, n graph.Node) {
	ls.printf("  %s: remove %s", nameOf(o), n.Label)
}

// OnRemoveEdge prints a removed edge.
func (ls *LineStepper) OnRemoveEdge(o *observable.Observable, src, dst graph.Node) {
	ls.printf("  %s: remove edge %s -> %s", nameOf(o), src.Label, dst.Label)
}

func nameOf(o *observable.Observable) string {
	if o == nil {
		return "structure"
	}
	return o.Name()
}
