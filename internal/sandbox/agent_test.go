package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/stepviz/internal/graph"
	"github.com/dshills/stepviz/internal/instrument"
	"github.com/dshills/stepviz/internal/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// harness plays the host side of the protocol.
type harness struct {
	t        *testing.T
	cb       *protocol.ControlBlock
	requests chan *protocol.Request
	events   chan protocol.Message
	cancel   context.CancelFunc
	done     chan error
	run      uint64
}

func start(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		cb:       protocol.NewControlBlock(),
		requests: make(chan *protocol.Request),
		events:   make(chan protocol.Message, 64),
		done:     make(chan error, 1),
	}
	agent := NewAgent(h.requests, h.events, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- agent.Run(ctx) }()
	t.Cleanup(h.close)
	return h
}

func (h *harness) close() {
	h.cancel()
	<-h.done
}

func (h *harness) request(cmd protocol.Command, params ...any) error {
	req := protocol.NewRequest(cmd, params...)
	h.requests <- req
	return (<-req.Reply).Err
}

func (h *harness) handshake() {
	require.NoError(h.t, h.request(protocol.CmdSharedMem, h.cb))
}

func (h *harness) execute(code string) error {
	require.NoError(h.t, h.request(protocol.CmdSetSourceCode, code))
	h.run++
	h.cb.StoreSignal(protocol.SlotAux, protocol.SignalNoOp)
	h.cb.StoreSignal(protocol.SlotMain, protocol.SignalProceed)
	return h.request(protocol.CmdExecute, h.run)
}

func (h *harness) next() protocol.Message {
	h.t.Helper()
	select {
	case m := <-h.events:
		assert.Equal(h.t, h.run, m.Run)
		return m
	case <-time.After(2 * time.Second):
		h.t.Fatal("no event from the agent")
		return protocol.Message{}
	}
}

func (h *harness) expect(cmd protocol.Command, params ...any) {
	h.t.Helper()
	m := h.next()
	require.Equal(h.t, cmd, m.Cmd, "got %s", m)
	if params != nil {
		if diff := cmp.Diff(params, m.Params); diff != "" {
			h.t.Errorf("%s params mismatch (-want +got):\n%s", cmd, diff)
		}
	}
}

func (h *harness) advance() {
	h.cb.StoreSignal(protocol.SlotMain, protocol.SignalProceed)
	h.cb.Notify(protocol.SlotMain)
}

func (h *harness) stop() {
	h.cb.StoreSignal(protocol.SlotAux, protocol.SignalStop)
	h.cb.StoreSignal(protocol.SlotMain, protocol.SignalProceed)
	h.cb.Notify(protocol.SlotMain)
}

func (h *harness) respond(kind protocol.InteractionKind, value any) {
	h.cb.WriteResponse(kind, value)
	h.cb.StoreSignal(protocol.SlotAux, protocol.SignalUserInteractionResponse)
	h.advance()
}

func (h *harness) quiet() {
	h.t.Helper()
	select {
	case m := <-h.events:
		h.t.Fatalf("unexpected event %s", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHookNamesMatchInjectedCalls(t *testing.T) {
	assert.Equal(t, instrument.InjectedNames, HookNames)
	for _, name := range HookNames {
		assert.NotContains(t, BindingNames, name)
	}
}

func TestRequiresHandshake(t *testing.T) {
	h := start(t)

	for _, cmd := range []protocol.Command{protocol.CmdSetSourceCode, protocol.CmdExecute} {
		err := h.request(cmd, "x")
		require.Error(t, err)
		assert.True(t, protocol.IsProtocolError(err))
		assert.ErrorIs(t, err, protocol.ErrNoSharedMemory)
	}

	err := h.request(protocol.CmdSharedMem, (*protocol.ControlBlock)(nil))
	assert.ErrorIs(t, err, protocol.ErrNoSharedMemory)

	h.handshake()
	assert.ErrorIs(t, h.request(protocol.CmdMarkcl, 1), protocol.ErrUnknownCommand)
}

func TestStraightLineRun(t *testing.T) {
	h := start(t)
	h.handshake()

	require.NoError(t, h.execute(`markcl(1); var x = 1; setVar('x', x);
markcl(2); x = [x, 'a', {k: true}]; setVar('x', x);`))

	h.expect(protocol.CmdMarkcl, 1)
	h.quiet()
	h.advance()
	h.expect(protocol.CmdSetVar, "x", int64(1), nil)
	h.expect(protocol.CmdMarkcl, 2)
	h.advance()
	h.expect(protocol.CmdSetVar, "x", []any{int64(1), "a", map[string]any{"k": true}}, nil)
	h.expect(protocol.CmdExecutionFinished)
	h.quiet()
}

func TestStopHalts(t *testing.T) {
	h := start(t)
	h.handshake()

	require.NoError(t, h.execute(`startScope('global'); try { markcl(1); markcl(2); } finally { endScope('global'); }`))
	h.expect(protocol.CmdStartScope, "global")
	h.expect(protocol.CmdMarkcl, 1)
	h.stop()
	h.expect(protocol.CmdExecutionFinished)
	h.quiet()

	require.NoError(t, h.execute(`markcl(7);`))
	h.expect(protocol.CmdMarkcl, 7)
	h.advance()
	h.expect(protocol.CmdExecutionFinished)
}

func TestReturnFromCapturedBlockEndsScope(t *testing.T) {
	h := start(t)
	h.handshake()

	require.NoError(t, h.execute(`function mk() {
  startScope('!mk');
  try { let c = 0; return function () { c++; return c; }; } finally { endScope('!mk'); }
}
let inc = mk(); inc(); setVar('v', inc());`))
	h.expect(protocol.CmdStartScope, "!mk")
	h.expect(protocol.CmdEndScope, "!mk")
	h.expect(protocol.CmdSetVar, "v", int64(2), nil)
	h.expect(protocol.CmdExecutionFinished)
	h.quiet()
}

func TestHooksReinstalledEachRun(t *testing.T) {
	h := start(t)
	h.handshake()

	require.NoError(t, h.execute(`markcl = null;`))
	h.expect(protocol.CmdExecutionFinished)

	require.NoError(t, h.execute(`markcl(3);`))
	h.expect(protocol.CmdMarkcl, 3)
	h.advance()
	h.expect(protocol.CmdExecutionFinished)
}

func TestExceptionReported(t *testing.T) {
	h := start(t)
	h.handshake()

	require.NoError(t, h.execute(`markcl(1); throw new Error('bad');`))
	h.expect(protocol.CmdMarkcl, 1)
	h.advance()
	h.expect(protocol.CmdOnExceptionRaised, "Error: bad")
	h.expect(protocol.CmdExecutionFinished)
}

func TestCompileError(t *testing.T) {
	h := start(t)
	h.handshake()

	err := h.execute(`let = ;`)
	require.Error(t, err)
	assert.False(t, IsHalt(err))
	h.quiet()
}

func TestInteractions(t *testing.T) {
	h := start(t)
	h.handshake()

	require.NoError(t, h.execute(`let ok = confirmWrap('go?'); setVar('ok', ok);
let name = promptWrap('name', 'bob'); setVar('name', name);
alertWrap('a', 1);`))

	h.expect(protocol.CmdUserInteractionRequest, protocol.InteractionConfirm, "go?", "")
	h.respond(protocol.InteractionConfirm, true)
	h.expect(protocol.CmdSetVar, "ok", true, nil)
	assert.Equal(t, protocol.SignalNoOp, h.cb.LoadSignal(protocol.SlotAux))

	h.expect(protocol.CmdUserInteractionRequest, protocol.InteractionPrompt, "name", "bob")
	h.respond(protocol.InteractionPrompt, nil)
	h.expect(protocol.CmdSetVar, "name", nil, nil)

	h.expect(protocol.CmdUserInteractionRequest, protocol.InteractionAlert, "a 1", "")
	h.respond(protocol.InteractionAlert, nil)
	h.expect(protocol.CmdExecutionFinished)
}

func TestConsoleHookIsRestored(t *testing.T) {
	h := start(t)
	h.handshake()

	for i := 0; i < 2; i++ {
		require.NoError(t, h.execute(`console.log('hi', 2, [1]);`))
		h.expect(protocol.CmdOnConsoleLog, "hi 2 [1]")
		h.expect(protocol.CmdExecutionFinished)
	}
}

func TestFrozenConsoleIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := start(t, WithLogger(zap.New(core)))
	h.handshake()

	require.NoError(t, h.execute(`Object.freeze(console);`))
	h.expect(protocol.CmdExecutionFinished)
	assert.Equal(t, 1, logs.FilterMessage("console.log not restored").Len())

	require.NoError(t, h.execute(`console.log('x');`))
	h.expect(protocol.CmdOnConsoleLog, "x")
	h.expect(protocol.CmdExecutionFinished)
	assert.Equal(t, 1, logs.FilterMessage("console.log not hooked").Len())
}

func TestExportCutsCyclesAndFunctions(t *testing.T) {
	h := start(t)
	h.handshake()

	require.NoError(t, h.execute(`let a = {n: 1}; a.self = a; a.f = function() {}; a.list = [a, 2];
setVar('a', a, 'src');`))
	h.expect(protocol.CmdSetVar, "a", map[string]any{
		"n":    int64(1),
		"self": Circular,
		"list": []any{Circular, int64(2)},
	}, "src")
	h.expect(protocol.CmdExecutionFinished)
}

func TestParamPairs(t *testing.T) {
	h := start(t)
	h.handshake()

	require.NoError(t, h.execute(`pushParams([['!f.a', 'x']]); popParams([['!f.a', 'x']]);`))
	pairs := []protocol.ParamPair{{Param: "!f.a", Arg: "x"}}
	h.expect(protocol.CmdPushParams, pairs)
	h.expect(protocol.CmdPopParams, pairs)
	h.expect(protocol.CmdExecutionFinished)
}

func cmds(msgs []protocol.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Cmd.String()
	}
	return out
}

func (h *harness) drain() []protocol.Message {
	h.t.Helper()
	var msgs []protocol.Message
	for {
		m := h.next()
		msgs = append(msgs, m)
		if m.Cmd == protocol.CmdExecutionFinished {
			return msgs
		}
	}
}

func TestGraphEvents(t *testing.T) {
	h := start(t)
	h.handshake()

	require.NoError(t, h.execute(`let g = new Graph(GraphType.DIRECTED);
g.addEdge(1, 2); setVar('g', g);
g.accessValue(2, NodeAccessType.Mark);
g.removeVertex(1);`))

	msgs := h.drain()
	want := []string{"onAddNode", "onAddNode", "onAddEdge", "setVar", "onAccessNode", "onRemoveNode", "executionFinished"}
	if diff := cmp.Diff(want, cmds(msgs)); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}

	d, ok := msgs[3].Params[1].(graph.Descriptor)
	require.True(t, ok)
	assert.Equal(t, graph.KindDirected, d.Kind)
	assert.Equal(t, "g", d.Name)
	assert.Equal(t, d.ID, msgs[0].Params[0].(graph.Descriptor).ID)

	assert.Equal(t, graph.NewNode(int64(2)), msgs[4].Params[1])
	assert.Equal(t, graph.AccessMark, msgs[4].Params[2])
	assert.Nil(t, msgs[0].Params[2])
}

func TestTreeNodeAssignment(t *testing.T) {
	h := start(t)
	h.handshake()

	require.NoError(t, h.execute(`let t = new BinaryTree();
let r = t.createRoot(5);
r.left = new BinaryTreeNode(3);
r.right = 8;
setVar('r', r);
setVar('leaf', r.left.isLeftChild());`))

	msgs := h.drain()
	want := []string{"onAddNode", "onAddNode", "onAddEdge", "onAddNode", "onAddEdge", "setVar", "setVar", "executionFinished"}
	if diff := cmp.Diff(want, cmds(msgs)); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, graph.NewNode(int64(5)), msgs[1].Params[2])
	assert.Equal(t, graph.SideLeft, msgs[1].Params[3])
	assert.Equal(t, graph.SideRight, msgs[3].Params[3])
	assert.Equal(t, graph.NewNode(int64(5)), msgs[5].Params[1])
	assert.Equal(t, true, msgs[6].Params[1])
}

func TestSearchTreeConvention(t *testing.T) {
	h := start(t)
	h.handshake()

	require.NoError(t, h.execute(`let t = new BinarySearchTree(); let r = t.add(5); r.left = 9;`))
	h.expect(protocol.CmdOnAddNode)
	h.expect(protocol.CmdOnExceptionRaised, graph.ErrOrderViolation.Error())
	h.expect(protocol.CmdExecutionFinished)
}

func TestCancelWhileParked(t *testing.T) {
	h := start(t)
	h.handshake()

	require.NoError(t, h.execute(`markcl(1); markcl(2);`))
	h.expect(protocol.CmdMarkcl, 1)

	h.cancel()
	select {
	case err := <-h.done:
		assert.True(t, errors.Is(err, context.Canceled))
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop")
	}
}

func TestIsHalt(t *testing.T) {
	assert.True(t, IsHalt(ErrHalted))
	assert.False(t, IsHalt(&RuntimeFault{Message: "x"}))
	assert.True(t, IsRuntimeFault(&RuntimeFault{Message: "x"}))
	assert.Equal(t, "runtime fault: x", (&RuntimeFault{Message: "x"}).Error())
}
