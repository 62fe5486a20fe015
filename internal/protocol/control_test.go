package protocol

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalString(t *testing.T) {
	tests := []struct {
		signal Signal
		want   string
	}{
		{SignalNoOp, "noop"},
		{SignalWait, "wait"},
		{SignalProceed, "proceed"},
		{SignalStop, "stop"},
		{SignalUserInteractionResponse, "user-interaction-response"},
		{Signal(42), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.signal.String())
	}
}

func TestCommandWireOrder(t *testing.T) {
	// The numeric values are part of the wire contract.
	assert.Equal(t, Command(0), CmdSharedMem)
	assert.Equal(t, Command(6), CmdMarkcl)
	assert.Equal(t, Command(18), CmdOnConsoleLog)
	assert.Equal(t, "forcemarkcl", CmdForceMarkcl.String())
	assert.Equal(t, "unknown", Command(99).String())

	assert.True(t, CmdExecute.IsRequest())
	assert.False(t, CmdMarkcl.IsRequest())
}

func TestControlBlockWaitNotEqual(t *testing.T) {
	cb := NewControlBlock()
	cb.StoreSignal(SlotMain, SignalProceed)

	res, err := cb.Wait(context.Background(), SlotMain, int32(SignalWait))
	require.NoError(t, err)
	assert.Equal(t, WaitNotEqual, res)
	assert.Zero(t, cb.Waiters(SlotMain))
}

func TestControlBlockWaitNotify(t *testing.T) {
	cb := NewControlBlock()
	cb.StoreSignal(SlotMain, SignalWait)

	done := make(chan WaitResult, 1)
	go func() {
		res, _ := cb.Wait(context.Background(), SlotMain, int32(SignalWait))
		done <- res
	}()

	require.Eventually(t, func() bool { return cb.Waiters(SlotMain) == 1 }, time.Second, time.Millisecond)

	cb.StoreSignal(SlotMain, SignalProceed)
	assert.Equal(t, 1, cb.Notify(SlotMain))

	select {
	case res := <-done:
		assert.Equal(t, WaitOK, res)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
	assert.Equal(t, uint64(1), cb.Wakes())
}

func TestControlBlockWaitContextCancel(t *testing.T) {
	cb := NewControlBlock()
	cb.StoreSignal(SlotMain, SignalWait)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := cb.Wait(ctx, SlotMain, int32(SignalWait))
		errc <- err
	}()

	require.Eventually(t, func() bool { return cb.Waiters(SlotMain) == 1 }, time.Second, time.Millisecond)
	cancel()

	err := <-errc
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, cb.Waiters(SlotMain))
}

func TestControlBlockNotifyWithoutWaiters(t *testing.T) {
	cb := NewControlBlock()
	assert.Zero(t, cb.Notify(SlotMain))
}

func TestControlBlockCompareAndSwap(t *testing.T) {
	cb := NewControlBlock()
	cb.StoreSignal(SlotAux, SignalUserInteractionResponse)

	assert.True(t, cb.CompareAndSwap(SlotAux, int32(SignalUserInteractionResponse), int32(SignalNoOp)))
	assert.False(t, cb.CompareAndSwap(SlotAux, int32(SignalUserInteractionResponse), int32(SignalNoOp)))
	assert.Equal(t, SignalNoOp, cb.LoadSignal(SlotAux))
}

func TestControlBlockResponses(t *testing.T) {
	tests := []struct {
		name  string
		kind  InteractionKind
		value any
		want  any
	}{
		{"alert", InteractionAlert, nil, nil},
		{"confirm true", InteractionConfirm, true, true},
		{"confirm false", InteractionConfirm, false, false},
		{"prompt", InteractionPrompt, "hello", "hello"},
		{"prompt empty", InteractionPrompt, "", ""},
		{"prompt cancel", InteractionPrompt, nil, nil},
		{"prompt surrogate pair", InteractionPrompt, "a😀b", "a😀b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := NewControlBlock()
			cb.WriteResponse(tt.kind, tt.value)

			kind, got := cb.ReadResponse()
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestControlBlockPromptTruncated(t *testing.T) {
	cb := NewControlBlock()
	long := strings.Repeat("x", MaxMessageUnits+10)
	cb.WriteResponse(InteractionPrompt, long)

	_, got := cb.ReadResponse()
	assert.Equal(t, long[:MaxMessageUnits], got)
	assert.Equal(t, int32(MaxMessageUnits), cb.Load(SlotPayload))
}

func TestParam(t *testing.T) {
	msg := Message{Cmd: CmdSetVar, Params: []any{"x", 3, nil}}

	name, err := Param[string](msg, 0)
	require.NoError(t, err)
	assert.Equal(t, "x", name)

	_, err = Param[string](msg, 1)
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
	assert.True(t, errors.Is(err, ErrMalformedMessage))

	_, err = Param[string](msg, 5)
	assert.True(t, IsProtocolError(err))

	_, ok, err := OptionalParam[string](msg, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}
