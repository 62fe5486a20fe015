package protocol

import (
	"context"
	"sync"
	"sync/atomic"
	"unicode/utf16"
)

// Control block layout. The block mirrors 128 16-bit slots viewed as 64
// int32 cells.
const (
	SlotMain    = 0
	SlotAux     = 1
	SlotKind    = 2
	SlotPayload = 3
	SlotData    = 4

	ControlBlockSlots = 64

	// MaxMessageUnits is the number of UTF-16 code units a string response
	// can carry. Longer responses are truncated.
	MaxMessageUnits = ControlBlockSlots - SlotData

	// NullPayload marks a cancelled prompt.
	NullPayload = -1
)

// WaitResult describes how a Wait call returned.
type WaitResult int

const (
	// WaitOK means the waiter was notified.
	WaitOK WaitResult = iota
	// WaitNotEqual means the slot did not hold the expected value.
	WaitNotEqual
)

// String returns the string representation of the wait result.
func (r WaitResult) String() string {
	if r == WaitOK {
		return "ok"
	}
	return "not-equal"
}

// ControlBlock is the shared region used to synchronize the host and the
// sandbox. Every slot is read and written through sync/atomic; Wait and
// Notify provide the blocking wake primitive.
type ControlBlock struct {
	slots [ControlBlockSlots]int32

	waitersMu sync.Mutex
	waiters   map[int][]chan struct{}

	wakes atomic.Uint64
}

// NewControlBlock creates a zeroed control block.
func NewControlBlock() *ControlBlock {
	return &ControlBlock{
		waiters: make(map[int][]chan struct{}),
	}
}

// Load atomically reads a slot.
func (c *ControlBlock) Load(slot int) int32 {
	return atomic.LoadInt32(&c.slots[slot])
}

// Store atomically writes a slot.
func (c *ControlBlock) Store(slot int, v int32) {
	atomic.StoreInt32(&c.slots[slot], v)
}

// CompareAndSwap atomically replaces old with val in a slot.
func (c *ControlBlock) CompareAndSwap(slot int, old, val int32) bool {
	return atomic.CompareAndSwapInt32(&c.slots[slot], old, val)
}

// LoadSignal reads a signal slot.
func (c *ControlBlock) LoadSignal(slot int) Signal {
	return Signal(c.Load(slot))
}

// StoreSignal writes a signal slot.
func (c *ControlBlock) StoreSignal(slot int, s Signal) {
	c.Store(slot, int32(s))
}

// Wait blocks while slot holds expected, until Notify is called for the slot
// or ctx is done. It returns WaitNotEqual immediately if the slot already
// holds another value.
func (c *ControlBlock) Wait(ctx context.Context, slot int, expected int32) (WaitResult, error) {
	ch := make(chan struct{}, 1)

	c.waitersMu.Lock()
	if c.Load(slot) != expected {
		c.waitersMu.Unlock()
		return WaitNotEqual, nil
	}
	c.waiters[slot] = append(c.waiters[slot], ch)
	c.waitersMu.Unlock()

	select {
	case <-ch:
		return WaitOK, nil
	case <-ctx.Done():
		c.removeWaiter(slot, ch)
		return WaitOK, ctx.Err()
	}
}

// Notify wakes every waiter parked on slot and returns how many were woken.
func (c *ControlBlock) Notify(slot int) int {
	c.waitersMu.Lock()
	waiters := c.waiters[slot]
	delete(c.waiters, slot)
	c.waitersMu.Unlock()

	for _, ch := range waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	c.wakes.Add(uint64(len(waiters)))
	return len(waiters)
}

// Waiters returns the number of goroutines parked on slot.
func (c *ControlBlock) Waiters(slot int) int {
	c.waitersMu.Lock()
	defer c.waitersMu.Unlock()
	return len(c.waiters[slot])
}

// Wakes returns the total number of waiters woken so far.
func (c *ControlBlock) Wakes() uint64 {
	return c.wakes.Load()
}

func (c *ControlBlock) removeWaiter(slot int, ch chan struct{}) {
	c.waitersMu.Lock()
	defer c.waitersMu.Unlock()
	list := c.waiters[slot]
	for i, w := range list {
		if w == ch {
			c.waiters[slot] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// WriteResponse encodes an interaction response into the message region.
// Alert carries no payload, confirm a 0/1 flag and prompt a length-prefixed
// UTF-16 string; a nil prompt value encodes a cancellation.
func (c *ControlBlock) WriteResponse(kind InteractionKind, value any) {
	c.Store(SlotKind, int32(kind))

	switch kind {
	case InteractionConfirm:
		var flag int32
		if b, ok := value.(bool); ok && b {
			flag = 1
		}
		c.Store(SlotPayload, flag)
	case InteractionPrompt:
		s, ok := value.(string)
		if !ok {
			c.Store(SlotPayload, NullPayload)
			return
		}
		units := utf16.Encode([]rune(s))
		if len(units) > MaxMessageUnits {
			units = units[:MaxMessageUnits]
		}
		for i, u := range units {
			c.Store(SlotData+i, int32(u))
		}
		c.Store(SlotPayload, int32(len(units)))
	default:
		c.Store(SlotPayload, 0)
	}
}

// ReadResponse decodes the message region written by WriteResponse. The
// value is nil for alert and cancelled prompts, a bool for confirm and a
// string for prompt.
func (c *ControlBlock) ReadResponse() (InteractionKind, any) {
	kind := InteractionKind(c.Load(SlotKind))
	payload := c.Load(SlotPayload)

	switch kind {
	case InteractionConfirm:
		return kind, payload != 0
	case InteractionPrompt:
		if payload < 0 {
			return kind, nil
		}
		n := int(payload)
		if n > MaxMessageUnits {
			n = MaxMessageUnits
		}
		units := make([]uint16, n)
		for i := range units {
			units[i] = uint16(c.Load(SlotData + i))
		}
		return kind, string(utf16.Decode(units))
	default:
		return kind, nil
	}
}

// Reset clears every slot.
func (c *ControlBlock) Reset() {
	for i := range c.slots {
		c.Store(i, 0)
	}
}
