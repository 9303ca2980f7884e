package sonar

import "sync/atomic"

// The whole capture tuple lives in one word so the producer publishes it and
// the consumer takes it with a single atomic operation.
//
//	bits  0-15  echo start tick
//	bits 16-31  echo end tick
//	bit  32     awaiting falling edge
//	bit  33     cycle complete
//	bit  34     armed
//	bits 35-63  completed cycle sequence (wraps)
const (
	tickMask     = 0xFFFF
	endShift     = 16
	flagFalling  = uint64(1) << 32
	flagComplete = uint64(1) << 33
	flagArmed    = uint64(1) << 34
	seqShift     = 35
	seqMask      = ^(uint64(1)<<seqShift - 1)
)

// EdgeCapture is the state shared between the capture handler and the
// sampling loop. OnEdge is the only producer; Consume, Arm and Reset are
// called from the sampling goroutine.
//
// The idle counter is shared the same way: the handler clears it when a
// cycle completes and the loop increments it. A clear racing an increment
// can leave the count at one instead of zero, which delays the watchdog by
// at most one iteration.
type EdgeCapture struct {
	word atomic.Uint64
	idle atomic.Int32

	edges   atomic.Uint64
	dropped atomic.Uint64
}

// OnEdge records a captured edge. It is safe to call from the capture
// context: it never blocks, and its compare-and-swap retries only when the
// sampling goroutine wrote the word in between, which happens at most a few
// times per sampling interval.
//
// Edges are dropped while no cycle is armed and while a completed cycle is
// still unconsumed, so at most one unread cycle exists at a time.
func (c *EdgeCapture) OnEdge(tick uint16) {
	c.edges.Add(1)
	for {
		old := c.word.Load()
		if old&flagArmed == 0 || old&flagComplete != 0 {
			c.dropped.Add(1)
			return
		}

		var next uint64
		if old&flagFalling == 0 {
			next = old&^tickMask | uint64(tick) | flagFalling
		} else {
			seq := (old>>seqShift + 1) << seqShift
			next = old&^(tickMask<<endShift|flagFalling|seqMask) |
				uint64(tick)<<endShift | flagComplete | seq
		}

		if c.word.CompareAndSwap(old, next) {
			if next&flagComplete != 0 {
				c.idle.Store(0)
			}
			return
		}
	}
}

// Consume takes the completed cycle, if any, and returns the capture to
// WaitTrigger. A second call without an intervening cycle returns false.
func (c *EdgeCapture) Consume() (Cycle, bool) {
	for {
		old := c.word.Load()
		if old&flagComplete == 0 {
			return Cycle{}, false
		}
		if c.word.CompareAndSwap(old, old&^(flagComplete|flagArmed)) {
			return decodeCycle(old), true
		}
	}
}

// Arm starts a new cycle: both ticks cleared, waiting for a rising edge.
// Any unconsumed cycle is discarded; callers consume before re-arming.
func (c *EdgeCapture) Arm() {
	for {
		old := c.word.Load()
		if c.word.CompareAndSwap(old, old&seqMask|flagArmed) {
			return
		}
	}
}

// Reset forces the capture back to awaiting a rising edge with no complete
// cycle and nothing armed. The sequence number survives.
func (c *EdgeCapture) Reset() {
	for {
		old := c.word.Load()
		if c.word.CompareAndSwap(old, old&seqMask) {
			return
		}
	}
}

// State derives the cycle state machine position from the capture word.
func (c *EdgeCapture) State() CycleState {
	return stateOf(c.word.Load())
}

// Snapshot returns a consistent copy of the capture tuple.
func (c *EdgeCapture) Snapshot() CaptureSnapshot {
	w := c.word.Load()
	return CaptureSnapshot{
		State:          stateOf(w),
		EchoStart:      uint16(w & tickMask),
		EchoEnd:        uint16(w >> endShift & tickMask),
		AwaitingRising: w&flagFalling == 0,
		CycleComplete:  w&flagComplete != 0,
		Sequence:       uint32(w >> seqShift),
		Edges:          c.edges.Load(),
		DroppedEdges:   c.dropped.Load(),
	}
}

func (c *EdgeCapture) idleTick() int32 { return c.idle.Add(1) }
func (c *EdgeCapture) resetIdle()      { c.idle.Store(0) }

// IdleCount is the number of sampling iterations since the last completed
// cycle or watchdog recovery.
func (c *EdgeCapture) IdleCount() int32 { return c.idle.Load() }

// CaptureSnapshot is a decoded view of EdgeCapture for status reporting.
type CaptureSnapshot struct {
	State          CycleState `json:"state"`
	EchoStart      uint16     `json:"echo_start"`
	EchoEnd        uint16     `json:"echo_end"`
	AwaitingRising bool       `json:"awaiting_rising"`
	CycleComplete  bool       `json:"cycle_complete"`
	Sequence       uint32     `json:"sequence"`
	Edges          uint64     `json:"edges"`
	DroppedEdges   uint64     `json:"dropped_edges"`
}

func stateOf(w uint64) CycleState {
	switch {
	case w&flagArmed == 0:
		return WaitTrigger
	case w&flagComplete != 0:
		return CycleComplete
	case w&flagFalling != 0:
		return WaitFallingEdge
	default:
		return WaitRisingEdge
	}
}

func decodeCycle(w uint64) Cycle {
	return Cycle{
		Start:    uint16(w & tickMask),
		End:      uint16(w >> endShift & tickMask),
		Sequence: uint32(w >> seqShift),
	}
}
