package sonar

// CycleState is the position of the current measurement in the
// trigger, rising edge, falling edge sequence.
type CycleState int

const (
	// WaitTrigger: no cycle is armed; edges are ignored.
	WaitTrigger CycleState = iota
	// WaitRisingEdge: triggered, waiting for the echo line to go high.
	WaitRisingEdge
	// WaitFallingEdge: echo start captured, waiting for it to go low.
	WaitFallingEdge
	// CycleComplete: both edges captured, waiting for the sampling loop.
	CycleComplete
)

func (s CycleState) String() string {
	switch s {
	case WaitTrigger:
		return "wait_trigger"
	case WaitRisingEdge:
		return "wait_rising_edge"
	case WaitFallingEdge:
		return "wait_falling_edge"
	case CycleComplete:
		return "cycle_complete"
	default:
		return "unknown"
	}
}

// MarshalText lets the state appear by name in JSON status output.
func (s CycleState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Cycle is a consumed pair of edge captures.
type Cycle struct {
	Start    uint16
	End      uint16
	Sequence uint32
}

// Elapsed is the wraparound-aware tick count between the two edges.
func (c Cycle) Elapsed() uint32 {
	return ElapsedTicks(c.Start, c.End)
}
