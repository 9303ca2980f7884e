package sonar

// TriggerLine drives the sensor's trigger input.
type TriggerLine interface {
	Set(high bool) error
}

// EdgeHandler receives the capture counter value latched on an echo edge.
// It runs in the capture context: it must not block, allocate or log.
type EdgeHandler func(tick uint16)

// EchoSource delivers echo-line edges, rising and falling alike, to a single
// handler. Attach failing means the driver cannot start.
type EchoSource interface {
	Attach(EdgeHandler) error
	Detach() error
}
