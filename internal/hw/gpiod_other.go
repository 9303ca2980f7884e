//go:build !linux

package hw

func openGPIOD(Options) (*Device, error) {
	return nil, ErrUnsupported
}
