//go:build !linux

package input

func openDevice(Config) (*device, error) {
	return nil, ErrUnsupported
}
