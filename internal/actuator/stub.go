//go:build !linux

package actuator

import "errors"

// LineConfig gives the BCM line offsets of one channel's pumps.
type LineConfig struct {
	Up   int
	Down int
}

// OpenBank returns an error on non-Linux platforms.
func OpenBank(chipName string, pumps map[string]LineConfig, irrigationLine int) (*Bank, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}
