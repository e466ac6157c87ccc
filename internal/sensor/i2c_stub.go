//go:build !linux

package sensor

import "errors"

// OpenI2C is not available on non-Linux platforms.
func OpenI2C() (Bus, error) {
	return nil, errors.New("i2c: not supported on this platform (requires Linux)")
}
