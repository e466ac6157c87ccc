//go:build linux

package sensor

import (
	"fmt"

	"github.com/reef-pi/rpi/i2c"
)

// OpenI2C opens the default I2C bus.
func OpenI2C() (Bus, error) {
	bus, err := i2c.New()
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	return bus, nil
}
