package sensor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// OneWireDir is where the kernel w1 driver exposes devices.
const OneWireDir = "/sys/bus/w1/devices"

// DS18B20 reads a 1-wire temperature probe through the kernel w1_slave file.
type DS18B20 struct {
	name string
	path string
}

// NewDS18B20 returns a driver for the device with the given id (e.g. "28-0316a2795bff").
// An id containing a path separator is used as the file path directly.
func NewDS18B20(name, id string) *DS18B20 {
	path := id
	if !strings.ContainsRune(id, filepath.Separator) {
		path = filepath.Join(OneWireDir, id, "w1_slave")
	}
	return &DS18B20{name: name, path: path}
}

// Name implements Driver.
func (d *DS18B20) Name() string { return d.name }

// Read implements Driver.
func (d *DS18B20) Read() (float64, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return 0, fmt.Errorf("ds18b20 %s: %w", d.name, err)
	}
	v, err := ParseW1Slave(string(data))
	if err != nil {
		return 0, fmt.Errorf("ds18b20 %s: %w", d.name, err)
	}
	return v, nil
}

// Close implements Driver.
func (d *DS18B20) Close() error { return nil }

// ParseW1Slave decodes the two-line w1_slave format, returning degrees Celsius.
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func ParseW1Slave(s string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) < 2 {
		return 0, ErrNoData
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, fmt.Errorf("crc check failed")
	}
	i := strings.Index(lines[1], "t=")
	if i < 0 {
		return 0, ErrNoData
	}
	milli, err := strconv.Atoi(strings.TrimSpace(lines[1][i+2:]))
	if err != nil {
		return 0, fmt.Errorf("parse temperature: %w", err)
	}
	// 85000 is the power-on reset value, never a real measurement.
	if milli == 85000 {
		return 0, ErrNoData
	}
	return float64(milli) / 1000, nil
}
