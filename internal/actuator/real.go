//go:build linux

package actuator

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// LineConfig gives the BCM line offsets of one channel's pumps. A negative
// offset means no pump.
type LineConfig struct {
	Up   int
	Down int
}

// gpioLine adapts a gpiocdev line to Output. Closing returns the line to an
// input with pull-down, matching the Pi boot defaults.
type gpioLine struct {
	*gpiocdev.Line
}

func (l gpioLine) Close() error {
	if err := l.Line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		l.Line.Close()
		return fmt.Errorf("reconfigure line: %w", err)
	}
	return l.Line.Close()
}

// OpenBank requests the configured lines as outputs driven low.
func OpenBank(chipName string, pumps map[string]LineConfig, irrigationLine int) (*Bank, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	var opened []Output
	request := func(offset int) (Output, error) {
		if offset < 0 {
			return nil, nil
		}
		l, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
		if err != nil {
			for _, o := range opened {
				o.Close()
			}
			chip.Close()
			return nil, fmt.Errorf("request line %d: %w", offset, err)
		}
		out := gpioLine{l}
		opened = append(opened, out)
		return out, nil
	}

	lines := make(map[string]PumpLines, len(pumps))
	for name, cfg := range pumps {
		up, err := request(cfg.Up)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", name, err)
		}
		down, err := request(cfg.Down)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", name, err)
		}
		lines[name] = PumpLines{Up: up, Down: down}
	}
	irrigation, err := request(irrigationLine)
	if err != nil {
		return nil, fmt.Errorf("irrigation: %w", err)
	}
	b := NewBank(lines, irrigation)
	b.release = chip.Close
	return b, nil
}
