//go:build linux && (arm || arm64)

package alert

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

const gpioConsumer = "spoofwatch-alarm"

// openAlarmLine requests the alarm line as an output, initially low. lineName is
// either a line name ("GPIO17") searched on every chip, or "<chip>:<offset>"
// ("gpiochip0:17").
func openAlarmLine(lineName string) (outputLine, error) {
	lineName = strings.TrimSpace(lineName)
	if lineName == "" {
		return nil, fmt.Errorf("alert: gpio line name is empty")
	}

	chip, offset, err := resolveAlarmLine(lineName)
	if err != nil {
		return nil, err
	}
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(gpioConsumer))
	if err != nil {
		return nil, fmt.Errorf("alert: request gpio %s:%d: %w", chip, offset, err)
	}
	return line, nil
}

func resolveAlarmLine(lineName string) (string, int, error) {
	if chip, off, ok := strings.Cut(lineName, ":"); ok {
		n, err := strconv.Atoi(off)
		if err != nil || n < 0 {
			return "", 0, fmt.Errorf("alert: gpio line %q: bad offset", lineName)
		}
		return chip, n, nil
	}
	chip, offset, err := gpiocdev.FindLine(lineName)
	if err != nil {
		return "", 0, fmt.Errorf("alert: gpio line %q: %w", lineName, err)
	}
	return chip, offset, nil
}

var openAlarmLineFn = openAlarmLine
