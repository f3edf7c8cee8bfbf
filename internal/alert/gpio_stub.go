//go:build !linux || (!arm && !arm64)

package alert

import "fmt"

func openAlarmLine(lineName string) (outputLine, error) {
	return nil, fmt.Errorf("alert: gpio unsupported on this platform")
}

var openAlarmLineFn = openAlarmLine
