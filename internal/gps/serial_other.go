//go:build !linux

package gps

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

func openSerial(path string, baud int, readTimeout time.Duration) (io.ReadCloser, error) {
	supported := false
	for _, b := range Bauds {
		if b == baud {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("unsupported baud %d", baud)
	}
	p, err := serial.OpenPort(&serial.Config{Name: path, Baud: baud, ReadTimeout: readTimeout})
	if err != nil {
		return nil, err
	}
	return p, nil
}
