package gps

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"spoofwatch/internal/ubx"
)

// Supported serial rates.
var Bauds = []int{4800, 9600, 19200, 38400, 57600, 115200}

const (
	DefaultBaud        = 9600
	DefaultReadTimeout = time.Second
)

// Port is an open serial device read one byte at a time.
type Port struct {
	name string
	baud int
	rc   io.ReadCloser

	buf  [256]byte
	r, n int
}

// OpenSerial opens device in raw mode. An empty device is auto-detected
// among /dev/ttyACM* and /dev/ttyUSB*. The port reports ubx.ErrTimeout when
// nothing arrives within readTimeout.
func OpenSerial(device string, baud int, readTimeout time.Duration) (*Port, error) {
	device = strings.TrimSpace(device)
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			return nil, fmt.Errorf("gps auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
		}
	}
	if baud == 0 {
		baud = DefaultBaud
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	rc, err := openSerial(device, baud, readTimeout)
	if err != nil {
		return nil, fmt.Errorf("gps open failed device=%s baud=%d: %w", device, baud, err)
	}
	return NewPort(device, baud, rc), nil
}

// NewPort wraps an already open stream. A read returning no bytes is a
// timeout.
func NewPort(name string, baud int, rc io.ReadCloser) *Port {
	return &Port{name: name, baud: baud, rc: rc}
}

func (p *Port) Name() string { return p.name }
func (p *Port) Baud() int    { return p.baud }

func (p *Port) ReadByte() (byte, error) {
	if p.r < p.n {
		b := p.buf[p.r]
		p.r++
		return b, nil
	}
	n, err := p.rc.Read(p.buf[:])
	if n > 0 {
		p.r, p.n = 1, n
		return p.buf[0], nil
	}
	// A raw tty with VMIN=0 returns zero bytes on timeout, which os.File
	// reports as io.EOF.
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
		return 0, ubx.ErrTimeout
	}
	return 0, err
}

func (p *Port) Close() error {
	if p.rc == nil {
		return nil
	}
	return p.rc.Close()
}

func autoDetectDevice() string {
	candidates := []string{}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
