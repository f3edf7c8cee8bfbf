//go:build linux

package gps

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

var termiosSpeed = map[int]uint32{
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

// openSerial opens path as a raw 8N1 line whose reads return after at most
// readTimeout, possibly with zero bytes.
func openSerial(path string, baud int, readTimeout time.Duration) (io.ReadCloser, error) {
	spd, ok := termiosSpeed[baud]
	if !ok {
		return nil, fmt.Errorf("unsupported baud %d", baud)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if err := configureRaw(fd, spd, vtime(readTimeout)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("configure %s: %w", path, err)
	}
	return os.NewFile(uintptr(fd), path), nil
}

func configureRaw(fd int, spd uint32, vt uint8) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}

	// UBX is binary: nothing may be translated, swallowed or echoed.
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | spd
	t.Ispeed, t.Ospeed = spd, spd

	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = vt

	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

// vtime converts d to tenths of a second within the 1..255 range termios
// accepts.
func vtime(d time.Duration) uint8 {
	ds := d / (100 * time.Millisecond)
	if ds < 1 {
		return 1
	}
	if ds > 255 {
		return 255
	}
	return uint8(ds)
}
