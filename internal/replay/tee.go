package replay

import (
	"errors"
	"io"
	"sync"
	"time"

	"spoofwatch/internal/ubx"
)

const maxBurst = 4096

// Tee passes bytes from src through unchanged and records them to w, one
// capture line per burst between timeouts.
//
// Close may be called from another goroutine to stop a blocked read.
type Tee struct {
	src ubx.ByteSource
	now func() time.Time

	mu      sync.Mutex
	w       *Writer
	burst   []byte
	burstAt time.Time
	err     error
}

func NewTee(src ubx.ByteSource, w *Writer) *Tee {
	return &Tee{src: src, w: w, now: time.Now}
}

func (t *Tee) ReadByte() (byte, error) {
	b, err := t.src.ReadByte()

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.flushLocked()
		return b, err
	}
	if len(t.burst) == 0 {
		t.burstAt = t.now()
	}
	t.burst = append(t.burst, b)
	if len(t.burst) >= maxBurst {
		t.flushLocked()
	}
	return b, nil
}

// Err returns the first capture write error. Capture failures never
// interrupt the byte stream.
func (t *Tee) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Tee) flushLocked() {
	if len(t.burst) == 0 || t.w == nil {
		return
	}
	if err := t.w.WriteChunk(t.burstAt, t.burst); err != nil && t.err == nil {
		t.err = err
	}
	t.burst = t.burst[:0]
}

// Close writes any pending burst, closes the capture and then closes src
// when it is an io.Closer.
func (t *Tee) Close() error {
	t.mu.Lock()
	t.flushLocked()
	var err error
	if t.w != nil {
		err = t.w.Close()
		t.w = nil
	}
	t.mu.Unlock()

	if c, ok := t.src.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}
