package replay

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"spoofwatch/internal/ubx"
)

type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

type Options struct {
	// Speed: 1.0 = real time, 2.0 = half the waits. Zero means 1.0.
	Speed   float64
	Loop    bool
	Sleeper Sleeper
}

// Source plays capture records back one byte at a time. The gap before
// each burst is slept (scaled by Speed) and every burst boundary reads as
// ubx.ErrTimeout, the way the quiet line looked when it was recorded. A
// non-looping Source returns io.EOF after the last burst.
type Source struct {
	recs  []Record
	speed float64
	loop  bool
	sleep Sleeper

	idx      int
	cur      []byte
	pos      int
	origin   time.Duration
	lastAt   time.Duration
	haveLast bool
}

func NewSource(recs []Record, opts Options) (*Source, error) {
	if opts.Speed == 0 {
		opts.Speed = 1
	}
	if opts.Speed < 0 {
		return nil, fmt.Errorf("replay speed must be > 0")
	}
	if opts.Sleeper == nil {
		opts.Sleeper = realSleeper{}
	}
	hasData := false
	for _, r := range recs {
		if len(r.Chunk) > 0 {
			hasData = true
			break
		}
	}
	if !hasData {
		return nil, errors.New("no records")
	}
	return &Source{recs: recs, speed: opts.Speed, loop: opts.Loop, sleep: opts.Sleeper}, nil
}

// OpenFile reads a whole capture file into a Source.
func OpenFile(path string, opts Options) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read capture %s: %w", path, err)
	}
	return NewSource(recs, opts)
}

func (s *Source) ReadByte() (byte, error) {
	for {
		if s.cur != nil {
			if s.pos < len(s.cur) {
				b := s.cur[s.pos]
				s.pos++
				return b, nil
			}
			s.cur = nil
			return 0, ubx.ErrTimeout
		}

		if s.idx >= len(s.recs) {
			if !s.loop {
				return 0, io.EOF
			}
			s.idx = 0
			s.origin, s.lastAt, s.haveLast = 0, 0, false
		}
		r := s.recs[s.idx]
		s.idx++

		if r.Chunk == nil {
			s.origin = r.At
			s.lastAt = 0
			s.haveLast = false
			continue
		}
		if len(r.Chunk) == 0 {
			continue
		}

		at := r.At - s.origin
		if at < 0 {
			at = 0
		}
		if s.haveLast {
			wait := at - s.lastAt
			if wait > 0 {
				s.sleep.Sleep(time.Duration(float64(wait) / s.speed))
			}
		}
		s.lastAt = at
		s.haveLast = true
		s.cur = r.Chunk
		s.pos = 0
	}
}
