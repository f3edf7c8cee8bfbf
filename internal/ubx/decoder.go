package ubx

import (
	"encoding/binary"
	"errors"
)

// ErrTimeout is returned by a ByteSource when no byte arrived within its read
// timeout. The decoder treats it as "no record yet".
var ErrTimeout = errors.New("ubx: read timeout")

// ByteSource yields one byte at a time. *bufio.Reader satisfies it.
type ByteSource interface {
	ReadByte() (byte, error)
}

// Reason names why a candidate frame was thrown away.
type Reason string

const (
	ReasonBadChecksum  Reason = "bad_checksum"
	ReasonUnknownType  Reason = "unknown_type"
	ReasonShortPayload Reason = "short_payload"
	ReasonOversize     Reason = "oversize"
)

// Stats are cumulative decoder counters.
type Stats struct {
	Almanacs     uint64 `json:"almanacs"`
	Ephemerides  uint64 `json:"ephemerides"`
	BadChecksum  uint64 `json:"bad_checksum"`
	UnknownType  uint64 `json:"unknown_type"`
	ShortPayload uint64 `json:"short_payload"`
	Oversize     uint64 `json:"oversize"`
	SkippedBytes uint64 `json:"skipped_bytes"`
}

// Discarded is the total number of rejected frames.
func (s Stats) Discarded() uint64 {
	return s.BadChecksum + s.UnknownType + s.ShortPayload + s.Oversize
}

type Options struct {
	// MaxPayload rejects frames declaring a longer payload. Defaults to
	// DefaultMaxPayload; values below EphemerisLayout.Size are raised to it.
	MaxPayload int
	// OnDiscard, when set, is called for every rejected frame.
	OnDiscard func(r Reason, t MessageType)
}

// Decoder finds, verifies and decodes almanac and ephemeris frames in a byte
// stream. It is not safe for concurrent use.
//
// Partial frames survive ErrTimeout, so a frame split across reads is still
// assembled. After a rejected frame the bytes following its sync marker are
// scanned again, so a real frame hidden inside a bogus one is not lost.
type Decoder struct {
	src  ByteSource
	opts Options

	prev     byte
	havePrev bool

	buf  []byte
	want int

	rescan []byte
	stats  Stats
}

func NewDecoder(src ByteSource, opts Options) *Decoder {
	switch {
	case opts.MaxPayload <= 0:
		opts.MaxPayload = DefaultMaxPayload
	case opts.MaxPayload < EphemerisLayout.Size:
		opts.MaxPayload = EphemerisLayout.Size
	}
	return &Decoder{
		src:  src,
		opts: opts,
		buf:  make([]byte, 0, headerLen+EphemerisLayout.Size+checksumLen),
	}
}

// Next returns the next verified record. It returns (nil, nil) when the
// source timed out before a complete frame arrived. Any other source error
// is returned as is; malformed input never is.
func (d *Decoder) Next() (Message, error) {
	for {
		b, err := d.readByte()
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				return nil, nil
			}
			return nil, err
		}
		if msg := d.push(b); msg != nil {
			return msg, nil
		}
	}
}

func (d *Decoder) Stats() Stats { return d.stats }

func (d *Decoder) readByte() (byte, error) {
	if len(d.rescan) > 0 {
		b := d.rescan[0]
		d.rescan = d.rescan[1:]
		return b, nil
	}
	return d.src.ReadByte()
}

func (d *Decoder) push(b byte) Message {
	if len(d.buf) == 0 {
		if d.havePrev && d.prev == Sync1 && b == Sync2 {
			d.buf = append(d.buf, Sync1, Sync2)
			d.havePrev = false
			return nil
		}
		if d.havePrev {
			d.stats.SkippedBytes++
		}
		d.prev, d.havePrev = b, true
		return nil
	}

	d.buf = append(d.buf, b)

	if len(d.buf) == headerLen {
		t := MessageType{Class: d.buf[2], ID: d.buf[3]}
		length := int(binary.LittleEndian.Uint16(d.buf[4:6]))
		var minLen int
		switch t {
		case TypeAlmanac:
			minLen = AlmanacLayout.Size
		case TypeEphemeris:
			minLen = EphemerisLayout.Size
		default:
			d.reject(ReasonUnknownType, t)
			return nil
		}
		if length < minLen {
			d.reject(ReasonShortPayload, t)
			return nil
		}
		if length > d.opts.MaxPayload {
			d.reject(ReasonOversize, t)
			return nil
		}
		d.want = headerLen + length + checksumLen
		return nil
	}

	if len(d.buf) < headerLen || len(d.buf) < d.want {
		return nil
	}

	t := MessageType{Class: d.buf[2], ID: d.buf[3]}
	ckA, ckB := Checksum(d.buf[2 : d.want-checksumLen])
	if ckA != d.buf[d.want-2] || ckB != d.buf[d.want-1] {
		d.reject(ReasonBadChecksum, t)
		return nil
	}

	payload := d.buf[headerLen : d.want-checksumLen]
	var msg Message
	switch t {
	case TypeAlmanac:
		rec, err := AlmanacLayout.Decode(payload)
		if err == nil {
			msg = rec
			d.stats.Almanacs++
		}
	case TypeEphemeris:
		rec, err := EphemerisLayout.Decode(payload)
		if err == nil {
			msg = rec
			d.stats.Ephemerides++
		}
	}
	d.reset()
	return msg
}

func (d *Decoder) reject(r Reason, t MessageType) {
	switch r {
	case ReasonBadChecksum:
		d.stats.BadChecksum++
	case ReasonUnknownType:
		d.stats.UnknownType++
	case ReasonShortPayload:
		d.stats.ShortPayload++
	case ReasonOversize:
		d.stats.Oversize++
	}
	if d.opts.OnDiscard != nil {
		d.opts.OnDiscard(r, t)
	}

	// Everything after the rejected sync marker goes back through the hunter.
	tail := make([]byte, 0, len(d.buf)-2+len(d.rescan))
	tail = append(tail, d.buf[2:]...)
	d.rescan = append(tail, d.rescan...)
	d.reset()
}

func (d *Decoder) reset() {
	d.buf = d.buf[:0]
	d.want = 0
	d.havePrev = false
}
