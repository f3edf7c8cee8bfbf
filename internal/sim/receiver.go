package sim

import (
	"bytes"
	"io"
	"sync/atomic"
	"time"

	"spoofwatch/internal/ubx"
)

// Config describes the simulated receiver.
//
// Spoof applies to SpoofPRN for the whole run; a Scenario adds timed spoofing
// on top and wins for the satellites it names.
type Config struct {
	Satellites int
	Seed       int64
	Interval   time.Duration // simulated and wall time between epochs
	Epochs     int           // 0 = run until closed
	Week       uint32
	TOA        uint32

	SpoofPRN uint32
	Spoof    Spoof
	Scenario *Scenario
	Loop     bool // loop the scenario timeline
}

// Receiver is a ubx.ByteSource. Each epoch it broadcasts an almanac and an
// ephemeris per satellite, then reads as ubx.ErrTimeout until the next epoch
// is due.
type Receiver struct {
	cfg  Config
	sats []Satellite

	now   func() time.Time
	sleep func(time.Duration)
	idle  time.Duration

	buf     []byte
	pos     int
	drained bool
	epoch   int
	start   time.Time
	closed  atomic.Bool
}

func NewReceiver(cfg Config) *Receiver {
	if cfg.Satellites <= 0 {
		cfg.Satellites = 8
	}
	if cfg.Satellites > 32 {
		cfg.Satellites = 32
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Week == 0 {
		cfg.Week = DefaultWeek
	}
	if cfg.TOA == 0 {
		cfg.TOA = DefaultTOA
	}
	return &Receiver{
		cfg:   cfg,
		sats:  NewConstellation(cfg.Satellites, cfg.Seed),
		now:   time.Now,
		sleep: time.Sleep,
		idle:  100 * time.Millisecond,
	}
}

// Satellites returns the honest constellation, as the reference should
// describe it.
func (r *Receiver) Satellites() []Satellite {
	return append([]Satellite(nil), r.sats...)
}

// WriteReference writes the honest constellation as a YUMA file.
func (r *Receiver) WriteReference(w io.Writer) error {
	return WriteYUMA(w, r.sats, r.cfg.Week, r.cfg.TOA)
}

func (r *Receiver) ReadByte() (byte, error) {
	for {
		if r.closed.Load() {
			return 0, io.EOF
		}
		if r.pos < len(r.buf) {
			b := r.buf[r.pos]
			r.pos++
			return b, nil
		}
		if !r.drained && r.buf != nil {
			r.drained = true
			return 0, ubx.ErrTimeout
		}
		if r.cfg.Epochs > 0 && r.epoch >= r.cfg.Epochs {
			return 0, io.EOF
		}

		now := r.now()
		if r.start.IsZero() {
			r.start = now
		}
		due := r.start.Add(time.Duration(r.epoch) * r.cfg.Interval)
		if wait := due.Sub(now); wait > 0 {
			if wait > r.idle {
				wait = r.idle
			}
			r.sleep(wait)
			return 0, ubx.ErrTimeout
		}

		r.buf = r.epochFrames(r.epoch)
		r.pos = 0
		r.drained = false
		r.epoch++
	}
}

// Close makes every further read return io.EOF.
func (r *Receiver) Close() error {
	r.closed.Store(true)
	return nil
}

// Epoch returns the number of epochs generated so far.
func (r *Receiver) Epoch() int { return r.epoch }

func (r *Receiver) epochFrames(epoch int) []byte {
	elapsed := time.Duration(epoch) * r.cfg.Interval
	tow := float64(r.cfg.TOA) + elapsed.Seconds()

	spoofs := r.cfg.Scenario.SpoofAt(elapsed, r.cfg.Loop)

	var out bytes.Buffer
	for _, s := range r.sats {
		sp, ok := spoofs[s.PRN]
		if !ok && s.PRN == r.cfg.SpoofPRN {
			sp = r.cfg.Spoof
		}

		alm := s.Almanac(r.cfg.Week, r.cfg.TOA)
		alm.IssueOfData = uint32(epoch)
		alm.Eccentricity += sp.EccentricityBias
		eph := Ephemeris(alm, tow)
		eph.IssueOfData = uint8(epoch)
		eph.Position.X += sp.PositionOffsetM

		out.Write(ubx.EncodeAlmanac(alm))
		out.Write(ubx.EncodeEphemeris(eph))
	}
	return out.Bytes()
}
