package gps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"spoofwatch/internal/alert"
	"spoofwatch/internal/track"
	"spoofwatch/internal/ubx"
	"spoofwatch/internal/validate"
)

const DefaultPollInterval = 100 * time.Millisecond

// Config controls the ingest loop.
//
// Source is only a label for the snapshot (device path, replay file, "sim").
type Config struct {
	Source       string
	PollInterval time.Duration
	MaxPayload   int
}

// DiscardCounter is told about every frame the decoder rejects.
type DiscardCounter interface {
	Discard(reason string)
}

// Deps are the collaborators the loop drives. Bytes, Table and Engine are
// required.
type Deps struct {
	Bytes    ubx.ByteSource
	Table    *track.Table
	Engine   *validate.Engine
	Sink     alert.Sink
	Discards DiscardCounter
	Logger   *log.Logger
	Now      func() time.Time
}

type LayerCounts struct {
	Pass    uint64 `json:"pass"`
	Fail    uint64 `json:"fail"`
	Skipped uint64 `json:"skipped"`
}

type Snapshot struct {
	Running    bool      `json:"running"`
	Source     string    `json:"source,omitempty"`
	Iterations uint64    `json:"iterations"`
	Decoder    ubx.Stats `json:"decoder"`

	Almanac   LayerCounts `json:"almanac"`
	Ephemeris LayerCounts `json:"ephemeris"`

	LastFrameUTC string `json:"last_frame_utc,omitempty"`
	LastAlertUTC string `json:"last_alert_utc,omitempty"`
	LastError    string `json:"last_error,omitempty"`
}

// Service runs the single-goroutine ingest loop: each iteration decodes at
// most one almanac and one ephemeris, then sleeps PollInterval. A second
// frame of a type already handled in the iteration is held for the next one.
type Service struct {
	cfg  Config
	deps Deps

	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	last atomic.Value // Snapshot

	mu  sync.Mutex
	err error // terminal read error, guarded by mu

	// Owned by the loop goroutine.
	iterations uint64
	almanac    LayerCounts
	ephemeris  LayerCounts
	lastFrame  time.Time
	lastAlert  time.Time
}

func New(cfg Config, deps Deps) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Service{cfg: cfg, deps: deps, done: make(chan struct{})}
	s.last.Store(Snapshot{Source: cfg.Source})
	return s
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}
	if s.deps.Bytes == nil || s.deps.Table == nil || s.deps.Engine == nil {
		return fmt.Errorf("gps service: byte source, track table and engine are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	cur := s.Snapshot()
	cur.Running = true
	s.last.Store(cur)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.done)
		s.run(childCtx)
	}()

	s.deps.Logger.Info("ingest started", "source", s.cfg.Source, "poll", s.cfg.PollInterval)
	return nil
}

// Done is closed once the loop has exited, either on shutdown or because
// the byte source ended.
func (s *Service) Done() <-chan struct{} { return s.done }

// Close stops the loop. A byte source that is also an io.Closer is closed to
// unblock a pending read.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c, ok := s.deps.Bytes.(io.Closer); ok {
		_ = c.Close()
	}
	s.wg.Wait()
}

// Err returns the read error that ended the loop. Shutdown and a source that
// ran out (io.EOF) report nil.
func (s *Service) Err() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	return v.(Snapshot)
}

func (s *Service) run(ctx context.Context) {
	dec := ubx.NewDecoder(s.deps.Bytes, ubx.Options{
		MaxPayload: s.cfg.MaxPayload,
		OnDiscard:  s.onDiscard,
	})

	var pending ubx.Message
	for {
		if ctx.Err() != nil {
			s.stop(dec.Stats(), "")
			return
		}

		var err error
		pending, err = s.iterate(ctx, dec, pending)
		s.iterations++
		if err != nil {
			if ctx.Err() != nil {
				s.stop(dec.Stats(), "")
				return
			}
			if errors.Is(err, io.EOF) {
				s.deps.Logger.Info("byte source ended", "source", s.cfg.Source)
				s.stop(dec.Stats(), "source ended")
				return
			}
			s.deps.Logger.Error("byte source failed", "source", s.cfg.Source, "err", err)
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			s.stop(dec.Stats(), fmt.Sprintf("read stopped: %v", err))
			return
		}
		s.publish(dec.Stats(), true)

		t := time.NewTimer(s.cfg.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
}

// iterate handles at most one record of each type. It returns the first
// record that did not fit, to be handled next time.
func (s *Service) iterate(ctx context.Context, dec *ubx.Decoder, pending ubx.Message) (ubx.Message, error) {
	var seenAlm, seenEph bool
	take := func(m ubx.Message) bool {
		switch m.Type() {
		case ubx.TypeAlmanac:
			if seenAlm {
				return false
			}
			seenAlm = true
		case ubx.TypeEphemeris:
			if seenEph {
				return false
			}
			seenEph = true
		}
		s.handle(ctx, m)
		return true
	}

	if pending != nil {
		take(pending)
	}
	for !(seenAlm && seenEph) {
		msg, err := dec.Next()
		if err != nil {
			return nil, err
		}
		if msg == nil {
			return nil, nil
		}
		if !take(msg) {
			return msg, nil
		}
	}
	return nil, nil
}

func (s *Service) handle(ctx context.Context, m ubx.Message) {
	now := s.deps.Now().UTC()
	s.lastFrame = now

	var v validate.Verdict
	switch r := m.(type) {
	case ubx.AlmanacRecord:
		s.deps.Table.UpdateAlmanac(now, r)
		v = s.deps.Engine.CheckAlmanac(r)
	case ubx.EphemerisRecord:
		s.deps.Table.UpdateEphemeris(now, r)
		v = s.deps.Engine.CheckEphemeris(r)
	default:
		return
	}

	counts := &s.almanac
	if v.Layer == validate.LayerEphemeris {
		counts = &s.ephemeris
	}
	switch v.Status {
	case validate.Fail:
		counts.Fail++
		s.lastAlert = now
	case validate.Skipped:
		counts.Skipped++
	default:
		counts.Pass++
	}
	alert.Dispatch(ctx, s.deps.Sink, v)
}

func (s *Service) onDiscard(r ubx.Reason, t ubx.MessageType) {
	s.deps.Logger.Debug("frame discarded", "reason", r, "type", t)
	if s.deps.Discards != nil {
		s.deps.Discards.Discard(string(r))
	}
}

func (s *Service) publish(st ubx.Stats, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.Snapshot()
	cur.Running = running
	cur.Iterations = s.iterations
	cur.Decoder = st
	cur.Almanac = s.almanac
	cur.Ephemeris = s.ephemeris
	if !s.lastFrame.IsZero() {
		cur.LastFrameUTC = s.lastFrame.Format(time.RFC3339Nano)
	}
	if !s.lastAlert.IsZero() {
		cur.LastAlertUTC = s.lastAlert.Format(time.RFC3339Nano)
	}
	s.last.Store(cur)
}

func (s *Service) stop(st ubx.Stats, msg string) {
	s.publish(st, false)
	if msg != "" {
		s.setError(msg)
	}
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.Snapshot()
	cur.LastError = msg
	s.last.Store(cur)
}
