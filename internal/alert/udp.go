package alert

import (
	"context"
	"io"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"spoofwatch/internal/udp"
	"spoofwatch/internal/validate"
)

// Datagram is the JSON body of one UDP alert.
type Datagram struct {
	Time        time.Time          `json:"time"`
	Layer       validate.Layer     `json:"layer"`
	SatelliteID uint32             `json:"satellite_id"`
	Status      validate.Status    `json:"status"`
	Reason      string             `json:"reason,omitempty"`
	Observed    map[string]float64 `json:"observed,omitempty"`
	Thresholds  map[string]float64 `json:"thresholds,omitempty"`
	Exceeded    []string           `json:"exceeded,omitempty"`
}

type jsonSender interface {
	SendJSON(v any) error
	Close() error
}

// UDPSink sends one datagram per FAIL verdict. Passes and skips are not sent.
type UDPSink struct {
	out    jsonSender
	logger *log.Logger
	now    func() time.Time
}

func NewUDPSink(dest string, logger *log.Logger) (*UDPSink, error) {
	b, err := udp.NewBroadcaster(dest)
	if err != nil {
		return nil, err
	}
	return newUDPSink(b, logger), nil
}

func newUDPSink(out jsonSender, logger *log.Logger) *UDPSink {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &UDPSink{out: out, logger: logger, now: time.Now}
}

func (s *UDPSink) Fail(_ context.Context, v validate.Verdict) {
	d := Datagram{
		Time:        s.now().UTC(),
		Layer:       v.Layer,
		SatelliteID: v.SatelliteID,
		Status:      v.Status,
		Reason:      v.Reason,
		Observed:    finiteValues(v.Observed),
		Thresholds:  v.Thresholds,
		Exceeded:    v.Exceeded,
	}
	// Nobody listening is normal for UDP alerts.
	if err := s.out.SendJSON(d); err != nil {
		s.logger.Debug("udp alert not delivered", "err", err)
	}
}

// finiteValues drops NaN and Inf entries, which JSON cannot carry.
func finiteValues(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, x := range m {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		out[k] = x
	}
	return out
}

func (s *UDPSink) Pass(context.Context, validate.Verdict) {}
func (s *UDPSink) Skip(context.Context, validate.Verdict) {}

func (s *UDPSink) Close() error { return s.out.Close() }
