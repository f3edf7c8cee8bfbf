package alert

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/patrickmn/go-cache"

	"spoofwatch/internal/validate"
)

// LogSink writes FAIL verdicts as warnings and summarizes passes.
//
// A FAIL for the same (layer, satellite) within RepeatWindow of the last
// logged one is counted instead of logged; when the window lapses the count
// is reported once.
type LogSink struct {
	logger       *log.Logger
	summaryEvery int

	recent *cache.Cache

	mu     sync.Mutex
	passes map[validate.Layer]uint64
	skips  map[validate.Layer]uint64
}

type LogOptions struct {
	RepeatWindow     time.Duration
	PassSummaryEvery int
}

func NewLogSink(logger *log.Logger, opts LogOptions) *LogSink {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &LogSink{
		logger:       logger,
		summaryEvery: opts.PassSummaryEvery,
		passes:       make(map[validate.Layer]uint64),
		skips:        make(map[validate.Layer]uint64),
	}
	if opts.RepeatWindow > 0 {
		s.recent = cache.New(opts.RepeatWindow, 2*opts.RepeatWindow)
		s.recent.OnEvicted(func(key string, v interface{}) {
			if n, ok := v.(int); ok && n > 0 {
				s.logger.Warn("repeated alerts suppressed", "alert", key, "count", n)
			}
		})
	}
	return s
}

func (s *LogSink) Fail(_ context.Context, v validate.Verdict) {
	if s.suppressed(v) {
		return
	}
	kv := []interface{}{"layer", v.Layer, "satellite", v.SatelliteID, "exceeded", v.Exceeded}
	if v.Reason != "" {
		kv = append(kv, "reason", v.Reason)
	}
	for _, k := range sortedKeys(v.Observed) {
		kv = append(kv, k, v.Observed[k])
	}
	for _, k := range sortedKeys(v.Thresholds) {
		kv = append(kv, "limit_"+k, v.Thresholds[k])
	}
	s.logger.Warn(failMessage(v.Layer), kv...)
}

func (s *LogSink) Pass(_ context.Context, v validate.Verdict) {
	s.mu.Lock()
	s.passes[v.Layer]++
	n := s.passes[v.Layer]
	s.mu.Unlock()

	s.logger.Debug("validation passed", "layer", v.Layer, "satellite", v.SatelliteID, "reason", v.Reason)
	if s.summaryEvery > 0 && n%uint64(s.summaryEvery) == 0 {
		s.logger.Info("validation progress", "layer", v.Layer, "passes", n)
	}
}

func (s *LogSink) Skip(_ context.Context, v validate.Verdict) {
	s.mu.Lock()
	s.skips[v.Layer]++
	s.mu.Unlock()
	s.logger.Debug("validation skipped", "layer", v.Layer, "satellite", v.SatelliteID, "reason", v.Reason)
}

// Passes returns the number of PASS verdicts seen for layer.
func (s *LogSink) Passes(layer validate.Layer) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passes[layer]
}

func (s *LogSink) suppressed(v validate.Verdict) bool {
	if s.recent == nil {
		return false
	}
	key := fmt.Sprintf("%s/%d", v.Layer, v.SatelliteID)
	if err := s.recent.Add(key, 0, cache.DefaultExpiration); err == nil {
		return false
	}
	_, _ = s.recent.IncrementInt(key, 1)
	return true
}

func failMessage(l validate.Layer) string {
	switch l {
	case validate.LayerAlmanac:
		return "almanac mismatch against reference"
	case validate.LayerEphemeris:
		return "ephemeris position implausible"
	default:
		return "validation failed"
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
