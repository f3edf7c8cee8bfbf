package alert

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"spoofwatch/internal/validate"
)

// outputLine is a single digital output.
type outputLine interface {
	SetValue(v int) error
	Close() error
}

// GPIOSink raises an alarm line on FAIL and drops it once Hold has passed
// without another FAIL.
type GPIOSink struct {
	line   outputLine
	hold   time.Duration
	logger *log.Logger

	mu     sync.Mutex
	timer  *time.Timer
	until  time.Time
	raised bool
	closed bool
}

// NewGPIOSink opens the named line (e.g. "GPIO17") as an output driven low.
func NewGPIOSink(lineName string, hold time.Duration, logger *log.Logger) (*GPIOSink, error) {
	line, err := openAlarmLineFn(lineName)
	if err != nil {
		return nil, err
	}
	return newGPIOSink(line, hold, logger), nil
}

func newGPIOSink(line outputLine, hold time.Duration, logger *log.Logger) *GPIOSink {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if hold <= 0 {
		hold = 5 * time.Second
	}
	return &GPIOSink{line: line, hold: hold, logger: logger}
}

func (g *GPIOSink) Fail(context.Context, validate.Verdict) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	if !g.raised {
		if err := g.line.SetValue(1); err != nil {
			g.logger.Warn("alarm line set failed", "err", err)
			return
		}
		g.raised = true
	}
	g.until = time.Now().Add(g.hold)
	if g.timer == nil {
		g.timer = time.AfterFunc(g.hold, g.lower)
	} else {
		g.timer.Reset(g.hold)
	}
}

func (g *GPIOSink) Pass(context.Context, validate.Verdict) {}
func (g *GPIOSink) Skip(context.Context, validate.Verdict) {}

// Raised reports whether the alarm line is currently high.
func (g *GPIOSink) Raised() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.raised
}

func (g *GPIOSink) lower() {
	g.mu.Lock()
	defer g.mu.Unlock()
	// A Fail that raced the timer pushed the deadline out.
	if !g.raised || g.closed || time.Now().Before(g.until) {
		return
	}
	if err := g.line.SetValue(0); err != nil {
		g.logger.Warn("alarm line clear failed", "err", err)
		return
	}
	g.raised = false
}

// Close drives the line low and releases it.
func (g *GPIOSink) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	if g.timer != nil {
		g.timer.Stop()
	}
	_ = g.line.SetValue(0)
	g.raised = false
	return g.line.Close()
}
