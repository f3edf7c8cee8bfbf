package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Receiver   ReceiverConfig   `yaml:"receiver"`
	Reference  ReferenceConfig  `yaml:"reference"`
	Validation ValidationConfig `yaml:"validation"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Log        LogConfig        `yaml:"log"`
	Web        WebConfig        `yaml:"web"`
	Sim        SimConfig        `yaml:"sim"`
}

type ReceiverConfig struct {
	Device       string        `yaml:"device"` // empty = auto-detect
	Baud         int           `yaml:"baud"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPayload   int           `yaml:"max_payload"`
	Capture      CaptureConfig `yaml:"capture"`
	Replay       ReplayConfig  `yaml:"replay"`
}

type CaptureConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type ReplayConfig struct {
	Enable bool    `yaml:"enable"`
	Path   string  `yaml:"path"`
	Speed  float64 `yaml:"speed"`
	Loop   bool    `yaml:"loop"`
}

type ReferenceConfig struct {
	Path         string        `yaml:"path"`
	URL          string        `yaml:"url"`
	Fetch        *bool         `yaml:"fetch"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// FetchEnabled reports whether the reference should be downloaded at
// startup. Unset means yes.
func (r ReferenceConfig) FetchEnabled() bool {
	return r.Fetch == nil || *r.Fetch
}

// ValidationConfig holds the absolute thresholds. Unset fields take the
// defaults; an explicit 0 demands an exact match. All three are non-nil after
// DefaultAndValidate.
type ValidationConfig struct {
	SqrtATolerance        *float64 `yaml:"sqrt_a_tolerance"`
	EccentricityTolerance *float64 `yaml:"eccentricity_tolerance"`
	PositionToleranceM    *float64 `yaml:"position_tolerance_m"`
}

type AlertsConfig struct {
	RepeatWindow     time.Duration   `yaml:"repeat_window"`
	PassSummaryEvery int             `yaml:"pass_summary_every"`
	UDP              UDPAlertConfig  `yaml:"udp"`
	GPIO             GPIOAlertConfig `yaml:"gpio"`
}

type UDPAlertConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type GPIOAlertConfig struct {
	Enable bool          `yaml:"enable"`
	Line   string        `yaml:"line"`
	Hold   time.Duration `yaml:"hold"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type SimConfig struct {
	Enable            bool          `yaml:"enable"`
	Satellites        int           `yaml:"satellites"`
	Seed              int64         `yaml:"seed"`
	SpoofPRN          uint32        `yaml:"spoof_prn"`
	SpoofPositionM    float64       `yaml:"spoof_position_m"`
	SpoofEccentricity float64       `yaml:"spoof_eccentricity"`
	Interval          time.Duration `yaml:"interval"`
	Epochs            int           `yaml:"epochs"`
	Scenario          string        `yaml:"scenario"`
	Loop              bool          `yaml:"loop"`
	ReferenceOut      string        `yaml:"reference_out"`
}

// minMaxPayload is the ephemeris payload size; a lower receiver.max_payload
// would discard every ephemeris frame.
const minMaxPayload = 180

var (
	supportedBauds = []int{4800, 9600, 19200, 38400, 57600, 115200}
	logLevels      = []string{"debug", "info", "warn", "error"}
	logFormats     = []string{"text", "json", "logfmt"}
)

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	if err := DefaultAndValidate(&cfg); err != nil {
		panic(err)
	}
	return cfg
}

// DefaultAndValidate fills unset fields and rejects inconsistent settings.
// Call it again after applying command-line overrides.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	r := &cfg.Receiver
	r.Device = strings.TrimSpace(r.Device)
	if r.Baud == 0 {
		r.Baud = 9600
	}
	if !containsInt(supportedBauds, r.Baud) {
		return fmt.Errorf("receiver.baud %d is not supported (want one of %v)", r.Baud, supportedBauds)
	}
	if r.ReadTimeout <= 0 {
		r.ReadTimeout = 1 * time.Second
	}
	if r.ReadTimeout > 25500*time.Millisecond {
		return fmt.Errorf("receiver.read_timeout must be <= 25.5s")
	}
	if r.PollInterval <= 0 {
		r.PollInterval = 100 * time.Millisecond
	}
	if r.MaxPayload < 0 {
		return fmt.Errorf("receiver.max_payload must be >= 0")
	}
	if r.MaxPayload > 0 && r.MaxPayload < minMaxPayload {
		return fmt.Errorf("receiver.max_payload must be 0 or >= %d", minMaxPayload)
	}
	if r.Capture.Enable && r.Capture.Path == "" {
		return fmt.Errorf("receiver.capture.path is required when receiver.capture.enable is true")
	}
	if r.Replay.Enable {
		if r.Replay.Path == "" {
			return fmt.Errorf("receiver.replay.path is required when receiver.replay.enable is true")
		}
		if r.Replay.Speed == 0 {
			r.Replay.Speed = 1
		}
		if r.Replay.Speed < 0 {
			return fmt.Errorf("receiver.replay.speed must be > 0")
		}
	}
	if r.Capture.Enable && r.Replay.Enable {
		return fmt.Errorf("receiver.capture and receiver.replay cannot both be enabled")
	}

	ref := &cfg.Reference
	if ref.Path == "" {
		ref.Path = "latest.alm"
	}
	if ref.FetchTimeout <= 0 {
		ref.FetchTimeout = 30 * time.Second
	}

	v := &cfg.Validation
	for _, tol := range []struct {
		p   **float64
		def float64
	}{
		{&v.SqrtATolerance, 51.536},
		{&v.EccentricityTolerance, 1e-4},
		{&v.PositionToleranceM, 1000},
	} {
		if *tol.p == nil {
			d := tol.def
			*tol.p = &d
		}
		x := **tol.p
		if x < 0 || math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("validation tolerances must be finite and >= 0")
		}
	}

	a := &cfg.Alerts
	if a.RepeatWindow < 0 {
		return fmt.Errorf("alerts.repeat_window must be >= 0")
	}
	if a.RepeatWindow == 0 {
		a.RepeatWindow = 30 * time.Second
	}
	if a.PassSummaryEvery < 0 {
		return fmt.Errorf("alerts.pass_summary_every must be >= 0")
	}
	if a.PassSummaryEvery == 0 {
		a.PassSummaryEvery = 100
	}
	if a.UDP.Enable && strings.TrimSpace(a.UDP.Dest) == "" {
		return fmt.Errorf("alerts.udp.dest is required when alerts.udp.enable is true")
	}
	if a.GPIO.Enable && strings.TrimSpace(a.GPIO.Line) == "" {
		return fmt.Errorf("alerts.gpio.line is required when alerts.gpio.enable is true")
	}
	if a.GPIO.Hold <= 0 {
		a.GPIO.Hold = 5 * time.Second
	}

	l := &cfg.Log
	l.Level = strings.ToLower(strings.TrimSpace(l.Level))
	if l.Level == "" {
		l.Level = "info"
	}
	if !containsString(logLevels, l.Level) {
		return fmt.Errorf("log.level %q is invalid (want one of %v)", l.Level, logLevels)
	}
	l.Format = strings.ToLower(strings.TrimSpace(l.Format))
	if l.Format == "" {
		l.Format = "text"
	}
	if !containsString(logFormats, l.Format) {
		return fmt.Errorf("log.format %q is invalid (want one of %v)", l.Format, logFormats)
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	s := &cfg.Sim
	if s.Satellites == 0 {
		s.Satellites = 8
	}
	if s.Satellites < 1 || s.Satellites > 32 {
		return fmt.Errorf("sim.satellites must be in [1,32]")
	}
	if s.SpoofPRN > 32 {
		return fmt.Errorf("sim.spoof_prn must be in [0,32]")
	}
	if s.Seed == 0 {
		s.Seed = 1
	}
	if s.Interval <= 0 {
		s.Interval = 1 * time.Second
	}
	if s.Epochs < 0 {
		return fmt.Errorf("sim.epochs must be >= 0")
	}
	if s.ReferenceOut == "" {
		s.ReferenceOut = "sim.alm"
	}
	if s.Enable && r.Replay.Enable {
		return fmt.Errorf("sim and receiver.replay cannot both be enabled")
	}

	return nil
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
