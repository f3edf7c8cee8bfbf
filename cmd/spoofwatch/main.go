package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"spoofwatch/internal/config"
)

const defaultConfigPath = "./spoofwatch.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "spoofwatch: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	device     string
	baud       int
	reference  string
	noFetch    bool
	logLevel   string
	sim        bool
	replay     string
	capture    string
	webListen  string
	summarize  string
}

func parseArgs(args []string, stderr io.Writer) (options, *pflag.FlagSet, error) {
	var o options
	fs := pflag.NewFlagSet("spoofwatch", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&o.configPath, "config", "c", defaultConfigPath, "Path to YAML config")
	fs.StringVarP(&o.device, "device", "d", "", "Receiver serial device (empty = auto-detect)")
	fs.IntVarP(&o.baud, "baud", "b", 0, "Receiver baud rate")
	fs.StringVarP(&o.reference, "reference", "r", "", "Reference almanac file")
	fs.BoolVar(&o.noFetch, "no-fetch", false, "Do not download the reference almanac at startup")
	fs.StringVarP(&o.logLevel, "log-level", "l", "", "Log level: debug, info, warn, error")
	fs.BoolVar(&o.sim, "sim", false, "Read from the built-in receiver simulator")
	fs.StringVar(&o.replay, "replay", "", "Replay a capture file instead of reading a device")
	fs.StringVar(&o.capture, "capture", "", "Record raw receiver bytes to a capture file")
	fs.StringVar(&o.webListen, "web", "", "Serve the status API on this address")
	fs.StringVar(&o.summarize, "summarize", "", "Print a summary of a capture file and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: spoofwatch [options] [device] [reference]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return o, fs, err
	}

	pos := fs.Args()
	if len(pos) > 2 {
		fs.Usage()
		return o, fs, fmt.Errorf("at most two positional arguments (device, reference), got %d", len(pos))
	}
	if len(pos) >= 1 && o.device == "" {
		o.device = pos[0]
	}
	if len(pos) == 2 && o.reference == "" {
		o.reference = pos[1]
	}
	return o, fs, nil
}

// loadConfig reads the config file. The default path may be absent, in
// which case built-in defaults apply; an explicitly named file must exist.
func loadConfig(o options, fs *pflag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !fs.Changed("config") {
			return config.Default(), nil
		}
		return config.Config{}, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config, o options) error {
	if o.device != "" {
		cfg.Receiver.Device = o.device
	}
	if o.baud != 0 {
		cfg.Receiver.Baud = o.baud
	}
	if o.reference != "" {
		cfg.Reference.Path = o.reference
	}
	if o.noFetch {
		off := false
		cfg.Reference.Fetch = &off
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.sim {
		cfg.Sim.Enable = true
	}
	if o.replay != "" {
		cfg.Receiver.Replay.Enable = true
		cfg.Receiver.Replay.Path = o.replay
	}
	if o.capture != "" {
		cfg.Receiver.Capture.Enable = true
		cfg.Receiver.Capture.Path = o.capture
	}
	if o.webListen != "" {
		cfg.Web.Enable = true
		cfg.Web.Listen = o.webListen
	}
	return config.DefaultAndValidate(cfg)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, fs, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}
	if o.summarize != "" {
		return printCaptureSummary(o.summarize, stdout)
	}

	cfg, err := loadConfig(o, fs)
	if err != nil {
		return err
	}
	if err := applyOverrides(&cfg, o); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	rt, err := newLiveRuntime(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}
