package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"spoofwatch/internal/alert"
	"spoofwatch/internal/almanac"
	"spoofwatch/internal/config"
	"spoofwatch/internal/gps"
	"spoofwatch/internal/logging"
	"spoofwatch/internal/replay"
	"spoofwatch/internal/sim"
	"spoofwatch/internal/track"
	"spoofwatch/internal/ubx"
	"spoofwatch/internal/validate"
	"spoofwatch/internal/web"
)

// liveRuntime owns everything built from one configuration.
type liveRuntime struct {
	cfg    config.Config
	logger *log.Logger
	logs   *web.LogBuffer
	status *web.Status

	metrics *alert.Metrics
	table   *track.Table
	svc     *gps.Service

	closers []io.Closer
}

func newLiveRuntime(ctx context.Context, cfg config.Config, stderr io.Writer) (*liveRuntime, error) {
	logs := web.NewLogBuffer(2000)
	logger, err := logging.New(cfg.Log, io.MultiWriter(stderr, logs))
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics, err := alert.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics init failed: %w", err)
	}

	rt := &liveRuntime{
		cfg:     cfg,
		logger:  logger,
		logs:    logs,
		status:  web.NewStatus(),
		metrics: metrics,
		table:   track.NewTable(),
	}

	src, sourceName, refSrc, err := rt.openSource()
	if err != nil {
		return nil, err
	}

	ref := almanac.Load(ctx, refSrc, logger)
	metrics.SetReferenceSatellites(ref.Len())
	rt.status.SetReference(time.Now(), web.ReferenceInfo{Path: refSrc.Path, URL: refSrc.URL, Satellites: ref.Len()})

	tol := validate.Tolerances{
		SqrtA:        *cfg.Validation.SqrtATolerance,
		Eccentricity: *cfg.Validation.EccentricityTolerance,
		Position:     *cfg.Validation.PositionToleranceM,
	}
	rt.status.SetTolerances(tol)

	sink, err := rt.buildSinks()
	if err != nil {
		if c, ok := src.(io.Closer); ok {
			_ = c.Close()
		}
		rt.closeAll()
		return nil, err
	}

	rt.svc = gps.New(gps.Config{
		Source:       sourceName,
		PollInterval: cfg.Receiver.PollInterval,
		MaxPayload:   cfg.Receiver.MaxPayload,
	}, gps.Deps{
		Bytes:    src,
		Table:    rt.table,
		Engine:   validate.New(ref, rt.table, tol),
		Sink:     sink,
		Discards: metrics,
		Logger:   logger,
	})
	rt.status.SetIngest(rt.svc)
	return rt, nil
}

// openSource picks the byte source (simulator, replay or serial device),
// wraps it for capture when asked, and says where the reference almanac
// comes from.
func (rt *liveRuntime) openSource() (ubx.ByteSource, string, almanac.Source, error) {
	cfg := rt.cfg
	refSrc := almanac.Source{
		Path:    cfg.Reference.Path,
		URL:     cfg.Reference.URL,
		Fetch:   cfg.Reference.FetchEnabled(),
		Timeout: cfg.Reference.FetchTimeout,
	}

	var (
		src  ubx.ByteSource
		name string
	)
	switch {
	case cfg.Sim.Enable:
		rcv, err := newSimReceiver(cfg.Sim)
		if err != nil {
			return nil, "", refSrc, err
		}
		if err := writeSimReference(rcv, cfg.Sim.ReferenceOut); err != nil {
			return nil, "", refSrc, err
		}
		refSrc.Path = cfg.Sim.ReferenceOut
		refSrc.Fetch = false
		src, name = rcv, "sim"
		rt.logger.Info("simulator enabled", "satellites", cfg.Sim.Satellites, "seed", cfg.Sim.Seed,
			"spoof_prn", cfg.Sim.SpoofPRN, "reference", cfg.Sim.ReferenceOut)

	case cfg.Receiver.Replay.Enable:
		s, err := replay.OpenFile(cfg.Receiver.Replay.Path, replay.Options{
			Speed: cfg.Receiver.Replay.Speed,
			Loop:  cfg.Receiver.Replay.Loop,
		})
		if err != nil {
			return nil, "", refSrc, fmt.Errorf("replay open failed: %w", err)
		}
		src, name = s, cfg.Receiver.Replay.Path
		rt.logger.Info("replay enabled", "path", name, "speed", cfg.Receiver.Replay.Speed, "loop", cfg.Receiver.Replay.Loop)

	default:
		p, err := gps.OpenSerial(cfg.Receiver.Device, cfg.Receiver.Baud, cfg.Receiver.ReadTimeout)
		if err != nil {
			return nil, "", refSrc, err
		}
		src, name = p, p.Name()
		rt.logger.Info("receiver opened", "device", p.Name(), "baud", p.Baud())
	}

	if cfg.Receiver.Capture.Enable {
		w, err := replay.CreateWriter(cfg.Receiver.Capture.Path)
		if err != nil {
			if c, ok := src.(io.Closer); ok {
				_ = c.Close()
			}
			return nil, "", refSrc, fmt.Errorf("capture open failed: %w", err)
		}
		src = replay.NewTee(src, w)
		rt.logger.Info("capturing receiver bytes", "path", cfg.Receiver.Capture.Path)
	}
	return src, name, refSrc, nil
}

func newSimReceiver(c config.SimConfig) (*sim.Receiver, error) {
	sc := sim.Config{
		Satellites: c.Satellites,
		Seed:       c.Seed,
		Interval:   c.Interval,
		Epochs:     c.Epochs,
		SpoofPRN:   c.SpoofPRN,
		Spoof: sim.Spoof{
			PositionOffsetM:  c.SpoofPositionM,
			EccentricityBias: c.SpoofEccentricity,
		},
		Loop: c.Loop,
	}
	if c.Scenario != "" {
		script, err := sim.LoadScenarioScript(c.Scenario)
		if err != nil {
			return nil, fmt.Errorf("sim scenario load failed: %w", err)
		}
		scn, err := sim.NewScenario(script)
		if err != nil {
			return nil, fmt.Errorf("sim scenario invalid: %w", err)
		}
		sc.Scenario = scn
	}
	return sim.NewReceiver(sc), nil
}

func writeSimReference(rcv *sim.Receiver, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("sim reference dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sim reference create: %w", err)
	}
	if err := rcv.WriteReference(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("sim reference write: %w", err)
	}
	return f.Close()
}

func (rt *liveRuntime) buildSinks() (alert.Sink, error) {
	a := rt.cfg.Alerts
	sinks := alert.Multi{
		alert.NewLogSink(rt.logger, alert.LogOptions{
			RepeatWindow:     a.RepeatWindow,
			PassSummaryEvery: a.PassSummaryEvery,
		}),
		rt.metrics,
	}

	if a.UDP.Enable {
		u, err := alert.NewUDPSink(a.UDP.Dest, rt.logger)
		if err != nil {
			return nil, fmt.Errorf("udp alert sink init failed: %w", err)
		}
		rt.closers = append(rt.closers, u)
		sinks = append(sinks, u)
		rt.logger.Info("udp alerts enabled", "dest", a.UDP.Dest)
	}

	if a.GPIO.Enable {
		g, err := alert.NewGPIOSink(a.GPIO.Line, a.GPIO.Hold, rt.logger)
		if err != nil {
			// Keep running without the alarm output.
			rt.logger.Error("gpio alarm init failed", "line", a.GPIO.Line, "err", err)
		} else {
			rt.closers = append(rt.closers, g)
			sinks = append(sinks, g)
			rt.logger.Info("gpio alarm enabled", "line", a.GPIO.Line, "hold", a.GPIO.Hold)
		}
	}
	return sinks, nil
}

// Run drives the ingest service until ctx is cancelled or the byte source
// ends. Only a failed read is reported as an error.
func (rt *liveRuntime) Run(ctx context.Context) error {
	defer rt.closeAll()

	if err := rt.svc.Start(ctx); err != nil {
		rt.svc.Close()
		return err
	}

	webCtx, stopWeb := context.WithCancel(ctx)
	webDone := make(chan struct{})
	if rt.cfg.Web.Enable {
		h := web.Handler(rt.status, rt.table, rt.metrics.Handler(), rt.logs)
		go func() {
			defer close(webDone)
			rt.logger.Info("status server listening", "addr", rt.cfg.Web.Listen)
			if err := web.Serve(webCtx, rt.cfg.Web.Listen, h); err != nil && !errors.Is(err, context.Canceled) {
				rt.logger.Error("status server stopped", "err", err)
			}
		}()
	} else {
		close(webDone)
	}

	select {
	case <-ctx.Done():
		rt.logger.Info("shutting down")
	case <-rt.svc.Done():
	}
	rt.svc.Close()
	stopWeb()
	<-webDone

	snap := rt.svc.Snapshot()
	rt.logger.Info("ingest stopped",
		"almanac_pass", snap.Almanac.Pass, "almanac_fail", snap.Almanac.Fail,
		"ephemeris_pass", snap.Ephemeris.Pass, "ephemeris_fail", snap.Ephemeris.Fail,
		"ephemeris_skipped", snap.Ephemeris.Skipped, "discarded", snap.Decoder.Discarded())

	if err := rt.svc.Err(); err != nil {
		return fmt.Errorf("receiver read failed: %w", err)
	}
	return nil
}

func (rt *liveRuntime) closeAll() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			rt.logger.Debug("close failed", "err", err)
		}
	}
	rt.closers = nil
}
