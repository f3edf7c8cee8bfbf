// Package web serves the read-only status surface: the ingest snapshot, the
// satellite track table, Prometheus metrics and the recent log tail.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"time"

	"spoofwatch/internal/track"
)

// SatelliteLister is the read side of the track table.
type SatelliteLister interface {
	Snapshot(nowUTC time.Time) []track.Satellite
}

type SatellitesResponse struct {
	NowUTC     string            `json:"now_utc"`
	Count      int               `json:"count"`
	Satellites []track.Satellite `json:"satellites"`
}

// Handler builds the status mux. sats, metrics and logs are optional; their
// routes answer 404 when absent.
func Handler(status *Status, sats SatelliteLister, metrics http.Handler, logs *LogBuffer) http.Handler {
	if status == nil {
		status = NewStatus()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		writeJSON(w, status.Snapshot(time.Now().UTC()))
	})

	mux.HandleFunc("/api/satellites", func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		if sats == nil {
			http.NotFound(w, r)
			return
		}
		now := time.Now().UTC()
		rows := sats.Snapshot(now)
		if rows == nil {
			rows = []track.Satellite{}
		}
		writeJSON(w, SatellitesResponse{
			NowUTC:     now.Format(time.RFC3339Nano),
			Count:      len(rows),
			Satellites: rows,
		})
	})

	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if !allowGet(w, r) {
			return
		}
		snap := status.Snapshot(time.Now().UTC())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = fmt.Fprintf(w, indexHTML, html.EscapeString(snap.Service), snap.UptimeSec, snap.Reference.Satellites)
	})

	return mux
}

const indexHTML = `<!doctype html>
<html><head><meta charset="utf-8"><title>%s</title></head>
<body>
<p>uptime %ds, %d reference satellites</p>
<ul>
<li><a href="/api/status">/api/status</a></li>
<li><a href="/api/satellites">/api/satellites</a></li>
<li><a href="/metrics">/metrics</a></li>
<li><a href="/api/logs?format=text">/api/logs</a></li>
</ul>
</body></html>
`

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", http.MethodGet)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

// Serve runs h on listenAddr until ctx is cancelled.
func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
