package web

import (
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"spoofwatch/internal/gps"
	"spoofwatch/internal/validate"
)

const serviceName = "spoofwatch"

// BuildInfo identifies the running binary.
type BuildInfo struct {
	GoVersion string `json:"go_version"`
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
}

var readBuildInfo = sync.OnceValue(func() BuildInfo {
	b := BuildInfo{GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	b.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			b.Commit = s.Value
		case "vcs.modified":
			b.Dirty = s.Value == "true"
		}
	}
	return b
})

// IngestSnapshotter is the read side of the ingest service.
type IngestSnapshotter interface {
	Snapshot() gps.Snapshot
}

type ReferenceInfo struct {
	Path       string `json:"path,omitempty"`
	URL        string `json:"url,omitempty"`
	Satellites int    `json:"satellites"`
	LoadedUTC  string `json:"loaded_utc,omitempty"`
}

type ToleranceInfo struct {
	SqrtA        float64 `json:"sqrt_a"`
	Eccentricity float64 `json:"eccentricity"`
	PositionM    float64 `json:"position_m"`
}

type ingestRef struct{ src IngestSnapshotter }

type Status struct {
	startUnixNano int64
	ingest        atomic.Value // ingestRef
	reference     atomic.Value // ReferenceInfo
	tolerances    atomic.Value // ToleranceInfo
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.ingest.Store(ingestRef{})
	s.reference.Store(ReferenceInfo{})
	s.tolerances.Store(ToleranceInfo{})
	return s
}

// SetIngest attaches the running ingest service. Until it is set the status
// reports no ingest section.
func (s *Status) SetIngest(src IngestSnapshotter) {
	s.ingest.Store(ingestRef{src: src})
}

func (s *Status) SetReference(nowUTC time.Time, ref ReferenceInfo) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	ref.LoadedUTC = nowUTC.UTC().Format(time.RFC3339Nano)
	s.reference.Store(ref)
}

func (s *Status) SetTolerances(tol validate.Tolerances) {
	s.tolerances.Store(ToleranceInfo{
		SqrtA:        tol.SqrtA,
		Eccentricity: tol.Eccentricity,
		PositionM:    tol.Position,
	})
}

type StatusSnapshot struct {
	Service    string        `json:"service"`
	NowUTC     string        `json:"now_utc"`
	UptimeSec  int64         `json:"uptime_sec"`
	Build      BuildInfo     `json:"build"`
	Reference  ReferenceInfo `json:"reference"`
	Tolerances ToleranceInfo `json:"tolerances"`
	Ingest     *gps.Snapshot `json:"ingest,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:    serviceName,
		NowUTC:     nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:  int64(nowUTC.Sub(start).Seconds()),
		Build:      readBuildInfo(),
		Reference:  s.reference.Load().(ReferenceInfo),
		Tolerances: s.tolerances.Load().(ToleranceInfo),
	}
	if ref := s.ingest.Load().(ingestRef); ref.src != nil {
		in := ref.src.Snapshot()
		snap.Ingest = &in
	}
	return snap
}
