package track

import (
	"sort"
	"sync"
	"time"

	"spoofwatch/internal/ubx"
)

// Table holds the latest decoded almanac and ephemeris per satellite.
//
// Last write wins and nothing expires: a stale record stays "latest" until a
// newer one for the same satellite replaces it. All writes are serialized by
// one mutex, and Pair reads both maps under the same read lock so a
// validation never observes a half-applied update.
type Table struct {
	mu sync.RWMutex

	almanacs    map[uint32]entry[ubx.AlmanacRecord]
	ephemerides map[uint32]entry[ubx.EphemerisRecord]
}

type entry[R any] struct {
	rec    R
	seenAt time.Time
}

func NewTable() *Table {
	return &Table{
		almanacs:    make(map[uint32]entry[ubx.AlmanacRecord]),
		ephemerides: make(map[uint32]entry[ubx.EphemerisRecord]),
	}
}

func (t *Table) UpdateAlmanac(nowUTC time.Time, rec ubx.AlmanacRecord) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.almanacs[rec.SatelliteID] = entry[ubx.AlmanacRecord]{rec: rec, seenAt: nowUTC.UTC()}
}

func (t *Table) UpdateEphemeris(nowUTC time.Time, rec ubx.EphemerisRecord) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ephemerides[rec.SatelliteID] = entry[ubx.EphemerisRecord]{rec: rec, seenAt: nowUTC.UTC()}
}

func (t *Table) Almanac(id uint32) (ubx.AlmanacRecord, bool) {
	if t == nil {
		return ubx.AlmanacRecord{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.almanacs[id]
	return e.rec, ok
}

func (t *Table) Ephemeris(id uint32) (ubx.EphemerisRecord, bool) {
	if t == nil {
		return ubx.EphemerisRecord{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.ephemerides[id]
	return e.rec, ok
}

// Pair is a consistent view of one satellite.
type Pair struct {
	Almanac      ubx.AlmanacRecord
	HasAlmanac   bool
	Ephemeris    ubx.EphemerisRecord
	HasEphemeris bool
}

func (t *Table) Pair(id uint32) Pair {
	if t == nil {
		return Pair{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, aok := t.almanacs[id]
	e, eok := t.ephemerides[id]
	return Pair{Almanac: a.rec, HasAlmanac: aok, Ephemeris: e.rec, HasEphemeris: eok}
}

// Counts returns the number of satellites with an almanac and with an
// ephemeris.
func (t *Table) Counts() (almanacs, ephemerides int) {
	if t == nil {
		return 0, 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.almanacs), len(t.ephemerides)
}

// Satellite is a status-friendly row for one tracked satellite.
type Satellite struct {
	ID           uint32  `json:"id"`
	HasAlmanac   bool    `json:"has_almanac"`
	HasEphemeris bool    `json:"has_ephemeris"`
	SqrtA        float64 `json:"sqrt_a,omitempty"`
	Eccentricity float64 `json:"eccentricity,omitempty"`
	Health       int32   `json:"health"`
	TOA          uint32  `json:"toa,omitempty"`
	TOW          float64 `json:"tow,omitempty"`

	AlmanacAgeSec   float64 `json:"almanac_age_sec,omitempty"`
	EphemerisAgeSec float64 `json:"ephemeris_age_sec,omitempty"`
}

// Snapshot lists every tracked satellite sorted by id.
func (t *Table) Snapshot(nowUTC time.Time) []Satellite {
	if t == nil {
		return nil
	}
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}

	t.mu.RLock()
	rows := make(map[uint32]*Satellite, len(t.almanacs))
	row := func(id uint32) *Satellite {
		r, ok := rows[id]
		if !ok {
			r = &Satellite{ID: id}
			rows[id] = r
		}
		return r
	}
	for id, a := range t.almanacs {
		r := row(id)
		r.HasAlmanac = true
		r.SqrtA = a.rec.SqrtA
		r.Eccentricity = a.rec.Eccentricity
		r.Health = a.rec.Health
		r.TOA = a.rec.TOA
		r.AlmanacAgeSec = nowUTC.Sub(a.seenAt).Seconds()
	}
	for id, e := range t.ephemerides {
		r := row(id)
		r.HasEphemeris = true
		r.TOW = e.rec.TOW
		r.EphemerisAgeSec = nowUTC.Sub(e.seenAt).Seconds()
	}
	t.mu.RUnlock()

	out := make([]Satellite, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
