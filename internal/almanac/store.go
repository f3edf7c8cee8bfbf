// Package almanac holds the independently obtained reference almanac: the
// YUMA parser, the read-only lookup store and the download helper.
package almanac

import (
	"math"
	"sort"
)

// NominalInclination is the reference inclination (0.30 semicircles) that
// almanac inclination offsets are relative to.
const NominalInclination = 0.3 * math.Pi

// Entry is one satellite of a reference almanac. Angles are radians.
type Entry struct {
	PRN                  uint32
	Health               int
	Eccentricity         float64
	TimeOfApplicability  float64
	OrbitalInclination   float64
	InclinationOffset    float64
	RateOfRightAscension float64
	SqrtA                float64
	RightAscension       float64
	ArgumentOfPerigee    float64
	MeanAnomaly          float64
	Af0                  float64
	Af1                  float64
	Week                 int
}

// Store is an immutable PRN-keyed view of a reference almanac.
type Store struct {
	byPRN map[uint32]Entry
}

// NewStore indexes entries by PRN. A later entry for the same PRN replaces
// an earlier one.
func NewStore(entries []Entry) *Store {
	s := &Store{byPRN: make(map[uint32]Entry, len(entries))}
	for _, e := range entries {
		s.byPRN[e.PRN] = e
	}
	return s
}

// Lookup returns the entry for prn, if any.
func (s *Store) Lookup(prn uint32) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	e, ok := s.byPRN[prn]
	return e, ok
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byPRN)
}

// PRNs returns the stored PRNs in ascending order.
func (s *Store) PRNs() []uint32 {
	if s == nil {
		return nil
	}
	out := make([]uint32, 0, len(s.byPRN))
	for prn := range s.byPRN {
		out = append(out, prn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
