// Package validate cross-checks receiver-reported orbital data.
//
// Layer 1 compares a broadcast almanac against the independently obtained
// reference almanac. Layer 2 checks that a reported ephemeris position is
// plausible given the satellite's tracked almanac. Each check is a pure
// function of its inputs; verdicts are returned, never raised.
package validate

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"spoofwatch/internal/almanac"
	"spoofwatch/internal/ubx"
)

// Mu is the WGS-84 gravitational parameter used by GPS, m^3/s^2.
const Mu = 3.986005e14

type Layer string

const (
	LayerAlmanac   Layer = "almanac"
	LayerEphemeris Layer = "ephemeris"
)

type Status string

const (
	Pass    Status = "PASS"
	Fail    Status = "FAIL"
	Skipped Status = "SKIPPED"
)

// Reasons attached to verdicts that were not decided by a comparison.
const (
	ReasonNoReference = "no_reference"
	ReasonNoAlmanac   = "no_almanac"
)

// ReasonNonFinite marks a FAIL where a compared value was NaN or infinite.
const ReasonNonFinite = "non_finite"

// Tolerances are absolute thresholds. A delta equal to its tolerance passes.
// A NaN or infinite delta never passes.
type Tolerances struct {
	SqrtA        float64 // m^1/2
	Eccentricity float64
	Position     float64 // m
}

// DefaultTolerances returns the stock thresholds: 1% of the nominal GPS
// sqrt(A) of 5153.6 m^1/2 as an absolute value, 1e-4 eccentricity and 1 km.
func DefaultTolerances() Tolerances {
	return Tolerances{
		SqrtA:        51.536,
		Eccentricity: 1e-4,
		Position:     1000,
	}
}

// Verdict is the outcome of one layer for one record.
type Verdict struct {
	Layer       Layer              `json:"layer"`
	SatelliteID uint32             `json:"satellite_id"`
	Status      Status             `json:"status"`
	Reason      string             `json:"reason,omitempty"`
	Observed    map[string]float64 `json:"observed,omitempty"`
	Thresholds  map[string]float64 `json:"thresholds,omitempty"`
	Exceeded    []string           `json:"exceeded,omitempty"`
}

func (v Verdict) Failed() bool { return v.Status == Fail }

// ReferenceLookup is the read side of the reference almanac store.
type ReferenceLookup interface {
	Lookup(prn uint32) (almanac.Entry, bool)
}

// AlmanacLookup returns the latest tracked almanac for a satellite.
type AlmanacLookup interface {
	Almanac(id uint32) (ubx.AlmanacRecord, bool)
}

// Engine runs both layers. It only reads from its lookups.
type Engine struct {
	ref ReferenceLookup
	trk AlmanacLookup
	tol Tolerances
}

func New(ref ReferenceLookup, trk AlmanacLookup, tol Tolerances) *Engine {
	return &Engine{ref: ref, trk: trk, tol: tol}
}

func (e *Engine) Tolerances() Tolerances { return e.tol }

// CheckAlmanac is Layer 1. A satellite missing from the reference passes:
// there is nothing to corroborate against, which is not evidence of
// spoofing.
func (e *Engine) CheckAlmanac(rec ubx.AlmanacRecord) Verdict {
	v := Verdict{Layer: LayerAlmanac, SatelliteID: rec.SatelliteID}

	var (
		ref almanac.Entry
		ok  bool
	)
	if e.ref != nil {
		ref, ok = e.ref.Lookup(rec.SatelliteID)
	}
	if !ok {
		v.Status = Pass
		v.Reason = ReasonNoReference
		return v
	}
	return compareAlmanac(v, ref, rec, e.tol)
}

func compareAlmanac(v Verdict, ref almanac.Entry, rec ubx.AlmanacRecord, tol Tolerances) Verdict {
	dSqrtA := math.Abs(ref.SqrtA - rec.SqrtA)
	dEcc := math.Abs(ref.Eccentricity - rec.Eccentricity)

	v.Observed = map[string]float64{
		"sqrt_a":                 rec.SqrtA,
		"reference_sqrt_a":       ref.SqrtA,
		"delta_sqrt_a":           dSqrtA,
		"eccentricity":           rec.Eccentricity,
		"reference_eccentricity": ref.Eccentricity,
		"delta_eccentricity":     dEcc,
	}
	v.Thresholds = map[string]float64{
		"delta_sqrt_a":       tol.SqrtA,
		"delta_eccentricity": tol.Eccentricity,
	}
	if exceeds(dSqrtA, tol.SqrtA) {
		v.Exceeded = append(v.Exceeded, "delta_sqrt_a")
	}
	if exceeds(dEcc, tol.Eccentricity) {
		v.Exceeded = append(v.Exceeded, "delta_eccentricity")
	}
	v.Status = Pass
	if len(v.Exceeded) > 0 {
		v.Status = Fail
		if !finite(dSqrtA) || !finite(dEcc) {
			v.Reason = ReasonNonFinite
		}
	}
	return v
}

// exceeds reports delta > tol, with NaN counted as exceeded.
func exceeds(delta, tol float64) bool {
	return !(delta <= tol)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// CheckEphemeris is Layer 2. Without a tracked almanac for the satellite
// there is no baseline and the layer is skipped.
func (e *Engine) CheckEphemeris(rec ubx.EphemerisRecord) Verdict {
	v := Verdict{Layer: LayerEphemeris, SatelliteID: rec.SatelliteID}

	var (
		alm ubx.AlmanacRecord
		ok  bool
	)
	if e.trk != nil {
		alm, ok = e.trk.Almanac(rec.SatelliteID)
	}
	if !ok {
		v.Status = Skipped
		v.Reason = ReasonNoAlmanac
		return v
	}

	pred := PredictPlanar(alm, rec.TOW)
	got := r2.Vec{X: rec.Position.X, Y: rec.Position.Y}
	dist := r2.Norm(r2.Sub(got, pred))

	v.Observed = map[string]float64{
		"predicted_x": pred.X,
		"predicted_y": pred.Y,
		"reported_x":  got.X,
		"reported_y":  got.Y,
		"distance_m":  dist,
	}
	v.Thresholds = map[string]float64{"distance_m": e.tol.Position}
	v.Status = Pass
	if exceeds(dist, e.tol.Position) {
		v.Status = Fail
		v.Exceeded = []string{"distance_m"}
		if !finite(dist) {
			v.Reason = ReasonNonFinite
		}
	}
	return v
}

// PredictPlanar propagates the almanac mean anomaly to tow and returns the
// in-plane position on a circle of radius a. This is a coarse two-body
// sanity check: no perigee or inclination rotation and no corrections are
// applied, and the position tolerance absorbs the resulting error.
func PredictPlanar(alm ubx.AlmanacRecord, tow float64) r2.Vec {
	a := alm.SqrtA * alm.SqrtA
	t := tow - float64(alm.TOA)
	var n float64
	if a > 0 {
		n = math.Sqrt(Mu / (a * a * a))
	}
	m := alm.MeanAnomaly + t*n
	return r2.Vec{X: a * math.Cos(m), Y: a * math.Sin(m)}
}
