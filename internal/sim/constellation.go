// Package sim is a synthetic u-blox receiver for bench runs: it broadcasts
// almanac and ephemeris frames for a deterministic constellation, can inject
// spoofed orbital data, and writes the matching reference almanac.
package sim

import (
	"fmt"
	"io"
	"math"
	"math/rand"

	"spoofwatch/internal/almanac"
	"spoofwatch/internal/ubx"
	"spoofwatch/internal/validate"
)

const (
	nominalSqrtA = 5153.6
	DefaultWeek  = 245
	DefaultTOA   = 405504
)

// Satellite is one simulated vehicle's almanac elements.
type Satellite struct {
	PRN               uint32
	SqrtA             float64
	Eccentricity      float64
	Inclination       float64
	RightAscension    float64
	ArgumentOfPerigee float64
	MeanAnomaly       float64
	ClockBias         float64
	ClockDrift        float64
}

// NewConstellation returns n satellites with PRNs 1..n. The same seed always
// yields the same constellation.
func NewConstellation(n int, seed int64) []Satellite {
	rng := rand.New(rand.NewSource(seed))
	out := make([]Satellite, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Satellite{
			PRN:               uint32(i + 1),
			SqrtA:             nominalSqrtA + (rng.Float64()-0.5)*0.4,
			Eccentricity:      0.001 + rng.Float64()*0.019,
			Inclination:       almanac.NominalInclination + (rng.Float64()-0.5)*0.06,
			RightAscension:    (rng.Float64()*2 - 1) * math.Pi,
			ArgumentOfPerigee: (rng.Float64()*2 - 1) * math.Pi,
			MeanAnomaly:       float64(i) * 2 * math.Pi / float64(n),
			ClockBias:         (rng.Float64() - 0.5) * 1e-3,
			ClockDrift:        (rng.Float64() - 0.5) * 1e-11,
		})
	}
	return out
}

// Almanac is the record the satellite broadcasts for week and toa.
func (s Satellite) Almanac(week, toa uint32) ubx.AlmanacRecord {
	return ubx.AlmanacRecord{
		SatelliteID:       s.PRN,
		Week:              week,
		TOA:               toa,
		SqrtA:             s.SqrtA,
		Eccentricity:      s.Eccentricity,
		Inclination:       s.Inclination,
		RightAscension:    s.RightAscension,
		ArgumentOfPerigee: s.ArgumentOfPerigee,
		MeanAnomaly:       s.MeanAnomaly,
		ClockBias:         s.ClockBias,
		ClockDrift:        s.ClockDrift,
	}
}

// Ephemeris places the satellite where the coarse planar model puts it at
// tow, relative to the almanac alm it was derived from.
func Ephemeris(alm ubx.AlmanacRecord, tow float64) ubx.EphemerisRecord {
	p := validate.PredictPlanar(alm, tow)
	a := alm.SqrtA * alm.SqrtA
	n := 0.0
	if a > 0 {
		n = math.Sqrt(validate.Mu / (a * a * a))
	}
	rec := ubx.EphemerisRecord{
		SatelliteID: alm.SatelliteID,
		Week:        alm.Week,
		TOW:         tow,
		ClockBias:   alm.ClockBias,
		ClockDrift:  alm.ClockDrift,
		TOE:         tow,
	}
	rec.Position.X, rec.Position.Y = p.X, p.Y
	// Circular motion: v = n*(-y, x), acc = -n^2*r.
	rec.Velocity.X, rec.Velocity.Y = -n*p.Y, n*p.X
	rec.Acceleration.X, rec.Acceleration.Y = -n*n*p.X, -n*n*p.Y
	return rec
}

// WriteYUMA writes sats as a YUMA almanac.
func WriteYUMA(w io.Writer, sats []Satellite, week, toa uint32) error {
	for _, s := range sats {
		_, err := fmt.Fprintf(w, `******** Week %d almanac for PRN-%02d ********
ID:                         %02d
Health:                     000
Eccentricity:               %.10E
Time of Applicability(s):  %d.0000
Orbital Inclination(rad):   %.10f
Rate of Right Ascen(r/s):  -0.7863184656E-008
SQRT(A)  (m 1/2):           %.6f
Right Ascen at Week(rad):  %.10E
Argument of Perigee(rad):   %.9f
Mean Anom(rad):            %.10E
Af0(s):                     %.10E
Af1(s/s):                   %.10E
week:                        %d

`, week, s.PRN, s.PRN, s.Eccentricity, toa, s.Inclination, s.SqrtA,
			s.RightAscension, s.ArgumentOfPerigee, s.MeanAnomaly, s.ClockBias, s.ClockDrift, week)
		if err != nil {
			return err
		}
	}
	return nil
}
