package ubx

import "gonum.org/v1/gonum/spatial/r3"

// Message is a verified, decoded record.
type Message interface {
	Type() MessageType
	SVID() uint32
}

// AlmanacRecord is the decoded almanac payload.
type AlmanacRecord struct {
	SatelliteID       uint32
	Week              uint32
	TOA               uint32  // time of applicability, s
	SqrtA             float64 // m^1/2
	Eccentricity      float64
	Inclination       float64 // rad
	RightAscension    float64 // rad
	ArgumentOfPerigee float64 // rad
	MeanAnomaly       float64 // rad
	ClockBias         float64 // af0, s
	ClockDrift        float64 // af1, s/s
	Health            int32
	IssueOfData       uint32
}

func (AlmanacRecord) Type() MessageType { return TypeAlmanac }
func (r AlmanacRecord) SVID() uint32    { return r.SatelliteID }

// EphemerisRecord is the decoded ephemeris payload. Position, velocity and
// acceleration are ECEF in metres and seconds.
type EphemerisRecord struct {
	SatelliteID  uint32
	Week         uint32
	TOW          float64
	Position     r3.Vec
	Velocity     r3.Vec
	Acceleration r3.Vec

	ClockBias      float64
	ClockDrift     float64
	ClockDriftRate float64
	GroupDelay     float64

	// Harmonic orbit corrections.
	Crs, Crc float64
	Cuc, Cus float64
	Cic, Cis float64

	TOE         float64
	IssueOfData uint8
	Health      uint8
	FitInterval uint8
}

func (EphemerisRecord) Type() MessageType { return TypeEphemeris }
func (r EphemerisRecord) SVID() uint32    { return r.SatelliteID }
