package ubx

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Kind is the wire encoding of one payload field. All multi-byte kinds are
// little-endian.
type Kind uint8

const (
	U8 Kind = iota + 1
	U32
	I32
	F64
)

// Width returns the number of payload bytes the kind occupies.
func (k Kind) Width() int {
	switch k {
	case U8:
		return 1
	case U32, I32:
		return 4
	case F64:
		return 8
	default:
		return 0
	}
}

func (k Kind) String() string {
	switch k {
	case U8:
		return "u8"
	case U32:
		return "u32"
	case I32:
		return "i32"
	case F64:
		return "f64"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Field maps a fixed payload span onto one record member. ref returns a
// pointer to that member (*uint8, *uint32, *int32 or *float64).
type Field[R any] struct {
	Name   string
	Offset int
	Kind   Kind
	ref    func(r *R) any
}

// End returns the offset just past the field.
func (f Field[R]) End() int { return f.Offset + f.Kind.Width() }

// Layout is the fixed payload contract for one message kind.
type Layout[R any] struct {
	Name   string
	Size   int
	Fields []Field[R]
}

// Decode extracts every field from payload. Bytes beyond Size are ignored.
func (l Layout[R]) Decode(payload []byte) (R, error) {
	var rec R
	if len(payload) < l.Size {
		return rec, fmt.Errorf("%s payload too short: %d < %d", l.Name, len(payload), l.Size)
	}
	for _, f := range l.Fields {
		raw := f.Kind.get(payload[f.Offset:f.End()])
		switch p := f.ref(&rec).(type) {
		case *uint8:
			*p = uint8(raw)
		case *uint32:
			*p = uint32(raw)
		case *int32:
			*p = int32(uint32(raw))
		case *float64:
			*p = math.Float64frombits(raw)
		default:
			return rec, fmt.Errorf("%s field %s: unsupported target %T", l.Name, f.Name, p)
		}
	}
	return rec, nil
}

// Encode renders rec into a payload of exactly Size bytes. Reserved bytes are
// zero.
func (l Layout[R]) Encode(rec *R) []byte {
	out := make([]byte, l.Size)
	for _, f := range l.Fields {
		var raw uint64
		switch p := f.ref(rec).(type) {
		case *uint8:
			raw = uint64(*p)
		case *uint32:
			raw = uint64(*p)
		case *int32:
			raw = uint64(uint32(*p))
		case *float64:
			raw = math.Float64bits(*p)
		}
		f.Kind.put(out[f.Offset:f.End()], raw)
	}
	return out
}

func (k Kind) get(b []byte) uint64 {
	switch k {
	case U8:
		return uint64(b[0])
	case U32, I32:
		return uint64(binary.LittleEndian.Uint32(b))
	case F64:
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (k Kind) put(b []byte, v uint64) {
	switch k {
	case U8:
		b[0] = byte(v)
	case U32, I32:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case F64:
		binary.LittleEndian.PutUint64(b, v)
	}
}

// AlmanacLayout is the almanac payload. Bytes 1..3 are reserved.
var AlmanacLayout = Layout[AlmanacRecord]{
	Name: "almanac",
	Size: 84,
	Fields: []Field[AlmanacRecord]{
		{"satellite_id", 0, U8, func(r *AlmanacRecord) any { return &r.SatelliteID }},
		{"week", 4, U32, func(r *AlmanacRecord) any { return &r.Week }},
		{"time_of_applicability", 8, U32, func(r *AlmanacRecord) any { return &r.TOA }},
		{"sqrt_a", 12, F64, func(r *AlmanacRecord) any { return &r.SqrtA }},
		{"eccentricity", 20, F64, func(r *AlmanacRecord) any { return &r.Eccentricity }},
		{"inclination", 28, F64, func(r *AlmanacRecord) any { return &r.Inclination }},
		{"right_ascension", 36, F64, func(r *AlmanacRecord) any { return &r.RightAscension }},
		{"argument_of_perigee", 44, F64, func(r *AlmanacRecord) any { return &r.ArgumentOfPerigee }},
		{"mean_anomaly", 52, F64, func(r *AlmanacRecord) any { return &r.MeanAnomaly }},
		{"clock_bias", 60, F64, func(r *AlmanacRecord) any { return &r.ClockBias }},
		{"clock_drift", 68, F64, func(r *AlmanacRecord) any { return &r.ClockDrift }},
		{"health", 76, I32, func(r *AlmanacRecord) any { return &r.Health }},
		{"issue_of_data", 80, U32, func(r *AlmanacRecord) any { return &r.IssueOfData }},
	},
}

// EphemerisLayout is the ephemeris payload. Byte 179 is reserved.
var EphemerisLayout = Layout[EphemerisRecord]{
	Name: "ephemeris",
	Size: 180,
	Fields: []Field[EphemerisRecord]{
		{"satellite_id", 0, U32, func(r *EphemerisRecord) any { return &r.SatelliteID }},
		{"week", 4, U32, func(r *EphemerisRecord) any { return &r.Week }},
		{"time_of_week", 8, F64, func(r *EphemerisRecord) any { return &r.TOW }},
		{"pos_x", 16, F64, func(r *EphemerisRecord) any { return &r.Position.X }},
		{"pos_y", 24, F64, func(r *EphemerisRecord) any { return &r.Position.Y }},
		{"pos_z", 32, F64, func(r *EphemerisRecord) any { return &r.Position.Z }},
		{"vel_x", 40, F64, func(r *EphemerisRecord) any { return &r.Velocity.X }},
		{"vel_y", 48, F64, func(r *EphemerisRecord) any { return &r.Velocity.Y }},
		{"vel_z", 56, F64, func(r *EphemerisRecord) any { return &r.Velocity.Z }},
		{"acc_x", 64, F64, func(r *EphemerisRecord) any { return &r.Acceleration.X }},
		{"acc_y", 72, F64, func(r *EphemerisRecord) any { return &r.Acceleration.Y }},
		{"acc_z", 80, F64, func(r *EphemerisRecord) any { return &r.Acceleration.Z }},
		{"clock_bias", 88, F64, func(r *EphemerisRecord) any { return &r.ClockBias }},
		{"clock_drift", 96, F64, func(r *EphemerisRecord) any { return &r.ClockDrift }},
		{"clock_drift_rate", 104, F64, func(r *EphemerisRecord) any { return &r.ClockDriftRate }},
		{"group_delay", 112, F64, func(r *EphemerisRecord) any { return &r.GroupDelay }},
		{"crs", 120, F64, func(r *EphemerisRecord) any { return &r.Crs }},
		{"crc", 128, F64, func(r *EphemerisRecord) any { return &r.Crc }},
		{"cuc", 136, F64, func(r *EphemerisRecord) any { return &r.Cuc }},
		{"cus", 144, F64, func(r *EphemerisRecord) any { return &r.Cus }},
		{"cic", 152, F64, func(r *EphemerisRecord) any { return &r.Cic }},
		{"cis", 160, F64, func(r *EphemerisRecord) any { return &r.Cis }},
		{"time_of_ephemeris", 168, F64, func(r *EphemerisRecord) any { return &r.TOE }},
		{"issue_of_data", 176, U8, func(r *EphemerisRecord) any { return &r.IssueOfData }},
		{"health", 177, U8, func(r *EphemerisRecord) any { return &r.Health }},
		{"fit_interval", 178, U8, func(r *EphemerisRecord) any { return &r.FitInterval }},
	},
}
