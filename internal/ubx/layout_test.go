package ubx

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func checkLayout[R any](t *testing.T, l Layout[R]) {
	t.Helper()
	fields := append([]Field[R](nil), l.Fields...)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Offset < fields[j].Offset })

	seen := map[string]bool{}
	end := 0
	for _, f := range fields {
		require.NotZero(t, f.Kind.Width(), "%s.%s has no width", l.Name, f.Name)
		assert.False(t, seen[f.Name], "%s.%s declared twice", l.Name, f.Name)
		seen[f.Name] = true
		assert.GreaterOrEqual(t, f.Offset, end, "%s.%s overlaps the previous field", l.Name, f.Name)
		assert.LessOrEqual(t, f.End(), l.Size, "%s.%s runs past the layout size", l.Name, f.Name)
		end = f.End()
	}
}

func TestLayouts_NoOverlapWithinSize(t *testing.T) {
	checkLayout(t, AlmanacLayout)
	checkLayout(t, EphemerisLayout)
}

func TestLayouts_TargetsMatchKinds(t *testing.T) {
	var alm AlmanacRecord
	for _, f := range AlmanacLayout.Fields {
		assertTargetKind(t, f.Name, f.Kind, f.ref(&alm))
	}
	var eph EphemerisRecord
	for _, f := range EphemerisLayout.Fields {
		assertTargetKind(t, f.Name, f.Kind, f.ref(&eph))
	}
}

func assertTargetKind(t *testing.T, name string, k Kind, target any) {
	t.Helper()
	switch target.(type) {
	case *float64:
		assert.Equal(t, F64, k, name)
	case *int32:
		assert.Equal(t, I32, k, name)
	case *uint32:
		assert.Contains(t, []Kind{U8, U32}, k, name)
	case *uint8:
		assert.Equal(t, U8, k, name)
	default:
		t.Errorf("%s: unsupported target %T", name, target)
	}
}

func TestLayout_DecodeShortPayload(t *testing.T) {
	_, err := AlmanacLayout.Decode(make([]byte, AlmanacLayout.Size-1))
	assert.EqualError(t, err, "almanac payload too short: 83 < 84")
}

func TestLayout_AlmanacOffsets(t *testing.T) {
	// Spot-check the wire contract against hand-placed bytes.
	payload := make([]byte, AlmanacLayout.Size)
	payload[0] = 31
	payload[1] = 0xFF // reserved, must not leak into the id
	payload[76] = 0xFE
	payload[77] = 0xFF
	payload[78] = 0xFF
	payload[79] = 0xFF

	rec, err := AlmanacLayout.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(31), rec.SatelliteID)
	assert.Equal(t, int32(-2), rec.Health)
}

func TestLayout_EphemerisRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := rapid.Float64Range(-3e7, 3e7)
		rec := sampleEphemeris()
		rec.SatelliteID = rapid.Uint32().Draw(rt, "svid")
		rec.TOW = f.Draw(rt, "tow")
		rec.Position.X = f.Draw(rt, "x")
		rec.Position.Y = f.Draw(rt, "y")
		rec.Position.Z = f.Draw(rt, "z")
		rec.Cis = f.Draw(rt, "cis")
		rec.IssueOfData = rapid.Uint8().Draw(rt, "iode")
		rec.FitInterval = rapid.Uint8().Draw(rt, "fit")

		got, err := EphemerisLayout.Decode(EphemerisLayout.Encode(&rec))
		require.NoError(rt, err)
		assert.Equal(rt, rec, got)
	})
}
