package track

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"spoofwatch/internal/ubx"
)

func TestTable_LastWriteWins(t *testing.T) {
	tab := NewTable()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	r1 := ubx.AlmanacRecord{SatelliteID: 7, SqrtA: 5153.1, IssueOfData: 1}
	r2 := ubx.AlmanacRecord{SatelliteID: 7, SqrtA: 5153.9, IssueOfData: 2}
	tab.UpdateAlmanac(now, r1)
	tab.UpdateAlmanac(now.Add(time.Second), r2)

	got, ok := tab.Almanac(7)
	require.True(t, ok)
	assert.Equal(t, r2, got)

	alm, eph := tab.Counts()
	assert.Equal(t, 1, alm)
	assert.Equal(t, 0, eph)
}

func TestTable_AbsentIsReported(t *testing.T) {
	tab := NewTable()
	_, ok := tab.Almanac(3)
	assert.False(t, ok)
	_, ok = tab.Ephemeris(3)
	assert.False(t, ok)

	p := tab.Pair(3)
	assert.False(t, p.HasAlmanac)
	assert.False(t, p.HasEphemeris)
}

func TestTable_TypesAreIndependent(t *testing.T) {
	tab := NewTable()
	now := time.Now().UTC()
	tab.UpdateEphemeris(now, ubx.EphemerisRecord{SatelliteID: 9, Position: r3.Vec{X: 1}})

	_, ok := tab.Almanac(9)
	assert.False(t, ok)
	eph, ok := tab.Ephemeris(9)
	require.True(t, ok)
	assert.Equal(t, 1.0, eph.Position.X)
}

func TestTable_NilSafe(t *testing.T) {
	var tab *Table
	tab.UpdateAlmanac(time.Now(), ubx.AlmanacRecord{SatelliteID: 1})
	_, ok := tab.Almanac(1)
	assert.False(t, ok)
	assert.Nil(t, tab.Snapshot(time.Now()))
}

func TestTable_SnapshotSortedWithAges(t *testing.T) {
	tab := NewTable()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tab.UpdateAlmanac(base, ubx.AlmanacRecord{SatelliteID: 20, SqrtA: 5153.7, Health: -1})
	tab.UpdateEphemeris(base.Add(5*time.Second), ubx.EphemerisRecord{SatelliteID: 3, TOW: 100})
	tab.UpdateAlmanac(base, ubx.AlmanacRecord{SatelliteID: 3})

	snap := tab.Snapshot(base.Add(10 * time.Second))
	require.Len(t, snap, 2)
	assert.Equal(t, uint32(3), snap[0].ID)
	assert.True(t, snap[0].HasAlmanac)
	assert.True(t, snap[0].HasEphemeris)
	assert.InDelta(t, 5.0, snap[0].EphemerisAgeSec, 1e-9)
	assert.Equal(t, uint32(20), snap[1].ID)
	assert.Equal(t, int32(-1), snap[1].Health)
	assert.InDelta(t, 10.0, snap[1].AlmanacAgeSec, 1e-9)
}

func TestTable_PairConsistentUnderConcurrentWrites(t *testing.T) {
	tab := NewTable()
	now := time.Now().UTC()

	// The writer keeps IssueOfData == TOA; a reader must never see a torn
	// record. Run with -race.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint32(0); i < 2000; i++ {
			tab.UpdateAlmanac(now, ubx.AlmanacRecord{SatelliteID: 1, IssueOfData: i, TOA: i})
		}
	}()
	for i := 0; i < 2000; i++ {
		p := tab.Pair(1)
		if p.HasAlmanac {
			require.Equal(t, p.Almanac.IssueOfData, p.Almanac.TOA)
		}
	}
	wg.Wait()
}
