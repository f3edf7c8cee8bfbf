package almanac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yumaSample = `******** Week 245 almanac for PRN-01 ********
ID:                         01
Health:                     000
Eccentricity:               0.1083421707E-001
Time of Applicability(s):  405504.0000
Orbital Inclination(rad):   0.9887687326
Rate of Right Ascen(r/s):  -0.7691748816E-008
SQRT(A)  (m 1/2):           5153.602051
Right Ascen at Week(rad):  -0.1287183463E+001
Argument of Perigee(rad):   0.852446368
Mean Anom(rad):            -0.1956558645E+001
Af0(s):                     0.4940032959E-003
Af1(s/s):                   0.3637978807E-011
week:                        245

******** Week 245 almanac for PRN-02 ********
ID:                         02
Health:                     000
Eccentricity:               not-a-number
SQRT(A)  (m 1/2):           5153.655762
week:                        245

******** Week 245 almanac for PRN-?? ********
Health:                     000
Eccentricity:               0.01
`

func TestParse_YumaBlocks(t *testing.T) {
	entries, err := Parse(strings.NewReader(yumaSample), nil)
	require.NoError(t, err)
	require.Len(t, entries, 2, "block without an ID must be dropped")

	e := entries[0]
	assert.Equal(t, uint32(1), e.PRN)
	assert.InDelta(t, 0.01083421707, e.Eccentricity, 1e-15)
	assert.InDelta(t, 5153.602051, e.SqrtA, 1e-9)
	assert.InDelta(t, 405504.0, e.TimeOfApplicability, 0)
	assert.InDelta(t, 0.9887687326-NominalInclination, e.InclinationOffset, 1e-12)
	assert.InDelta(t, -1.956558645, e.MeanAnomaly, 1e-12)
	assert.Equal(t, 245, e.Week)

	// The unparsable eccentricity line is skipped, not the whole block.
	assert.Equal(t, uint32(2), entries[1].PRN)
	assert.Zero(t, entries[1].Eccentricity)
	assert.InDelta(t, 5153.655762, entries[1].SqrtA, 1e-9)
}

func TestParse_CompactLines(t *testing.T) {
	in := `PRN: 5 ECC: 0.0 SQRT_A: 5153.5
PRN: 6 ECC: 0.002 SQRT_A: 5153.7 DELTA_I: 0.01
ECC: 0.1 SQRT_A: 1
PRN: 8 ECC: oops SQRT_A: 5153.7
`
	entries, err := Parse(strings.NewReader(in), nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{PRN: 5, SqrtA: 5153.5}, entries[0])
	assert.Equal(t, uint32(6), entries[1].PRN)
	assert.InDelta(t, 0.01, entries[1].InclinationOffset, 0)
}

func TestParse_HeaderlessBlocksSplitOnID(t *testing.T) {
	in := "ID: 03\nSQRT(A) (m 1/2): 5153.1\nID: 04\nSQRT(A) (m 1/2): 5153.2\n"
	entries, err := Parse(strings.NewReader(in), nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint32(3), entries[0].PRN)
	assert.Equal(t, uint32(4), entries[1].PRN)
	assert.InDelta(t, 5153.2, entries[1].SqrtA, 0)
}

func TestStore_Lookup(t *testing.T) {
	st := NewStore([]Entry{{PRN: 5, SqrtA: 1}, {PRN: 2}, {PRN: 5, SqrtA: 2}})
	assert.Equal(t, 2, st.Len())
	assert.Equal(t, []uint32{2, 5}, st.PRNs())

	e, ok := st.Lookup(5)
	require.True(t, ok)
	assert.Equal(t, 2.0, e.SqrtA, "later duplicate wins")

	_, ok = st.Lookup(9)
	assert.False(t, ok)

	var nilStore *Store
	_, ok = nilStore.Lookup(5)
	assert.False(t, ok)
}

func TestFetcher_FetchWritesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(yumaSample))
	}))
	defer srv.Close()

	var sb strings.Builder
	err := NewFetcher(srv.URL, time.Second).Fetch(context.Background(), &sb)
	require.NoError(t, err)
	assert.Equal(t, yumaSample, sb.String())
}

func TestFetcher_FailureKeepsPreviousFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "latest.alm")
	require.NoError(t, os.WriteFile(path, []byte("PRN: 5 ECC: 0.0 SQRT_A: 5153.5\n"), 0o644))

	err := NewFetcher(srv.URL, time.Second).FetchToFile(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code 503")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PRN: 5 ECC: 0.0 SQRT_A: 5153.5\n", string(b))

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".almanac-*"))
	assert.Empty(t, leftovers)
}

func TestLoad_FetchThenParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(yumaSample))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "ref", "latest.alm")
	st := Load(context.Background(), Source{Path: path, URL: srv.URL, Fetch: true, Timeout: time.Second}, nil)
	assert.Equal(t, 2, st.Len())
}

func TestLoad_FetchFailureUsesCachedFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "latest.alm")
	require.NoError(t, os.WriteFile(path, []byte("PRN: 5 ECC: 0.0 SQRT_A: 5153.5\n"), 0o644))

	st := Load(context.Background(), Source{Path: path, URL: srv.URL, Fetch: true}, nil)
	require.Equal(t, 1, st.Len())
	_, ok := st.Lookup(5)
	assert.True(t, ok)
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	st := Load(context.Background(), Source{Path: filepath.Join(t.TempDir(), "none.alm")}, nil)
	require.NotNil(t, st)
	assert.Zero(t, st.Len())
}
