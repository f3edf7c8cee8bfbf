package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"spoofwatch/internal/alert"
	"spoofwatch/internal/gps"
	"spoofwatch/internal/track"
	"spoofwatch/internal/ubx"
	"spoofwatch/internal/validate"
)

type fakeIngest struct{ snap gps.Snapshot }

func (f fakeIngest) Snapshot() gps.Snapshot { return f.snap }

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("%s: status code=%d", url, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("%s: content-type=%q", url, ct)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	return resp
}

func TestAPIStatus(t *testing.T) {
	st := NewStatus()
	st.SetReference(time.Time{}, ReferenceInfo{Path: "/var/lib/spoofwatch/latest.alm", Satellites: 31})
	st.SetTolerances(validate.DefaultTolerances())

	ts := httptest.NewServer(Handler(st, nil, nil, nil))
	defer ts.Close()

	var snap StatusSnapshot
	getJSON(t, ts.URL+"/api/status", &snap)
	if snap.Service != "spoofwatch" {
		t.Fatalf("service=%q", snap.Service)
	}
	if snap.Build.GoVersion == "" {
		t.Fatalf("build info missing go version")
	}
	if snap.Reference.Satellites != 31 || snap.Reference.LoadedUTC == "" {
		t.Fatalf("reference=%+v", snap.Reference)
	}
	if snap.Tolerances.PositionM != 1000 {
		t.Fatalf("tolerances=%+v", snap.Tolerances)
	}
	if snap.Ingest != nil {
		t.Fatalf("ingest should be absent before SetIngest")
	}
}

func TestAPIStatus_IncludesIngestSnapshot(t *testing.T) {
	st := NewStatus()
	st.SetIngest(fakeIngest{snap: gps.Snapshot{
		Running:   true,
		Source:    "/dev/ttyACM0",
		Decoder:   ubx.Stats{Almanacs: 12, BadChecksum: 1},
		Ephemeris: gps.LayerCounts{Pass: 4, Fail: 1},
	}})

	ts := httptest.NewServer(Handler(st, nil, nil, nil))
	defer ts.Close()

	var snap StatusSnapshot
	getJSON(t, ts.URL+"/api/status", &snap)
	if snap.Ingest == nil {
		t.Fatalf("expected ingest section")
	}
	if !snap.Ingest.Running || snap.Ingest.Source != "/dev/ttyACM0" {
		t.Fatalf("ingest=%+v", snap.Ingest)
	}
	if snap.Ingest.Decoder.Almanacs != 12 || snap.Ingest.Ephemeris.Fail != 1 {
		t.Fatalf("ingest counts=%+v", snap.Ingest)
	}
}

func TestAPIStatus_RejectsPost(t *testing.T) {
	ts := httptest.NewServer(Handler(NewStatus(), nil, nil, nil))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/status", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if got := resp.Header.Get("Allow"); got != http.MethodGet {
		t.Fatalf("allow=%q", got)
	}
}

func TestAPISatellites(t *testing.T) {
	now := time.Now().UTC()
	tbl := track.NewTable()
	tbl.UpdateAlmanac(now, ubx.AlmanacRecord{SatelliteID: 9, SqrtA: 5153.6})
	tbl.UpdateAlmanac(now, ubx.AlmanacRecord{SatelliteID: 2, SqrtA: 5153.7})
	tbl.UpdateEphemeris(now, ubx.EphemerisRecord{SatelliteID: 2, TOW: 1000})

	ts := httptest.NewServer(Handler(NewStatus(), tbl, nil, nil))
	defer ts.Close()

	var resp SatellitesResponse
	getJSON(t, ts.URL+"/api/satellites", &resp)
	if resp.Count != 2 || len(resp.Satellites) != 2 {
		t.Fatalf("count=%d len=%d", resp.Count, len(resp.Satellites))
	}
	if resp.Satellites[0].ID != 2 || !resp.Satellites[0].HasEphemeris {
		t.Fatalf("first=%+v", resp.Satellites[0])
	}
	if resp.Satellites[1].ID != 9 || resp.Satellites[1].HasEphemeris {
		t.Fatalf("second=%+v", resp.Satellites[1])
	}
}

func TestAPISatellites_EmptyTableIsEmptyList(t *testing.T) {
	ts := httptest.NewServer(Handler(NewStatus(), track.NewTable(), nil, nil))
	defer ts.Close()

	res, err := http.Get(ts.URL + "/api/satellites")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(b), `"satellites": []`) {
		t.Fatalf("body=%s", b)
	}
}

func TestMetricsRoute(t *testing.T) {
	m, err := alert.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.Fail(context.Background(), validate.Verdict{Layer: validate.LayerEphemeris, SatelliteID: 4, Status: validate.Fail})

	ts := httptest.NewServer(Handler(NewStatus(), nil, m.Handler(), nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), `spoofwatch_alerts_total{layer="ephemeris",satellite="4"} 1`) {
		t.Fatalf("metrics body missing alert counter:\n%s", b)
	}
}

func TestOptionalRoutesAreNotFound(t *testing.T) {
	ts := httptest.NewServer(Handler(NewStatus(), nil, nil, nil))
	defer ts.Close()

	for _, p := range []string{"/api/satellites", "/metrics", "/api/logs", "/nope"} {
		resp, err := http.Get(ts.URL + p)
		if err != nil {
			t.Fatalf("get %s: %v", p, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: status code=%d", p, resp.StatusCode)
		}
	}
}

func TestRootPage(t *testing.T) {
	ts := httptest.NewServer(Handler(NewStatus(), nil, nil, nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get root: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "/api/satellites") {
		t.Fatalf("root page missing links")
	}
}

func TestLogBuffer_JoinsPartialWrites(t *testing.T) {
	b := NewLogBuffer(3)
	_, _ = b.Write([]byte("first line\nsecond "))
	_, _ = b.Write([]byte("line\r\n\nthird\nfourth"))

	lines, dropped := b.Snapshot(0)
	want := []string{"first line", "second line", "third"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Fatalf("lines=%q", lines)
	}
	if dropped != 0 {
		t.Fatalf("dropped=%d", dropped)
	}

	_, _ = b.Write([]byte("\n"))
	lines, dropped = b.Snapshot(2)
	if strings.Join(lines, "|") != "third|fourth" || dropped != 1 {
		t.Fatalf("lines=%q dropped=%d", lines, dropped)
	}
}

func TestLogsHandler(t *testing.T) {
	logs := NewLogBuffer(10)
	_, _ = logs.Write([]byte("a\nb\nc\n"))

	ts := httptest.NewServer(Handler(NewStatus(), nil, nil, logs))
	defer ts.Close()

	var resp LogsResponse
	getJSON(t, ts.URL+"/api/logs?tail=2", &resp)
	if strings.Join(resp.Lines, ",") != "b,c" {
		t.Fatalf("lines=%q", resp.Lines)
	}

	res, err := http.Get(ts.URL + "/api/logs?format=text")
	if err != nil {
		t.Fatalf("get text: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if string(body) != "a\nb\nc\n" {
		t.Fatalf("text body=%q", body)
	}

	res, err = http.Get(ts.URL + "/api/logs?tail=0")
	if err != nil {
		t.Fatalf("get bad tail: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad tail status=%d", res.StatusCode)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Serve(ctx, addr, Handler(NewStatus(), nil, nil, nil)) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/api/status")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after cancel")
	}
}
