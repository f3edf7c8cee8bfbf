package replay

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"spoofwatch/internal/ubx"
)

type fakeSleeper struct {
	slept []time.Duration
}

func (fs *fakeSleeper) Sleep(d time.Duration) {
	fs.slept = append(fs.slept, d)
}

// drain reads src until EOF, returning the bursts split at timeouts.
func drain(t *testing.T, src ubx.ByteSource, limit int) [][]byte {
	t.Helper()
	var out [][]byte
	var cur []byte
	for i := 0; i < limit; i++ {
		b, err := src.ReadByte()
		switch {
		case err == nil:
			cur = append(cur, b)
		case errors.Is(err, ubx.ErrTimeout):
			out = append(out, cur)
			cur = nil
		case errors.Is(err, io.EOF):
			return out
		default:
			t.Fatalf("ReadByte() error: %v", err)
		}
	}
	return out
}

func TestReaderReadAll(t *testing.T) {
	in := strings.NewReader(`
# comment

START
0, b562
10, 0a 0b
`)

	recs, err := NewReader(in).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].Chunk != nil {
		t.Fatalf("expected START marker (nil chunk), got %v", recs[0].Chunk)
	}
	if !reflect.DeepEqual(recs[1].Chunk, []byte{0xB5, 0x62}) {
		t.Fatalf("unexpected chunk 1: %x", recs[1].Chunk)
	}
	if recs[2].At != 10*time.Nanosecond {
		t.Fatalf("expected At=10ns, got %s", recs[2].At)
	}
}

func TestReaderReadAll_InvalidLines(t *testing.T) {
	for _, in := range []string{"not-a-valid-line\n", "-5,00\n", "5,zz\n", "5,\n"} {
		if _, err := NewReader(strings.NewReader(in)).ReadAll(); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestReaderReadAll_ErrorNamesLine(t *testing.T) {
	_, err := NewReader(strings.NewReader("START\n0,b562\nbogus\n")).ReadAll()
	if err == nil || err.Error() != "capture line 3: missing comma" {
		t.Fatalf("err=%v", err)
	}
}

func TestSource_RespectsTimingAndStart(t *testing.T) {
	fs := &fakeSleeper{}
	recs := []Record{
		{At: 1 * time.Second},
		{At: 1 * time.Second, Chunk: []byte{0xAA}},
		{At: 1*time.Second + 100*time.Nanosecond, Chunk: []byte{0xBB, 0xBC}},
		{At: 2 * time.Second},
		{At: 2*time.Second + 50*time.Nanosecond, Chunk: []byte{0xCC}},
	}
	src, err := NewSource(recs, Options{Sleeper: fs})
	if err != nil {
		t.Fatalf("NewSource() error: %v", err)
	}

	got := drain(t, src, 100)
	want := [][]byte{{0xAA}, {0xBB, 0xBC}, {0xCC}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("bursts = %x, want %x", got, want)
	}
	// The first burst after START never waits.
	if !reflect.DeepEqual(fs.slept, []time.Duration{100 * time.Nanosecond}) {
		t.Fatalf("slept = %v, want [100ns]", fs.slept)
	}
}

func TestSource_SpeedMultiplier(t *testing.T) {
	fs := &fakeSleeper{}
	recs := []Record{
		{At: 0, Chunk: []byte{0x01}},
		{At: 100 * time.Nanosecond, Chunk: []byte{0x02}},
	}
	src, err := NewSource(recs, Options{Speed: 2, Sleeper: fs})
	if err != nil {
		t.Fatalf("NewSource() error: %v", err)
	}
	drain(t, src, 100)
	if !reflect.DeepEqual(fs.slept, []time.Duration{50 * time.Nanosecond}) {
		t.Fatalf("slept = %v, want [50ns]", fs.slept)
	}
}

func TestSource_LoopRestarts(t *testing.T) {
	recs := []Record{{At: 0, Chunk: []byte{0x01}}}
	src, err := NewSource(recs, Options{Loop: true, Sleeper: &fakeSleeper{}})
	if err != nil {
		t.Fatalf("NewSource() error: %v", err)
	}
	got := drain(t, src, 9)
	if len(got) != 4 {
		t.Fatalf("expected 4 complete bursts from a looping source, got %d", len(got))
	}
}

func TestNewSource_Invalid(t *testing.T) {
	if _, err := NewSource([]Record{{At: 0, Chunk: []byte{1}}}, Options{Speed: -1}); err == nil {
		t.Fatalf("expected error for negative speed")
	}
	if _, err := NewSource([]Record{{}}, Options{}); err == nil {
		t.Fatalf("expected error for capture without data")
	}
}

func TestWriter_WritesExpectedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.cap")

	w, err := CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}
	w.start = time.Unix(0, 0)

	if err := w.WriteChunk(time.Unix(0, 20), []byte{0xB5, 0x62}); err != nil {
		t.Fatalf("WriteChunk() error: %v", err)
	}
	if err := w.WriteChunk(time.Unix(0, 30), nil); err != nil {
		t.Fatalf("WriteChunk(nil) error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := w.WriteChunk(time.Unix(0, 40), []byte{1}); err == nil {
		t.Fatalf("expected error after Close")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(b) != "START\n20,b562\n" {
		t.Fatalf("unexpected file contents: %q", string(b))
	}
}

func TestTee_CaptureReplaysThroughDecoder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rx.cap")
	w, err := CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}

	alm := ubx.AlmanacRecord{SatelliteID: 12, Week: 245, TOA: 405504, SqrtA: 5153.6, Eccentricity: 0.004}
	eph := ubx.EphemerisRecord{SatelliteID: 12, TOW: 405600}
	live := bytes.Join([][]byte{{0x00, 0xFF}, ubx.EncodeAlmanac(alm), ubx.EncodeEphemeris(eph)}, nil)

	tee := NewTee(bufio.NewReader(bytes.NewReader(live)), w)
	var passed []byte
	for {
		b, err := tee.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.Fatalf("ReadByte() error: %v", err)
			}
			break
		}
		passed = append(passed, b)
	}
	if !bytes.Equal(passed, live) {
		t.Fatalf("tee altered the stream")
	}
	if err := tee.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if tee.Err() != nil {
		t.Fatalf("capture error: %v", tee.Err())
	}

	src, err := OpenFile(path, Options{Sleeper: &fakeSleeper{}})
	if err != nil {
		t.Fatalf("OpenFile() error: %v", err)
	}
	dec := ubx.NewDecoder(src, ubx.Options{})
	var msgs []ubx.Message
	for {
		m, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		if m != nil {
			msgs = append(msgs, m)
		}
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 records from capture, got %d", len(msgs))
	}
	if got, ok := msgs[0].(ubx.AlmanacRecord); !ok || got != alm {
		t.Fatalf("almanac = %+v, want %+v", msgs[0], alm)
	}
	if got, ok := msgs[1].(ubx.EphemerisRecord); !ok || got != eph {
		t.Fatalf("ephemeris = %+v, want %+v", msgs[1], eph)
	}
}
