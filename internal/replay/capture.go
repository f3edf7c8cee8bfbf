// Package replay records raw receiver bytes and plays them back as a
// ubx.ByteSource, so a field capture can be re-run through the decoder and
// both validation layers.
package replay

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Capture files are line-oriented text:
//
//	# comment
//	START
//	<ns since START>,<hex burst>
//
// Blank lines and comments are skipped. Each START begins a new session whose
// timestamps restart at zero. A burst is whatever the receiver delivered
// before the line went quiet.

const startMarker = "START"

type Record struct {
	At    time.Duration
	Chunk []byte // nil for a START marker
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadAll parses the whole capture. Errors name the offending line.
func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var recs []Record
	for n := 1; s.Scan(); n++ {
		rec, skip, err := parseLine(s.Text())
		if err != nil {
			return nil, fmt.Errorf("capture line %d: %w", n, err)
		}
		if !skip {
			recs = append(recs, rec)
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

func parseLine(line string) (rec Record, skip bool, err error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "", strings.HasPrefix(line, "#"):
		return Record{}, true, nil
	case line == startMarker:
		return Record{}, false, nil
	}

	ts, data, ok := strings.Cut(line, ",")
	if !ok {
		return Record{}, false, errors.New("missing comma")
	}
	ts = strings.TrimSpace(ts)
	data = strings.ReplaceAll(strings.TrimSpace(data), " ", "")
	if ts == "" || data == "" {
		return Record{}, false, errors.New("empty field")
	}

	ns, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Record{}, false, fmt.Errorf("timestamp %q: %w", ts, err)
	}
	if ns < 0 {
		return Record{}, false, fmt.Errorf("negative timestamp %d", ns)
	}
	chunk, err := hex.DecodeString(data)
	if err != nil {
		return Record{}, false, err
	}
	return Record{At: time.Duration(ns), Chunk: chunk}, false, nil
}

// Writer appends bursts to a capture. It is not safe for concurrent use.
type Writer struct {
	dst    io.WriteCloser
	bw     *bufio.Writer
	start  time.Time
	line   []byte
	closed bool
}

// CreateWriter truncates path and starts a new session in it.
func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, time.Now())
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// NewWriter starts a session on dst with start as its time origin.
func NewWriter(dst io.WriteCloser, start time.Time) (*Writer, error) {
	bw := bufio.NewWriterSize(dst, 64*1024)
	if _, err := bw.WriteString(startMarker + "\n"); err != nil {
		return nil, err
	}
	return &Writer{dst: dst, bw: bw, start: start}, nil
}

// WriteChunk records one burst received at now. Empty bursts are dropped.
func (ww *Writer) WriteChunk(now time.Time, chunk []byte) error {
	if ww.closed {
		return errors.New("capture writer is closed")
	}
	if len(chunk) == 0 {
		return nil
	}
	d := max(now.Sub(ww.start), 0)

	ww.line = strconv.AppendInt(ww.line[:0], d.Nanoseconds(), 10)
	ww.line = append(ww.line, ',')
	ww.line = hex.AppendEncode(ww.line, chunk)
	ww.line = append(ww.line, '\n')
	_, err := ww.bw.Write(ww.line)
	return err
}

func (ww *Writer) Flush() error {
	if ww.closed {
		return nil
	}
	return ww.bw.Flush()
}

func (ww *Writer) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true
	ferr := ww.bw.Flush()
	cerr := ww.dst.Close()
	return errors.Join(ferr, cerr)
}
