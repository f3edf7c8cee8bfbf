package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"spoofwatch/internal/replay"
	"spoofwatch/internal/ubx"
)

type captureSummary struct {
	Segments    int
	Chunks      int
	Bytes       int
	MaxDuration time.Duration
	Decoder     ubx.Stats
	Satellites  map[uint32]int
}

type noSleep struct{}

func (noSleep) Sleep(time.Duration) {}

// summarizeCapture decodes every burst in recs as fast as possible.
func summarizeCapture(recs []replay.Record) (captureSummary, error) {
	s := captureSummary{Satellites: map[uint32]int{}}

	origin := time.Duration(0)
	hasChunks := false
	for _, r := range recs {
		if r.Chunk == nil {
			s.Segments++
			origin = r.At
			continue
		}
		hasChunks = true
		s.Chunks++
		s.Bytes += len(r.Chunk)
		if at := r.At - origin; at > s.MaxDuration {
			s.MaxDuration = at
		}
	}
	if s.Segments == 0 && hasChunks {
		s.Segments = 1
	}
	if !hasChunks {
		return s, nil
	}

	src, err := replay.NewSource(recs, replay.Options{Sleeper: noSleep{}})
	if err != nil {
		return s, err
	}
	dec := ubx.NewDecoder(src, ubx.Options{})
	for {
		msg, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s, err
		}
		if msg != nil {
			s.Satellites[msg.SVID()]++
		}
	}
	s.Decoder = dec.Stats()
	return s, nil
}

func printCaptureSummary(path string, w io.Writer) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, err := replay.NewReader(f).ReadAll()
	if err != nil {
		return err
	}
	s, err := summarizeCapture(recs)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "chunks: %d\n", s.Chunks)
	fmt.Fprintf(w, "bytes: %d\n", s.Bytes)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)
	fmt.Fprintf(w, "almanacs: %d\n", s.Decoder.Almanacs)
	fmt.Fprintf(w, "ephemerides: %d\n", s.Decoder.Ephemerides)
	fmt.Fprintf(w, "discarded: %d (bad_checksum=%d unknown_type=%d short_payload=%d oversize=%d)\n",
		s.Decoder.Discarded(), s.Decoder.BadChecksum, s.Decoder.UnknownType, s.Decoder.ShortPayload, s.Decoder.Oversize)

	ids := make([]int, 0, len(s.Satellites))
	for id := range s.Satellites {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	fmt.Fprintf(w, "satellites:\n")
	for _, id := range ids {
		fmt.Fprintf(w, "  %d: %d\n", id, s.Satellites[uint32(id)])
	}
	return nil
}
