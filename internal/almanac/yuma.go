package almanac

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// Parse reads a YUMA almanac. Two shapes are accepted:
//
//	******** Week 245 almanac for PRN-05 ********
//	ID:                         05
//	Eccentricity:               0.5245208740E-002
//	SQRT(A)  (m 1/2):           5153.596680
//	...
//
// and the compact one-line form "PRN: 5 ECC: 0.0 SQRT_A: 5153.5".
//
// Lines that do not parse are skipped and blocks without an ID are dropped;
// neither is an error. Only a read failure is returned.
func Parse(r io.Reader, logger *log.Logger) ([]Entry, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	var (
		out   []Entry
		cur   Entry
		hasID bool
		inc   bool
		lineN int
	)
	flush := func() {
		if hasID {
			if inc {
				cur.InclinationOffset = cur.OrbitalInclination - NominalInclination
			}
			out = append(out, cur)
		}
		cur, hasID, inc = Entry{}, false, false
	}

	s := bufio.NewScanner(r)
	for s.Scan() {
		lineN++
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "*") {
			flush()
			continue
		}
		if strings.Count(line, ":") > 1 {
			e, err := parseCompact(line)
			if err != nil {
				logger.Warn("skipping reference line", "line", lineN, "err", err)
				continue
			}
			out = append(out, e)
			continue
		}

		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			logger.Debug("skipping reference line without key", "line", lineN)
			continue
		}
		key := normalizeKey(line[:colon])
		val := strings.TrimSpace(line[colon+1:])

		if key == "id" || key == "prn" {
			// Files without banner lines start a new block at each ID.
			if hasID {
				flush()
			}
			prn, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				logger.Warn("skipping reference block with bad id", "line", lineN, "value", val)
				continue
			}
			cur.PRN = uint32(prn)
			hasID = true
			continue
		}

		if err := applyField(&cur, key, val, &inc); err != nil {
			logger.Warn("skipping reference line", "line", lineN, "key", key, "err", err)
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("reading reference almanac: %w", err)
	}
	flush()
	return out, nil
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.Join(strings.Fields(k), ""))
}

func applyField(e *Entry, key, val string, inc *bool) error {
	if key == "health" || key == "week" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("bad integer %q", val)
		}
		if key == "health" {
			e.Health = n
		} else {
			e.Week = n
		}
		return nil
	}

	var dst *float64
	switch {
	case key == "eccentricity":
		dst = &e.Eccentricity
	case strings.HasPrefix(key, "timeofapplicability"):
		dst = &e.TimeOfApplicability
	case strings.HasPrefix(key, "orbitalinclination"):
		dst = &e.OrbitalInclination
		*inc = true
	case strings.HasPrefix(key, "rateofrightascen"):
		dst = &e.RateOfRightAscension
	case strings.HasPrefix(key, "sqrt(a)"):
		dst = &e.SqrtA
	case strings.HasPrefix(key, "rightascenatweek"):
		dst = &e.RightAscension
	case strings.HasPrefix(key, "argumentofperigee"):
		dst = &e.ArgumentOfPerigee
	case strings.HasPrefix(key, "meananom"):
		dst = &e.MeanAnomaly
	case strings.HasPrefix(key, "af0"):
		dst = &e.Af0
	case strings.HasPrefix(key, "af1"):
		dst = &e.Af1
	default:
		// Unknown keys are tolerated; YUMA producers add their own.
		return nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fmt.Errorf("bad number %q", val)
	}
	*dst = f
	return nil
}

func parseCompact(line string) (Entry, error) {
	var e Entry
	var hasID bool
	tok := strings.Fields(line)
	for i := 0; i+1 < len(tok); i++ {
		if !strings.HasSuffix(tok[i], ":") {
			continue
		}
		key := strings.ToUpper(strings.TrimSuffix(tok[i], ":"))
		val := tok[i+1]
		i++

		var err error
		switch key {
		case "PRN", "ID":
			var n uint64
			n, err = strconv.ParseUint(val, 10, 32)
			e.PRN = uint32(n)
			hasID = err == nil
		case "ECC":
			e.Eccentricity, err = strconv.ParseFloat(val, 64)
		case "SQRT_A":
			e.SqrtA, err = strconv.ParseFloat(val, 64)
		case "DELTA_I":
			e.InclinationOffset, err = strconv.ParseFloat(val, 64)
			e.OrbitalInclination = NominalInclination + e.InclinationOffset
		}
		if err != nil {
			return Entry{}, fmt.Errorf("bad %s value %q", key, val)
		}
	}
	if !hasID {
		return Entry{}, fmt.Errorf("missing PRN")
	}
	return e, nil
}
