package almanac

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Source says where the reference almanac lives and whether to refresh it
// before loading.
type Source struct {
	Path    string
	URL     string
	Fetch   bool
	Timeout time.Duration
}

// Load refreshes the reference file when asked to, then parses whatever is
// on disk. It never fails: a failed download falls back to the file already
// on hand, and a missing or unreadable file yields an empty store.
func Load(ctx context.Context, src Source, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	if src.Fetch {
		f := NewFetcher(src.URL, src.Timeout)
		if err := f.FetchToFile(ctx, src.Path); err != nil {
			logger.Warn("reference fetch failed, using almanac on hand", "url", f.SourceURL(), "err", err)
		} else {
			logger.Info("reference almanac downloaded", "url", f.SourceURL(), "path", src.Path)
		}
	}

	fh, err := os.Open(src.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("no reference almanac on hand; layer 1 will pass unverified", "path", src.Path)
		} else {
			logger.Error("reference almanac unreadable", "path", src.Path, "err", err)
		}
		return NewStore(nil)
	}
	defer fh.Close()

	entries, err := Parse(fh, logger)
	if err != nil {
		logger.Error("reference almanac parse failed", "path", src.Path, "err", err)
		return NewStore(nil)
	}
	st := NewStore(entries)
	logger.Info("reference almanac loaded", "path", src.Path, "satellites", st.Len())
	return st
}
