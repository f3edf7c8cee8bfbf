package almanac

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DefaultSourceURL is the USCG NAVCEN current YUMA almanac.
const DefaultSourceURL = "https://www.navcen.uscg.gov/sites/default/files/gps/almanac/current_yuma.alm"

// Fetcher retrieves a reference almanac over HTTP.
type Fetcher struct {
	sourceURL  string
	httpClient *http.Client
}

// NewFetcher creates a Fetcher for sourceURL. An empty URL selects
// DefaultSourceURL; a non-positive timeout selects 30s.
func NewFetcher(sourceURL string, timeout time.Duration) *Fetcher {
	if sourceURL == "" {
		sourceURL = DefaultSourceURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		sourceURL:  sourceURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (f *Fetcher) SourceURL() string { return f.sourceURL }

// Fetch streams the remote almanac into w.
func (f *Fetcher) Fetch(ctx context.Context, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.sourceURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching almanac: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, f.sourceURL)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return nil
}

// FetchToFile downloads into path. The file is only replaced once the whole
// body arrived, so a failed download leaves the previous almanac in place.
func (f *Fetcher) FetchToFile(ctx context.Context, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating almanac dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".almanac-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := f.Fetch(ctx, tmp); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing almanac: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing almanac: %w", err)
	}
	ok = true
	return nil
}
