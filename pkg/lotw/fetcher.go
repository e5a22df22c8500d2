package lotw

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"dxwatch/pkg/model"
	"dxwatch/pkg/util/workers"
)

const (
	// Primary source at the ARRL, with a community mirror as fallback
	DefaultPrimaryURL  = "https://lotw.arrl.org/lotw-user-activity.csv"
	DefaultFallbackURL = "https://www.hb9bza.net/lotw/lotw-user-activity.csv"
	defaultUserAgent   = "dxwatch/lotw-fetcher"
)

// HTTPSource downloads the user-activity CSV, falling back to the mirror
// when the primary fails or serves an HTML error page instead of CSV.
type HTTPSource struct {
	client      *http.Client
	primaryURL  string
	fallbackURL string
	userAgent   string
	limiter     *rate.Limiter
}

// NewHTTPSource creates an activity source. Empty URLs select the defaults.
func NewHTTPSource(primaryURL, fallbackURL string) *HTTPSource {
	if primaryURL == "" {
		primaryURL = DefaultPrimaryURL
	}
	if fallbackURL == "" {
		fallbackURL = DefaultFallbackURL
	}
	return &HTTPSource{
		client:      &http.Client{Timeout: 2 * time.Minute},
		primaryURL:  primaryURL,
		fallbackURL: fallbackURL,
		userAgent:   defaultUserAgent,
		// Politeness: these are weekly-scale bulk files, never hammer them
		limiter: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// Fetch returns the activity CSV body. Both sources are tried with retry;
// only when both fail does the refresh fail.
func (s *HTTPSource) Fetch(ctx context.Context) (io.ReadCloser, error) {
	body, primaryErr := s.download(ctx, s.primaryURL)
	if primaryErr == nil {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	log.Printf("WARN: primary activity source failed, trying mirror: %v", primaryErr)

	body, fallbackErr := s.download(ctx, s.fallbackURL)
	if fallbackErr == nil {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	return nil, fmt.Errorf("%w: primary: %v; fallback: %v", model.ErrFetchFailed, primaryErr, fallbackErr)
}

func (s *HTTPSource) download(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := workers.RateLimitedRetry(ctx, s.limiter, workers.DefaultRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", s.userAgent)

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if looksLikeHTML(data) {
			return fmt.Errorf("source returned HTML instead of CSV")
		}

		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// looksLikeHTML guards against error pages served with status 200
func looksLikeHTML(data []byte) bool {
	head := strings.ToLower(string(data[:min(len(data), 512)]))
	return strings.HasPrefix(strings.TrimSpace(head), "<!doctype") || strings.Contains(head, "<html")
}
