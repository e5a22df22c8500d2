package ctydb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"dxwatch/pkg/util/workers"
)

const (
	DefaultSourceURL = "https://www.country-files.com/cty/cty.dat"
	DefaultUserAgent = "dxwatch/cty-fetcher"
)

// FetchMetadata records the provenance of a cached country database file
type FetchMetadata struct {
	SourceURL    string    `json:"source_url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`
	CachePath    string    `json:"cache_path"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Fetcher downloads CTY.DAT with ETag/Last-Modified support so an
// unchanged upstream file is never re-downloaded
type Fetcher struct {
	client    *http.Client
	sourceURL string
	userAgent string
	cacheDir  string
}

// NewFetcher creates a fetcher caching into cacheDir
func NewFetcher(sourceURL, cacheDir string) *Fetcher {
	if sourceURL == "" {
		sourceURL = DefaultSourceURL
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
		sourceURL: sourceURL,
		userAgent: DefaultUserAgent,
		cacheDir:  cacheDir,
	}
}

// Fetch downloads the country database if it changed since the last fetch.
// Returns metadata pointing at the cached file.
func (f *Fetcher) Fetch(ctx context.Context) (*FetchMetadata, error) {
	if err := os.MkdirAll(f.cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	metaPath := filepath.Join(f.cacheDir, "cty-metadata.json")
	var existing FetchMetadata
	if data, err := os.ReadFile(metaPath); err == nil {
		_ = json.Unmarshal(data, &existing)
	}

	var meta *FetchMetadata
	err := workers.Retry(ctx, workers.DefaultRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, "GET", f.sourceURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", f.userAgent)
		if existing.ETag != "" {
			req.Header.Set("If-None-Match", existing.ETag)
		}
		if !existing.LastModified.IsZero() {
			req.Header.Set("If-Modified-Since", existing.LastModified.Format(http.TimeFormat))
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotModified {
			meta = &existing
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		cachePath := filepath.Join(f.cacheDir, fmt.Sprintf("cty-%s.dat", time.Now().Format("20060102-150405")))
		tempPath := cachePath + ".tmp"
		tempFile, err := os.Create(tempPath)
		if err != nil {
			return fmt.Errorf("failed to create temp file: %w", err)
		}
		defer func() {
			tempFile.Close()
			os.Remove(tempPath)
		}()

		if _, err := io.Copy(tempFile, resp.Body); err != nil {
			return fmt.Errorf("failed to download: %w", err)
		}
		tempFile.Close()

		// Atomic rename so a half-written file is never loadable
		if err := os.Rename(tempPath, cachePath); err != nil {
			return fmt.Errorf("failed to rename temp file: %w", err)
		}

		var lastModified time.Time
		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			if t, err := http.ParseTime(lm); err == nil {
				lastModified = t
			}
		}

		meta = &FetchMetadata{
			SourceURL:    f.sourceURL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: lastModified,
			CachePath:    cachePath,
			FetchedAt:    time.Now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if data, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(metaPath, data, 0644)
	}

	return meta, nil
}
