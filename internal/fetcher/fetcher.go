// Package fetcher provides a rate-limited HTTP client for the public JSON
// APIs the collectors poll, plus readers for manually imported CSV and XLSX
// files.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote data with per-host rate limiting and retries.
type Fetcher interface {
	// Get fetches the URL and returns the response body.
	Get(ctx context.Context, url string) (io.ReadCloser, error)

	// GetJSON fetches the URL and decodes the response body into v.
	GetJSON(ctx context.Context, url string, v any) error
}
