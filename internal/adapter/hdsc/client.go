// Package hdsc downloads Atlas 14 grid archives from the NOAA Hydrometeorological
// Design Studies Center file server.
package hdsc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/couchcryptid/noaa-grids-etl/internal/domain"
	"github.com/couchcryptid/noaa-grids-etl/internal/observability"
)

// StatusError is returned for any non-200 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hdsc: %s: status %d", e.URL, e.Code)
}

// Client streams grid archives to disk.
type Client struct {
	baseURL    string
	httpClient *http.Client
	chunkSize  int
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an HDSC client. Every request is bounded by limits.RequestTimeout.
func NewClient(baseURL string, limits domain.Limits, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: limits.RequestTimeout,
		},
		chunkSize: limits.ChunkSize,
		metrics:   metrics,
		logger:    logger,
	}
}

// URL returns the archive location for a task: {base}/{zone}/{archive}.
func (c *Client) URL(task domain.GridTask) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(task.Zone), task.ArchiveName())
}

// Download writes the archive for task to dst and returns the bytes written.
// On error dst may hold a partial file; removing it is the caller's job.
func (c *Client) Download(ctx context.Context, task domain.GridTask, dst string) (int64, error) {
	start := time.Now()
	n, err := c.download(ctx, c.URL(task), dst)
	c.metrics.DownloadDuration.Observe(time.Since(start).Seconds())
	c.metrics.DownloadBytes.Add(float64(n))
	if err != nil {
		c.metrics.DownloadRequests.WithLabelValues("error").Inc()
		return n, err
	}
	c.metrics.DownloadRequests.WithLabelValues("success").Inc()
	c.logger.Debug("archive downloaded", "archive", task.ArchiveName(), "zone", task.Zone, "bytes", n)
	return n, nil
}

func (c *Client) download(ctx context.Context, fullURL, dst string) (n int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("hdsc request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, &StatusError{URL: fullURL, Code: resp.StatusCode}
	}

	f, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close archive: %w", cerr)
		}
	}()

	return copyChunks(f, resp.Body, c.chunkSize)
}

// copyChunks copies src to dst reading at most size bytes at a time.
func copyChunks(dst io.Writer, src io.Reader, size int) (int64, error) {
	if size <= 0 {
		size = 32 * 1024
	}
	buf := make([]byte, size)
	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, fmt.Errorf("write archive: %w", werr)
			}
		}
		if errors.Is(rerr, io.EOF) {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("read response: %w", rerr)
		}
	}
}
