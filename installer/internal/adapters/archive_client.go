package adapters

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const archiveUserAgent = "trafficx-installer"

// ArchiveClient downloads release archives. Transport errors and 5xx
// responses are retried with exponential backoff; other statuses fail at once.
type ArchiveClient struct {
	http       *http.Client
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

func NewArchiveClient(client *http.Client, logger *slog.Logger) *ArchiveClient {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &ArchiveClient{
		http: client,
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ExponentialBackOff{
				InitialInterval:     time.Second,
				RandomizationFactor: backoff.DefaultRandomizationFactor,
				Multiplier:          backoff.DefaultMultiplier,
				MaxInterval:         10 * time.Second,
				MaxElapsedTime:      2 * time.Minute,
				Stop:                backoff.Stop,
				Clock:               backoff.SystemClock,
			}, 4)
		},
		logger: logger,
	}
}

// WithBackOff replaces the retry policy.
func (c *ArchiveClient) WithBackOff(fn func() backoff.BackOff) *ArchiveClient {
	c.newBackOff = fn
	return c
}

// Download writes the body of url to dst, truncating it between attempts.
func (c *ArchiveClient) Download(ctx context.Context, url, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file %q: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			c.logger.Warn("error closing archive file", slog.String("path", dst), slog.Any("error", cerr))
		}
	}()

	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			if err := out.Truncate(0); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to truncate file on retry: %w", err))
			}
			if _, err := out.Seek(0, io.SeekStart); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to seek to beginning of file: %w", err))
			}
		}
		return c.once(ctx, url, out)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Download failed, retrying",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.Any("error", err))
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		return err
	}
	c.logger.Debug("Archive downloaded", slog.String("url", url), slog.String("path", dst))
	return nil
}

func (c *ArchiveClient) once(ctx context.Context, url string, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
	}
	req.Header.Set("User-Agent", archiveUserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("unexpected HTTP status: %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return backoff.Permanent(fmt.Errorf("unexpected HTTP status: %d", resp.StatusCode))
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to write response body to file: %w", err)
	}
	return nil
}
