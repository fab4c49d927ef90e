package workers

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// HealthProbe polls the service's /ping endpoint until it answers 200.
type HealthProbe struct {
	httpClient *http.Client
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

func NewHealthProbe(logger *slog.Logger) *HealthProbe {
	return &HealthProbe{
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
			Transport: &http.Transport{
				// the probe dials loopback, where the certificate name never matches
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // nolint:gosec
			},
		},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			b.MaxElapsedTime = 45 * time.Second
			return b
		},
		logger: logger,
	}
}

// WithBackOff replaces the polling schedule.
func (p *HealthProbe) WithBackOff(fn func() backoff.BackOff) *HealthProbe {
	p.newBackOff = fn
	return p
}

// LoopbackURL is the probe address for a service bound to port.
func LoopbackURL(scheme string, port int) string {
	return fmt.Sprintf("%s://127.0.0.1:%d/ping", scheme, port)
}

func (p *HealthProbe) Wait(ctx context.Context, rawURL string) error {
	start := time.Now()
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := p.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health check returned %d", resp.StatusCode)
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(p.newBackOff(), ctx)); err != nil {
		return fmt.Errorf("service did not become healthy at %s: %w", rawURL, err)
	}
	p.logger.Info("Service is healthy",
		slog.String("url", rawURL),
		slog.Duration("after", time.Since(start)))
	return nil
}
