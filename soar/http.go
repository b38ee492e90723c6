package soar

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"argus/core"

	"golang.org/x/time/rate"
)

const (
	httpMaxIdleConns        = 20
	httpMaxIdleConnsPerHost = 5
	httpIdleConnTimeout     = 90 * time.Second
	// responses are only read for error messages
	httpMaxErrorBody = 4096
	userAgent        = "Argus/1.0"
)

// ErrUnexpectedStatus is returned when a collaborator answers with a status
// it does not accept
var ErrUnexpectedStatus = errors.New("unexpected response status")

// HTTPConfig is shared by the HTTP based collaborators
type HTTPConfig struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	// RateLimit caps outbound requests per second; zero disables it
	RateLimit float64
	Burst     int
}

// jsonPoster posts JSON documents through a circuit breaker and an optional
// rate limiter
type jsonPoster struct {
	client  *http.Client
	breaker *core.CircuitBreaker
	limiter *rate.Limiter
}

func newJSONPoster(cfg HTTPConfig) *jsonPoster {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCollaboratorTimeout
	}
	p := &jsonPoster{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion:         tls.VersionTLS12,
					InsecureSkipVerify: cfg.InsecureSkipVerify, // #nosec G402 -- opt-in for lab MISP instances
				},
				MaxIdleConns:        httpMaxIdleConns,
				MaxIdleConnsPerHost: httpMaxIdleConnsPerHost,
				IdleConnTimeout:     httpIdleConnTimeout,
			},
		},
		breaker: core.MustNewCircuitBreaker(core.DefaultCircuitBreakerConfig()),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return p
}

// post sends body to url and returns the response status. Statuses not in
// accepted count as breaker failures.
func (p *jsonPoster) post(ctx context.Context, url string, headers map[string]string, body any, accepted ...int) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("rate limiter: %w", err)
		}
	}

	// nothing between Allow and the Record calls below may return early
	if err := p.breaker.Allow(); err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.breaker.RecordFailure()
		return 0, err
	}
	defer resp.Body.Close()

	for _, code := range accepted {
		if resp.StatusCode == code {
			p.breaker.RecordSuccess()
			_, _ = io.Copy(io.Discard, resp.Body)
			return resp.StatusCode, nil
		}
	}
	p.breaker.RecordFailure()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, httpMaxErrorBody))
	return resp.StatusCode, fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, bytes.TrimSpace(msg))
}
