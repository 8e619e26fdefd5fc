package toolregistry

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/edgeworks-labs/orbiter/internal/requestid"
	"github.com/sony/gobreaker"
)

// HTTPRegistry resolves every `uses` address as a URL and performs an
// HTTP call with the rendered `with` arguments as the JSON body. Built
// on the same http.Client tuning as the teacher's scheduler.Executor:
// a TLS floor, a bounded idle-connection pool, and a capped redirect
// chain. Each call is bound by the step's context deadline; the client's
// fixed 5-minute timeout is an outer limit on top of it.
type HTTPRegistry struct {
	client  *http.Client
	logger  *slog.Logger
	breaker *gobreaker.CircuitBreaker
}

func NewHTTPRegistry(logger *slog.Logger) *HTTPRegistry {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "tool-http",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 8
		},
	})
	return &HTTPRegistry{
		client: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		logger:  logger.With("component", "tool_http_registry"),
		breaker: cb,
	}
}

func (r *HTTPRegistry) Invoke(ctx context.Context, address string, args domain.Value, deadline time.Time) (domain.Value, error) {
	callCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	body, err := json.Marshal(args)
	if err != nil {
		return domain.NullValue(), fmt.Errorf("marshal tool args: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, address, bytes.NewReader(body))
	if err != nil {
		return domain.NullValue(), fmt.Errorf("build tool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	reqID := requestid.New()
	req.Header.Set("X-Request-ID", reqID)

	raw, err := r.breaker.Execute(func() (any, error) {
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("tool %s returned status %d: %s", address, resp.StatusCode, string(data))
		}
		return data, nil
	})
	if err != nil {
		r.logger.ErrorContext(callCtx, "tool invocation failed", "address", address, "error", err)
		return domain.NullValue(), err
	}

	data := raw.([]byte)
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.NullValue(), nil
	}
	var out domain.Value
	if err := json.Unmarshal(data, &out); err != nil {
		return domain.NullValue(), fmt.Errorf("decode tool response: %w", err)
	}
	return out, nil
}
