// Package outbound is the JSON-over-HTTP client shared by the voice platform
// and LLM integrations. Every call runs through a circuit breaker.
package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"salesdeck.io/internal/obs"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("outbound: service unavailable")

// StatusError is a non-2xx response.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Client issues JSON requests against one base URL.
type Client struct {
	name    string
	baseURL string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

type settings struct {
	httpClient *http.Client
	timeout    time.Duration
	token      string
	failures   uint32
	openFor    time.Duration
}

// Option configures a Client.
type Option func(*settings)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) { s.httpClient = hc }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithBearer sends token in the Authorization header.
func WithBearer(token string) Option {
	return func(s *settings) { s.token = strings.TrimSpace(token) }
}

// WithBreaker trips after failures consecutive failures and stays open for
// openFor before probing again.
func WithBreaker(failures uint32, openFor time.Duration) Option {
	return func(s *settings) {
		if failures > 0 {
			s.failures = failures
		}
		if openFor > 0 {
			s.openFor = openFor
		}
	}
}

// New builds a client for the named service.
func New(name, baseURL string, opts ...Option) *Client {
	s := settings{timeout: 15 * time.Second, failures: 5, openFor: 30 * time.Second}
	for _, opt := range opts {
		opt(&s)
	}
	hc := s.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: s.timeout}
	}
	c := &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   s.token,
		http:    hc,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.failures
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.StatusCode < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			obs.SetBreakerState(name, int(to))
			obs.Logger().Warn("circuit breaker state change",
				zap.String("service", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

// Name returns the service name used for metrics and errors.
func (c *Client) Name() string { return c.name }

// JSON sends in (when non-nil) as a JSON body to path and decodes the
// response into out (when non-nil).
func (c *Client) JSON(ctx context.Context, method, path string, in, out any) error {
	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, method, path, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %s", ErrUnavailable, c.name)
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	obs.ObserveOutbound(c.name, outcome, time.Since(start))
	return err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.name, err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Service: c.name, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	return nil
}
