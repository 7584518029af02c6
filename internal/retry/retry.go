// Package retry wraps outbound HTTP calls with bounded exponential backoff.
package retry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sustainplate/m/internal/apperr"
	"sustainplate/m/internal/logger"
	"sustainplate/m/internal/metrics"
)

const (
	DefaultMaxAttempts  = 4
	DefaultInitialDelay = time.Second
)

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestFunc builds a fresh request for every attempt so bodies can be re-read.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy bounds a retry sequence. MaxAttempts counts the first try.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Sleep        SleepFunc
}

// DefaultPolicy is four attempts with waits of 1s, 2s and 4s between them.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, InitialDelay: DefaultInitialDelay}
}

// StatusError is returned for a response outside the 2xx range.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// CallWithRetry sends the request built by newRequest until it gets a 2xx response or the
// policy's attempts run out. The delay doubles after every failed attempt. On success the
// caller owns the response body. On exhaustion the returned error is an upstream
// apperr.Error wrapping the last failure.
func CallWithRetry(ctx context.Context, client Doer, newRequest RequestFunc, p Policy) (*http.Response, error) {
	p = p.withDefaults()
	log := logger.WithModule("retry")

	delay := p.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		resp, err := attemptOnce(ctx, client, newRequest)
		if err == nil {
			metrics.UpstreamAttempts.WithLabelValues("success").Inc()
			return resp, nil
		}
		metrics.UpstreamAttempts.WithLabelValues("failure").Inc()

		var buildErr *requestError
		if errors.As(err, &buildErr) {
			return nil, apperr.Upstream(buildErr.err, "unable to build upstream request")
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}
		log.Warn("upstream attempt failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		if err := p.Sleep(ctx, delay); err != nil {
			return nil, apperr.Upstream(errors.Wrap(err, "retry aborted"), "upstream service unavailable")
		}
		delay *= 2
	}

	return nil, apperr.Upstream(
		errors.Wrapf(lastErr, "gave up after %d attempts", p.MaxAttempts),
		"upstream service unavailable",
	)
}

type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }

func attemptOnce(ctx context.Context, client Doer, newRequest RequestFunc) (*http.Response, error) {
	req, err := newRequest(ctx)
	if err != nil {
		return nil, &requestError{err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	return resp, nil
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
