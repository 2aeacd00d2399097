package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/obs"
)

// HTTPClient sends outbound integration calls with per-attempt timeouts,
// retries and a circuit breaker. Outcomes are counted under Target.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
	Target      string
	Logger      *zerolog.Logger
	Fallback    func(context.Context, *http.Request, error) (*http.Response, error)
}

// StatusError reports a retryable response that exhausted the attempts.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string { return "resilience: upstream responded " + e.Status }

// Do sends req, retrying 5xx, 429 and transport errors. A Retry-After header
// on the failed response overrides the computed backoff. An open breaker
// yields ErrOpenCircuit unless Fallback is set.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := cl.do(ctx, req)
	obs.ObserveOutbound(cl.label(), err)
	return resp, err
}

func (cl HTTPClient) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}
	attempts := max(cl.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if !cl.Breaker.Allow(ctx) {
			lastErr = ErrOpenCircuit
			break
		}
		resp, err := cl.attempt(ctx, req, body)
		if err == nil && !retryable(resp.StatusCode) {
			cl.Breaker.Report(ctx, true)
			return resp, nil
		}
		wait := Backoff(cl.BaseBackoff, attempt, cl.Jitter)
		if err == nil {
			lastErr = &StatusError{Code: resp.StatusCode, Status: resp.Status}
			if d, ok := retryAfter(resp.Header.Get("Retry-After")); ok {
				wait = d
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		} else {
			lastErr = err
		}
		cl.Breaker.Report(ctx, false)
		if attempt == attempts {
			break
		}

		OutboundRetriesTotal.WithLabelValues(cl.label()).Inc()
		if cl.Logger != nil {
			cl.Logger.Warn().Err(lastErr).Str("target", cl.label()).Int("attempt", attempt).Dur("wait", wait).Msg("outbound call failed, retrying")
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	if cl.Fallback != nil {
		return cl.Fallback(ctx, req, lastErr)
	}
	return nil, lastErr
}

// attempt runs one call. The attempt context lives until the body is closed.
func (cl HTTPClient) attempt(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	clone := req.Clone(callCtx)
	if body != nil {
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
	}
	resp, err := cl.Client.Do(clone)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (cl HTTPClient) label() string {
	if cl.Target == "" {
		return "default"
	}
	return cl.Target
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func retryable(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

// retryAfter accepts the delta-seconds form only; gateways here never send dates.
func retryAfter(v string) (time.Duration, bool) {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return min(time.Duration(secs)*time.Second, maxBackoff), true
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	rc := req.Body
	if req.GetBody != nil {
		fresh, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		rc = fresh
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
