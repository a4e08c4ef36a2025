// Package fetchmw implements the wire-level HTTP fetch middleware pipeline
// used underneath SSE/HTTP transports: OAuth bearer attachment, structured
// request logging, and retry-with-backoff, composed as a base Fetcher
// progressively wrapped by cross-cutting concerns.
package fetchmw

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Fetcher performs one HTTP round trip. http.Client.Do satisfies this
// shape; the request's own context carries cancellation.
type Fetcher func(req *http.Request) (*http.Response, error)

// Middleware wraps a Fetcher to produce another Fetcher.
type Middleware func(next Fetcher) Fetcher

// Apply composes middleware around base in the order given: mw[0] is
// outermost.
func Apply(base Fetcher, mw ...Middleware) Fetcher {
	fetcher := base
	for i := len(mw) - 1; i >= 0; i-- {
		fetcher = mw[i](fetcher)
	}
	return fetcher
}

// OAuthClientProvider supplies bearer tokens and refreshes them on 401,
// the way a transport would delegate to a stored client credential flow.
// Only the interface is defined here; concrete OAuth flows are the
// embedding application's concern.
type OAuthClientProvider interface {
	// Token returns the current access token, fetching one if necessary.
	Token(ctx context.Context) (string, error)
	// Refresh is called once after a 401 response and should invalidate
	// any cached token so the next Token call fetches a fresh one.
	Refresh(ctx context.Context, wwwAuthenticate string) error
}

// WithOAuth attaches a bearer token to every request and retries once on
// any 401 response, after passing its WWW-Authenticate header to Refresh.
func WithOAuth(provider OAuthClientProvider) Middleware {
	return func(next Fetcher) Fetcher {
		return func(req *http.Request) (*http.Response, error) {
			token, err := provider.Token(req.Context())
			if err != nil {
				return nil, errors.Wrap(err, "fetchmw: obtaining OAuth token")
			}
			req.Header.Set("Authorization", "Bearer "+token)

			resp, err := next(req)
			if err != nil || resp.StatusCode != http.StatusUnauthorized {
				return resp, err
			}

			wwwAuth := resp.Header.Get("WWW-Authenticate")
			if resp.Body != nil {
				resp.Body.Close()
			}
			if refreshErr := provider.Refresh(req.Context(), wwwAuth); refreshErr != nil {
				return nil, errors.Wrap(refreshErr, "fetchmw: refreshing OAuth token after 401")
			}

			token, err = provider.Token(req.Context())
			if err != nil {
				return nil, errors.Wrap(err, "fetchmw: obtaining refreshed OAuth token")
			}
			retryReq := req.Clone(req.Context())
			retryReq.Header.Set("Authorization", "Bearer "+token)
			return next(retryReq)
		}
	}
}

// LogRecord is one structured entry WithLogging emits.
type LogRecord struct {
	Method          string
	URL             string
	StatusCode      int
	Duration        time.Duration
	Err             error
	RequestHeaders  http.Header
	ResponseHeaders http.Header
}

// Logger receives LogRecords; the mcp package's default implementation
// writes them with the stdlib log package, matching the ambient logging
// style the rest of the runtime uses.
type Logger interface {
	LogFetch(rec LogRecord)
}

// LoggingOptions configures WithLogging, matching spec.md §4.7's
// withLogging({logger?, includeRequestHeaders?, includeResponseHeaders?,
// statusLevel?}).
type LoggingOptions struct {
	Logger Logger

	// IncludeRequestHeaders/IncludeResponseHeaders attach the request's
	// and response's headers to the LogRecord. Both default to false,
	// since headers routinely carry bearer tokens (see WithOAuth) that a
	// Logger implementation would otherwise have to know to redact.
	IncludeRequestHeaders  bool
	IncludeResponseHeaders bool

	// StatusLevel suppresses LogFetch for responses whose status code is
	// below it; errors are always logged regardless of StatusLevel. Zero
	// (the default) logs every response.
	StatusLevel int
}

// WithLogging measures request duration and reports it via opts.Logger,
// skipping responses below opts.StatusLevel the way spec.md §8 scenario
// S5 requires ("a 503 then 200 sequence logs only the 503").
//
// Unsafe for stdio transports: logging writes here must never touch the
// process's stdout, since stdio.Transport frames JSON-RPC messages over
// that same stream (transport/stdio/stdio.go). This middleware is only
// meant to wrap the SSE/HTTP client fetcher.
func WithLogging(opts LoggingOptions) Middleware {
	return func(next Fetcher) Fetcher {
		return func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next(req)
			rec := LogRecord{Method: req.Method, URL: req.URL.String(), Duration: time.Since(start), Err: err}
			if opts.IncludeRequestHeaders {
				rec.RequestHeaders = req.Header
			}
			if resp != nil {
				rec.StatusCode = resp.StatusCode
				if opts.IncludeResponseHeaders {
					rec.ResponseHeaders = resp.Header
				}
			}
			if err != nil || rec.StatusCode >= opts.StatusLevel {
				opts.Logger.LogFetch(rec)
			}
			return resp, err
		}
	}
}

// RetryPolicy configures NewRetryMiddleware.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 200 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	return p
}

// NewRetryMiddleware retries idempotent-looking failures (connection
// errors and 5xx responses) with exponential backoff and jitter.
func NewRetryMiddleware(policy RetryPolicy) Middleware {
	policy = policy.withDefaults()
	return func(next Fetcher) Fetcher {
		return func(req *http.Request) (*http.Response, error) {
			var lastErr error
			for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
				if attempt > 0 {
					delay := backoffDelay(policy, attempt)
					select {
					case <-req.Context().Done():
						return nil, req.Context().Err()
					case <-time.After(delay):
					}
				}

				retryReq := req
				if attempt > 0 {
					retryReq = req.Clone(req.Context())
				}

				resp, err := next(retryReq)
				if err == nil && resp.StatusCode < http.StatusInternalServerError {
					return resp, nil
				}
				if err == nil {
					io.Copy(io.Discard, resp.Body)
					resp.Body.Close()
					lastErr = fmt.Errorf("fetchmw: server error %d", resp.StatusCode)
					continue
				}
				if !isRetryable(err) {
					return nil, err
				}
				lastErr = err
			}
			return nil, errors.Wrapf(lastErr, "fetchmw: exhausted %d attempts", policy.MaxAttempts)
		}
	}
}

func backoffDelay(policy RetryPolicy, attempt int) time.Duration {
	delay := policy.BaseDelay << uint(attempt-1)
	if delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	half := delay / 2
	if half <= 0 {
		return delay
	}
	jitter := time.Duration(rand.Int63n(int64(half)))
	return half + jitter
}

func isRetryable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "timeout")
}
