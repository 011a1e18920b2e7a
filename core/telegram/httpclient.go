package telegram

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/netutil"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 30 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultRetryAttempts     = 3
	defaultRetryBackoff      = 2 * time.Second
	// pollGrace is added on top of the long poll timeout so getUpdates is
	// never cut off while Telegram legitimately holds the request open.
	pollGrace = 10 * time.Second
)

// BuildHTTPClient returns an HTTP client for Telegram API calls whose
// timeouts leave room for long polls of pollTimeout.
func BuildHTTPClient(pollTimeout time.Duration) *http.Client {
	if pollTimeout < 0 {
		pollTimeout = 0
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ResponseHeaderTimeout: pollTimeout + pollGrace/2,
		ExpectContinueTimeout: time.Second,
	}

	return &http.Client{
		Timeout: pollTimeout + pollGrace,
		Transport: &retryTransport{
			base:       transport,
			maxRetries: defaultRetryAttempts,
			backoff:    defaultRetryBackoff,
		},
	}
}

// retryTransport repeats requests that failed before reaching Telegram.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	attempts := t.maxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		curr, err := rewind(req, attempt)
		if err != nil {
			return nil, err
		}
		if curr == nil {
			// the body cannot be replayed
			return nil, lastErr
		}

		resp, err := base.RoundTrip(curr)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == attempts || !netutil.ShouldRetry(err) {
			break
		}

		delay := t.backoff * time.Duration(attempt)
		logger.TG.Debug("http retry",
			slog.String("event", "http.retry"),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error_kind", netutil.Kind(err)),
			slog.String("err", netutil.Redact(err)),
		)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// rewind returns the request to send on attempt, or nil when its body is spent.
func rewind(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 1 {
		return req, nil
	}
	if req.Body != nil && req.GetBody == nil {
		return nil, nil
	}
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}
