package telegram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/shopbot/core/config"

	tele "gopkg.in/telebot.v4"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type scripted struct {
	errs  []error
	calls int
	// bodies records what each attempt sent
	bodies []string
}

func (s *scripted) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls++
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		s.bodies = append(s.bodies, string(b))
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("{}"))}, nil
}

func newRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, "https://api.telegram.org/botX/sendMessage", strings.NewReader(body))
	require.NoError(t, err)
	return req
}

func TestRetryTransportRetriesTransientErrors(t *testing.T) {
	base := &scripted{errs: []error{timeoutErr{}, timeoutErr{}}}
	rt := &retryTransport{base: base, maxRetries: 3}

	resp, err := rt.RoundTrip(newRequest(t, "chat_id=42"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 3, base.calls)
	assert.Equal(t, []string{"chat_id=42", "chat_id=42", "chat_id=42"}, base.bodies)
}

func TestRetryTransportStopsOnPermanentError(t *testing.T) {
	boom := errors.New("tls: bad certificate")
	base := &scripted{errs: []error{boom}}
	rt := &retryTransport{base: base, maxRetries: 3}

	_, err := rt.RoundTrip(newRequest(t, ""))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, base.calls)
}

func TestRetryTransportGivesUp(t *testing.T) {
	base := &scripted{errs: []error{timeoutErr{}, timeoutErr{}, timeoutErr{}}}
	rt := &retryTransport{base: base, maxRetries: 1}

	_, err := rt.RoundTrip(newRequest(t, ""))
	assert.Error(t, err)
	assert.Equal(t, 2, base.calls)
}

func TestRetryTransportHonoursContext(t *testing.T) {
	base := &scripted{errs: []error{timeoutErr{}}}
	rt := &retryTransport{base: base, maxRetries: 2, backoff: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	req := newRequest(t, "").WithContext(ctx)
	cancel()
	_, err := rt.RoundTrip(req)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, base.calls)
}

func TestBuildHTTPClientLeavesRoomForLongPoll(t *testing.T) {
	c := BuildHTTPClient(30 * time.Second)
	assert.Greater(t, c.Timeout, 30*time.Second)

	rt, ok := c.Transport.(*retryTransport)
	require.True(t, ok)
	tr, ok := rt.base.(*http.Transport)
	require.True(t, ok)
	assert.Greater(t, tr.ResponseHeaderTimeout, 30*time.Second)
	assert.Less(t, tr.ResponseHeaderTimeout, c.Timeout)
}

func TestBuildPoller(t *testing.T) {
	lp, ok := BuildPoller(PollerOptions{}).(*tele.LongPoller)
	require.True(t, ok)
	assert.Equal(t, defaultLongPollTimeout, lp.Timeout)
	assert.Equal(t, AllowedUpdates, lp.AllowedUpdates)

	wh, ok := BuildPoller(PollerOptions{
		RunMode: coreconfig.RunModeWebhook,
		Webhook: WebhookOptions{Listen: "0.0.0.0", Port: 8443, URL: "https://example.org/hook"},
	}).(*tele.Webhook)
	require.True(t, ok)
	assert.Equal(t, "0.0.0.0:8443", wh.Listen)
	assert.Equal(t, "https://example.org/hook", wh.Endpoint.PublicURL)
	assert.Equal(t, AllowedUpdates, wh.AllowedUpdates)
}

func TestRegistryCallbacks(t *testing.T) {
	reg := NewRegistry()
	noop := func(tele.Context) error { return nil }
	require.NoError(t, reg.RegisterCallback("sel", noop))
	assert.Error(t, reg.RegisterCallback("sel", noop))
	assert.Error(t, reg.RegisterCallback("", noop))

	_, ok := reg.GetCallback("sel")
	assert.True(t, ok)
	_, ok = reg.GetCallback("nope")
	assert.False(t, ok)
	assert.Equal(t, []string{"sel"}, reg.ListCallbacks())
	assert.NotNil(t, reg.CallbackNotFound())
}

func TestDefaultMiddlewares(t *testing.T) {
	names := func(mws []Middleware) []string {
		out := make([]string, len(mws))
		for i, m := range mws {
			out[i] = m.Name
		}
		return out
	}
	assert.Equal(t, []string{"recover", "logger", "metrics"}, names(DefaultMiddlewares(nil, nil)))

	cfg := &coreconfig.Config{RateLimit: coreconfig.RateLimitConfig{IntervalMS: 500}}
	assert.Equal(t, []string{"recover", "rate_limit", "logger", "metrics"}, names(DefaultMiddlewares(cfg, nil)))
}
