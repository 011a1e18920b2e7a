package sender

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestDispatcherRunsQueuedJobsBeforeClose(t *testing.T) {
	d := NewDispatcher(Options{Workers: 2})
	var runs atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Enqueue(context.Background(), "test", "", func() error {
			runs.Add(1)
			return nil
		}))
	}
	d.Close()
	assert.EqualValues(t, 10, runs.Load())
	assert.Equal(t, Stats{Sent: 10}, d.Stats())
}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	var runs atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "test", "", func() error {
		if runs.Add(1) < 3 {
			return timeoutErr{}
		}
		return nil
	}))
	d.Close()
	assert.EqualValues(t, 3, runs.Load())
	assert.Equal(t, Stats{Sent: 1, Retried: 2}, d.Stats())
}

func TestDispatcherDoesNotRetryPermanentErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	var runs atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "test", "", func() error {
		runs.Add(1)
		return errors.New("telegram: Bad Request: query is too old (400)")
	}))
	d.Close()
	assert.EqualValues(t, 1, runs.Load())
	assert.Equal(t, Stats{Failed: 1}, d.Stats())
}

func TestDispatcherRejects(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, d.Enqueue(context.Background(), "block", "", func() error {
		close(started)
		<-block
		return nil
	}))
	<-started
	require.NoError(t, d.Enqueue(context.Background(), "queued", "", func() error { return nil }))
	assert.ErrorIs(t, d.Enqueue(context.Background(), "overflow", "", func() error { return nil }), ErrQueueFull)
	assert.Error(t, d.Enqueue(context.Background(), "nil", "", nil))

	close(block)
	d.Close()
	d.Close()
	assert.ErrorIs(t, d.Enqueue(context.Background(), "late", "", func() error { return nil }), ErrQueueClosed)
}
