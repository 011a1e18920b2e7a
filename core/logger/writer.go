package logger

import (
	"bufio"
	"errors"
	"io"
	"slices"
	"sync"
)

// errWriterClosed is returned for lines written after Close.
var errWriterClosed = errors.New("logger: writer closed")

type line struct {
	data    []byte
	isError bool
}

// asyncWriter moves log output off the calling goroutine. Every line goes
// to the main sinks; error lines are copied to the error sinks as well.
type asyncWriter struct {
	queue   chan line
	flushes chan chan error
	done    chan struct{}

	// mu guards closed against concurrent Write and Close
	mu     sync.RWMutex
	closed bool

	sinkMu   sync.Mutex
	main     []*bufio.Writer
	errSinks []*bufio.Writer
	firstErr error
}

func newAsyncWriter(main, errOnly []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		queue:    make(chan line, 256),
		flushes:  make(chan chan error),
		done:     make(chan struct{}),
		main:     buffered(main, bufSize),
		errSinks: buffered(errOnly, bufSize),
	}
	go w.run()
	return w
}

func buffered(writers []io.Writer, size int) []*bufio.Writer {
	out := make([]*bufio.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			out = append(out, bufio.NewWriterSize(w, size))
		}
	}
	return out
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for {
		select {
		case l, ok := <-w.queue:
			if !ok {
				w.flush()
				return
			}
			w.write(l)
		case ack := <-w.flushes:
			ack <- w.flush()
		}
	}
}

// Write queues a copy of p. It blocks while the queue is full rather than
// dropping lines.
func (w *asyncWriter) Write(p []byte, isError bool) error {
	if len(p) == 0 {
		return nil
	}
	if err := w.err(); err != nil {
		return err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.queue <- line{data: append([]byte(nil), p...), isError: isError}
	return nil
}

// Flush waits until every queued line reached the sinks.
func (w *asyncWriter) Flush() error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return w.err()
	}
	ack := make(chan error, 1)
	w.flushes <- ack
	w.mu.RUnlock()
	return <-ack
}

// Close drains the queue and returns the first write error, if any.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
	return w.err()
}

func (w *asyncWriter) write(l line) {
	w.sinkMu.Lock()
	defer w.sinkMu.Unlock()
	sinks := w.main
	if l.isError {
		sinks = append(slices.Clip(w.main), w.errSinks...)
	}
	for _, s := range sinks {
		if _, err := s.Write(l.data); err != nil {
			w.setErrLocked(err)
			return
		}
		if err := s.Flush(); err != nil {
			w.setErrLocked(err)
			return
		}
	}
}

func (w *asyncWriter) flush() error {
	w.sinkMu.Lock()
	defer w.sinkMu.Unlock()
	var errs []error
	for _, s := range append(slices.Clip(w.main), w.errSinks...) {
		errs = append(errs, s.Flush())
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) err() error {
	w.sinkMu.Lock()
	defer w.sinkMu.Unlock()
	return w.firstErr
}

func (w *asyncWriter) setErrLocked(err error) {
	if w.firstErr == nil {
		w.firstErr = err
	}
}
