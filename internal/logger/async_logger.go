package logger

import (
	"fmt"
	"os"
	"sync"
)

// AsyncLogger decouples log writes from the underlying sink (typically a
// rotating lumberjack.Logger) so a slow disk never blocks the caller that
// triggered the log line. Writes are copied and queued on a buffered
// channel; a single goroutine drains it onto the real writer in order.
// When the queue is full, the write is dropped and a warning goes to
// stderr rather than blocking — a full queue means the sink can't keep up,
// and blocking the caller would just move the backpressure problem
// upstream into the hot path that's trying to log.
type AsyncLogger struct {
	w      writeCloser
	queue  chan []byte
	done   chan struct{}
	closeOnce sync.Once
}

type writeCloser interface {
	Write(p []byte) (int, error)
	Close() error
}

// NewAsyncLogger starts the drain goroutine and returns the logger. bufSize
// is the number of pending messages the queue holds before writes start
// dropping.
func NewAsyncLogger(w writeCloser, bufSize int) *AsyncLogger {
	a := &AsyncLogger{
		w:     w,
		queue: make(chan []byte, bufSize),
		done:  make(chan struct{}),
	}
	go a.drain()
	return a
}

func (a *AsyncLogger) drain() {
	defer close(a.done)
	for p := range a.queue {
		if _, err := a.w.Write(p); err != nil {
			fmt.Fprintf(os.Stderr, "asynclogger: write failed: %v\n", err)
		}
	}
}

// Write queues a copy of p for the drain goroutine. It never blocks: if the
// queue is full the message is dropped and a warning is printed to stderr.
func (a *AsyncLogger) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	select {
	case a.queue <- cp:
	default:
		fmt.Fprintln(os.Stderr, "asynclogger: log buffer is full, dropping message.")
	}
	return len(p), nil
}

// Close drains any queued messages and closes the underlying writer.
func (a *AsyncLogger) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.queue)
		<-a.done
		err = a.w.Close()
	})
	return err
}
