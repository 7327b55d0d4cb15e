// Package telemetry writes one JSON line per completed request to an
// append-only log.
//
// Records are handed to a background writer through a bounded queue, so
// recording never blocks the request that produced the record. When the
// queue is full, or the log cannot be written, records are dropped and the
// failure is reported on the process logger instead.
package telemetry

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/gzip"
	"github.com/m-lab/go/warnonerror"
	"github.com/m-lab/reptest/internal/metrics"
)

// DefaultQueueSize is the default number of records that can be pending.
const DefaultQueueSize = 1024

// Recorder records one telemetry entry.
type Recorder interface {
	Record(v any)
}

// flusher is implemented by writers that buffer, such as gzip.Writer.
type flusher interface {
	Flush() error
}

// Sink is an asynchronous JSON-lines Recorder.
type Sink struct {
	w       io.Writer
	closers []io.Closer

	mu     sync.RWMutex
	closed bool
	queue  chan []byte
	done   chan struct{}
}

// New returns a Sink writing to w with room for queueSize pending records.
// A queueSize <= 0 uses DefaultQueueSize. The caller must Close the Sink.
func New(w io.Writer, queueSize int) *Sink {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	s := &Sink{
		w:     w,
		queue: make(chan []byte, queueSize),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Open opens the telemetry log at path and returns a Sink for it. An empty
// path or "-" selects the standard output. Files are opened in append mode;
// a ".gz" suffix compresses the records.
func Open(path string, queueSize int) (*Sink, error) {
	if path == "" || path == "-" {
		return New(os.Stdout, queueSize), nil
	}
	fp, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		s := New(fp, queueSize)
		s.closers = []io.Closer{fp}
		return s, nil
	}
	gz, err := gzip.NewWriterLevel(fp, gzip.BestSpeed)
	if err != nil {
		fp.Close()
		return nil, err
	}
	s := New(gz, queueSize)
	s.closers = []io.Closer{gz, fp}
	return s, nil
}

// Record encodes v as JSON and queues it. It never blocks: if the queue is
// full or the Sink is closed, the record is dropped.
func (s *Sink) Record(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		metrics.TelemetryErrors.Inc()
		log.Error("failed to encode telemetry record", "error", err)
		return
	}
	data = append(data, '\n')

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		metrics.TelemetryDropped.Inc()
		log.Warn("telemetry record dropped: sink closed")
		return
	}
	select {
	case s.queue <- data:
	default:
		metrics.TelemetryDropped.Inc()
		log.Warn("telemetry record dropped: queue full")
	}
}

// run writes queued records until the queue is closed.
func (s *Sink) run() {
	defer close(s.done)
	for data := range s.queue {
		if _, err := s.w.Write(data); err != nil {
			metrics.TelemetryErrors.Inc()
			log.Error("failed to write telemetry record", "error", err,
				"record", strings.TrimSpace(string(data)))
			continue
		}
		// Flush buffering writers whenever the queue is drained so that
		// records reach the file promptly.
		if f, ok := s.w.(flusher); ok && len(s.queue) == 0 {
			if err := f.Flush(); err != nil {
				metrics.TelemetryErrors.Inc()
				log.Error("failed to flush telemetry log", "error", err)
			}
		}
	}
}

// Close stops accepting records, waits for pending records to be written and
// closes the underlying file, if any. Close is idempotent.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, warnonerror.Close(c, "failed to close telemetry log"))
	}
	return errors.Join(errs...)
}
