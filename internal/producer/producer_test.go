package producer

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/m-lab/reptest/pkg/reptest/spec"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestProducer_Next(t *testing.T) {
	sizes := []uint64{0, 1, 63, 64, spec.FillerBlockSize - 1, spec.FillerBlockSize,
		spec.FillerBlockSize + 1, 3*spec.FillerBlockSize + 17, 10 << 20}
	hints := []int{-1, 0, 1, 7, 1000, spec.FillerBlockSize, 1 << 20}
	for _, size := range sizes {
		for _, hint := range hints {
			p := New(size)
			var total uint64
			for {
				chunk, err := p.Next(hint)
				if err == io.EOF {
					break
				}
				if err != nil {
					t.Fatalf("Next() unexpected error: %v", err)
				}
				if len(chunk) == 0 {
					t.Fatalf("size %d hint %d: empty chunk before EOF", size, hint)
				}
				if len(chunk) > spec.FillerBlockSize || (hint > 0 && len(chunk) > hint) {
					t.Fatalf("size %d hint %d: chunk of %d bytes", size, hint, len(chunk))
				}
				if cap(chunk) != len(chunk) {
					t.Fatalf("chunk capacity exposes the rest of the block")
				}
				total += uint64(len(chunk))
			}
			if total != size {
				t.Errorf("size %d hint %d: produced %d bytes", size, hint, total)
			}
			if p.Remaining() != 0 {
				t.Errorf("Remaining() = %d after EOF", p.Remaining())
			}
			if _, err := p.Next(hint); err != io.EOF {
				t.Errorf("Next() after EOF = %v, want io.EOF", err)
			}
		}
	}
}

func TestProducer_ZeroLength(t *testing.T) {
	p := New(0)
	chunk, err := p.Next(0)
	if err != io.EOF || chunk != nil {
		t.Errorf("Next() on empty producer = %v, %v; want nil, io.EOF", chunk, err)
	}
	n, err := New(0).Stream(context.Background(), io.Discard)
	if n != 0 || err != nil {
		t.Errorf("Stream() on empty producer = %d, %v", n, err)
	}
}

func TestProducer_Read(t *testing.T) {
	const size = 100_000
	b, err := io.ReadAll(New(size))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(b) != size {
		t.Fatalf("ReadAll() returned %d bytes, want %d", len(b), size)
	}
	for i, c := range b {
		if c < ' ' && c != '\n' {
			t.Fatalf("non-printable byte %d at offset %d", c, i)
		}
	}
	if n, err := New(1).Read(nil); n != 0 || err != nil {
		t.Errorf("Read(nil) = %d, %v", n, err)
	}
}

// trickleWriter accepts one chunk per call and records what it saw. It
// models a consumer that is only ever ready for a single write at a time.
type trickleWriter struct {
	p        *Producer
	writes   int
	total    int64
	maxChunk int
	// ahead is the largest number of bytes the producer had taken out of
	// its budget beyond what this writer has already accepted.
	ahead uint64
	size  uint64
}

func (w *trickleWriter) Write(b []byte) (int, error) {
	w.writes++
	w.total += int64(len(b))
	if len(b) > w.maxChunk {
		w.maxChunk = len(b)
	}
	produced := w.size - w.p.Remaining()
	if a := produced - uint64(w.total); a > w.ahead {
		w.ahead = a
	}
	return len(b), nil
}

func TestProducer_StreamBoundedLookahead(t *testing.T) {
	const size = 5*spec.FillerBlockSize + 123
	p := New(size)
	w := &trickleWriter{p: p, size: size}
	n, err := p.Stream(context.Background(), w)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if n != size || w.total != size {
		t.Errorf("Stream() wrote %d (writer saw %d), want %d", n, w.total, size)
	}
	if w.maxChunk > spec.FillerBlockSize {
		t.Errorf("chunk of %d bytes exceeds one block", w.maxChunk)
	}
	if w.ahead != 0 {
		t.Errorf("producer ran %d bytes ahead of the consumer", w.ahead)
	}
	if w.writes != 6 {
		t.Errorf("writes = %d, want 6", w.writes)
	}
}

type failingWriter struct {
	after int
	calls int
}

func (w *failingWriter) Write(b []byte) (int, error) {
	w.calls++
	if w.calls > w.after {
		return 0, errors.New("connection reset by peer")
	}
	return len(b), nil
}

func TestProducer_StreamWriteError(t *testing.T) {
	p := New(10 * spec.FillerBlockSize)
	w := &failingWriter{after: 2}
	n, err := p.Stream(context.Background(), w)
	if err == nil {
		t.Fatalf("Stream() should fail when the writer fails")
	}
	if n != 2*spec.FillerBlockSize {
		t.Errorf("Stream() wrote %d bytes, want %d", n, 2*spec.FillerBlockSize)
	}
	if w.calls != 3 {
		t.Errorf("Stream() kept writing after an error: %d calls", w.calls)
	}
}

type cancelWriter struct {
	cancel context.CancelFunc
	calls  int
}

func (w *cancelWriter) Write(b []byte) (int, error) {
	w.calls++
	w.cancel()
	return len(b), nil
}

func TestProducer_StreamCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := New(1 << 30)
	w := &cancelWriter{cancel: cancel}
	n, err := p.Stream(ctx, w)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Stream() error = %v, want context.Canceled", err)
	}
	if w.calls != 1 || n != spec.FillerBlockSize {
		t.Errorf("Stream() continued after cancellation: %d calls, %d bytes", w.calls, n)
	}
}

type shortWriter struct{}

func (shortWriter) Write(b []byte) (int, error) {
	return len(b) / 2, nil
}

func TestProducer_StreamShortWrite(t *testing.T) {
	_, err := New(100).Stream(context.Background(), shortWriter{})
	if err != io.ErrShortWrite {
		t.Errorf("Stream() error = %v, want io.ErrShortWrite", err)
	}
}
