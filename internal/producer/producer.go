// Package producer generates synthetic payloads of an exact length.
//
// A Producer is a pull-based source: nothing is generated until the consumer
// asks for the next chunk, and every chunk is a slice of a single shared,
// read-only filler block. Memory use is therefore constant regardless of the
// requested length.
package producer

import (
	"context"
	"io"
	"strings"

	"github.com/m-lab/reptest/pkg/reptest/spec"
)

// fillerLine is 64 bytes of printable filler.
const fillerLine = "012345678901234567890123456789012345678901234567890123456789012\n"

// block is shared by every Producer and must never be written to.
var block = []byte(strings.Repeat(fillerLine, spec.FillerBlockSize/len(fillerLine)))

// Producer emits exactly a fixed number of filler bytes.
type Producer struct {
	remaining uint64
}

// New returns a Producer for total bytes.
func New(total uint64) *Producer {
	return &Producer{remaining: total}
}

// Remaining returns the number of bytes not produced yet.
func (p *Producer) Remaining() uint64 {
	return p.remaining
}

// Next returns the next chunk, holding min(hint, block size, remaining) bytes.
// A hint <= 0 requests a whole block. The returned slice aliases the shared
// filler block and must not be modified. Once every byte has been produced,
// Next returns io.EOF; for a zero-length Producer this happens on the first
// call.
func (p *Producer) Next(hint int) ([]byte, error) {
	if p.remaining == 0 {
		return nil, io.EOF
	}
	n := len(block)
	if hint > 0 && hint < n {
		n = hint
	}
	if uint64(n) > p.remaining {
		n = int(p.remaining)
	}
	p.remaining -= uint64(n)
	return block[:n:n], nil
}

// Read implements io.Reader by copying the next chunk into b.
func (p *Producer) Read(b []byte) (int, error) {
	if len(b) == 0 {
		if p.remaining == 0 {
			return 0, io.EOF
		}
		return 0, nil
	}
	chunk, err := p.Next(len(b))
	if err != nil {
		return 0, err
	}
	return copy(b, chunk), nil
}

// Stream writes the remaining bytes to w one chunk at a time. A chunk is only
// produced after the previous Write returned, so a slow consumer suspends the
// producer rather than causing it to buffer. Stream stops when ctx is done or
// a write fails and returns the number of bytes written. It does not retry.
func (p *Producer) Stream(ctx context.Context, w io.Writer) (int64, error) {
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		chunk, err := p.Next(len(block))
		if err == io.EOF {
			return written, nil
		}
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}
		if n != len(chunk) {
			return written, io.ErrShortWrite
		}
	}
}
