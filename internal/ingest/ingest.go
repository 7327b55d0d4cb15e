// Package ingest reads request bodies while retaining only a bounded prefix.
package ingest

import (
	"io"
)

// bufferSize is the size of the copy buffer used by Read.
const bufferSize = 32 << 10

// Capture is an io.Writer that keeps at most Limit bytes of what is written
// to it and counts everything.
type Capture struct {
	Limit int

	buf   []byte
	total int64
}

// Write implements io.Writer. It never fails.
func (c *Capture) Write(p []byte) (int, error) {
	c.total += int64(len(p))
	if room := c.Limit - len(c.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		c.buf = append(c.buf, p[:room]...)
	}
	return len(p), nil
}

// Retained returns the retained prefix.
func (c *Capture) Retained() []byte {
	return c.buf
}

// Total returns the number of bytes written so far.
func (c *Capture) Total() int64 {
	return c.total
}

// Body is the result of reading a request body.
type Body struct {
	// Retained is a prefix of the body of at most the requested limit.
	Retained []byte
	// Total is the full length of the body.
	Total int64
}

// Read consumes r until EOF, retaining at most limit bytes. A limit <= 0
// retains nothing. On error, the returned Body describes what was read before
// the failure.
func Read(r io.Reader, limit int) (Body, error) {
	c := &Capture{Limit: limit}
	if limit > 0 {
		c.buf = make([]byte, 0, limit)
	}
	buf := make([]byte, bufferSize)
	_, err := io.CopyBuffer(c, onlyReader{r}, buf)
	return Body{Retained: c.Retained(), Total: c.Total()}, err
}

// onlyReader hides any WriterTo implementation of the wrapped reader so that
// io.CopyBuffer uses the fixed-size buffer.
type onlyReader struct {
	io.Reader
}
