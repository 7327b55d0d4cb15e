package netx

import (
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	guuid "github.com/google/uuid"
	"github.com/m-lab/reptest/internal/metrics"
	"github.com/m-lab/uuid"
)

// ConnInfo provides information about an accepted connection.
type ConnInfo interface {
	ByteCounters() (uint64, uint64)
	AcceptTime() time.Time
	UUID() string
}

// Conn is an extended net.Conn that stores its accept time, a copy of the
// underlying socket's file descriptor, and counters for read/written bytes.
type Conn struct {
	net.Conn

	fp           *os.File
	acceptTime   time.Time
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64

	uuidOnce  sync.Once
	uuid      string
	closeOnce sync.Once
	closeErr  error
}

// FromTCPConn wraps an existing TCP connection.
func FromTCPConn(tcpConn *net.TCPConn) (*Conn, error) {
	return fromTCPConn(tcpConn)
}

// Read reads from the underlying net.Conn and updates the read bytes counter.
func (c *Conn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	c.bytesRead.Add(uint64(n))
	return n, err
}

// Write writes to the underlying net.Conn and updates the written bytes counter.
func (c *Conn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	c.bytesWritten.Add(uint64(n))
	return n, err
}

// ByteCounters returns the read and written byte counters, in this order.
func (c *Conn) ByteCounters() (uint64, uint64) {
	return c.bytesRead.Load(), c.bytesWritten.Load()
}

// Close closes the underlying net.Conn and the duplicate file descriptor and
// adds the connection's byte counters to the exported metrics. Only the first
// call has any effect.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		read, written := c.ByteCounters()
		metrics.ConnectionBytes.WithLabelValues("read").Add(float64(read))
		metrics.ConnectionBytes.WithLabelValues("write").Add(float64(written))
		c.closeErr = c.close()
	})
	return c.closeErr
}

// AcceptTime returns this connection's accept time.
func (c *Conn) AcceptTime() time.Time {
	return c.acceptTime
}

// UUID returns an M-Lab UUID derived from the socket cookie. On platforms not
// supporting SO_COOKIE, it returns a random google/uuid instead. The value is
// computed once per connection.
func (c *Conn) UUID() string {
	c.uuidOnce.Do(func() {
		if c.fp != nil {
			if id, err := uuid.FromFile(c.fp); err == nil {
				c.uuid = id
				return
			}
		}
		c.uuid = guuid.NewString()
	})
	return c.uuid
}
