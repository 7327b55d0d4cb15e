package netx

import (
	"errors"
	"fmt"
	"net"
	"time"
)

func fromTCPConn(tcpConn *net.TCPConn) (*Conn, error) {
	accepted := time.Now()
	// The duplicate is kept open so UUID can read the socket cookie later.
	fp, err := tcpConn.File()
	if err != nil {
		return nil, fmt.Errorf("cannot duplicate socket: %w", err)
	}
	return &Conn{
		Conn:       tcpConn,
		fp:         fp,
		acceptTime: accepted,
	}, nil
}

// close releases the socket and its duplicate. Both are closed even when
// one of them fails.
func (c *Conn) close() error {
	return errors.Join(c.Conn.Close(), c.fp.Close())
}
