//go:build !linux
// +build !linux

package netx

import (
	"net"
	"time"
)

func fromTCPConn(tcpConn *net.TCPConn) (*Conn, error) {
	// The socket cookie is only available on Linux, so no file duplicate
	// is kept and UUID always uses its fallback.
	return &Conn{
		Conn:       tcpConn,
		acceptTime: time.Now(),
	}, nil
}

func (c *Conn) close() error {
	return c.Conn.Close()
}
