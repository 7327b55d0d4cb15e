package netx

import (
	"net"
)

// Listener is a TCPListener. Connections accepted by this listener are
// *netx.Conn.
type Listener struct {
	*net.TCPListener
}

// NewListener returns a netx.Listener.
func NewListener(l *net.TCPListener) *Listener {
	return &Listener{
		TCPListener: l,
	}
}

// Accept accepts a connection and returns a netx.Conn which includes the
// connection's "accept time" and byte counters.
func (ln *Listener) Accept() (net.Conn, error) {
	return ln.accept()
}
