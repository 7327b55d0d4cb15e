package netx

import (
	"net"
)

func (ln *Listener) accept() (net.Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	// Note: File() duplicates the underlying file descriptor. This duplicate
	// must be independently closed.
	mc, err := fromTCPConn(tc)
	if err != nil {
		tc.Close()
		return nil, err
	}
	return mc, nil
}
