// Package netx provides a TCP listener whose connections keep their accept
// time, byte counters and a unique identifier.
package netx

import (
	"context"
	"crypto/tls"
	"net"
)

type connInfoKey struct{}

// WithConnInfo returns a copy of ctx carrying c's ConnInfo, if c provides one.
// It is meant to be used as an http.Server's ConnContext.
func WithConnInfo(ctx context.Context, c net.Conn) context.Context {
	if info, ok := asConnInfo(c); ok {
		return context.WithValue(ctx, connInfoKey{}, info)
	}
	return ctx
}

// FromContext returns the ConnInfo stored in ctx by WithConnInfo.
func FromContext(ctx context.Context) (ConnInfo, bool) {
	info, ok := ctx.Value(connInfoKey{}).(ConnInfo)
	return info, ok
}

func asConnInfo(c net.Conn) (ConnInfo, bool) {
	switch t := c.(type) {
	case *Conn:
		return t, true
	case *tls.Conn:
		nc, ok := t.NetConn().(*Conn)
		return nc, ok
	default:
		return nil, false
	}
}
