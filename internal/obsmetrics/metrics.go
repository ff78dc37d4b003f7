// Package obsmetrics tracks per-server connection counters with atomics,
// and exposes a net.Conn decorator that updates them from real traffic.
package obsmetrics

import (
	"net"
	"sync/atomic"
)

// Metrics holds the counters tracked for one running server.
type Metrics struct {
	connectionsAccepted int64
	bytesSent           int64
	bytesReceived       int64
	writeErrors         int64
}

// New returns a zeroed Metrics.
func New() *Metrics { return &Metrics{} }

func (m *Metrics) IncrementConnectionsAccepted() { atomic.AddInt64(&m.connectionsAccepted, 1) }
func (m *Metrics) IncrementBytesSent(n int64)    { atomic.AddInt64(&m.bytesSent, n) }
func (m *Metrics) IncrementBytesReceived(n int64) { atomic.AddInt64(&m.bytesReceived, n) }
func (m *Metrics) IncrementWriteErrors()          { atomic.AddInt64(&m.writeErrors, 1) }

func (m *Metrics) ConnectionsAccepted() int64 { return atomic.LoadInt64(&m.connectionsAccepted) }
func (m *Metrics) BytesSent() int64           { return atomic.LoadInt64(&m.bytesSent) }
func (m *Metrics) BytesReceived() int64       { return atomic.LoadInt64(&m.bytesReceived) }
func (m *Metrics) WriteErrors() int64         { return atomic.LoadInt64(&m.writeErrors) }

// conn wraps a net.Conn, recording every byte moved through it.
type conn struct {
	net.Conn
	m *Metrics
}

// WrapConn returns c instrumented against m. It also increments
// ConnectionsAccepted once, at wrap time.
func WrapConn(c net.Conn, m *Metrics) net.Conn {
	m.IncrementConnectionsAccepted()
	return &conn{Conn: c, m: m}
}

func (c *conn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 {
		c.m.IncrementBytesReceived(int64(n))
	}
	return n, err
}

func (c *conn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if n > 0 {
		c.m.IncrementBytesSent(int64(n))
	}
	if err != nil {
		c.m.IncrementWriteErrors()
	}
	return n, err
}
