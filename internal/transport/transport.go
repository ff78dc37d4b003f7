// Package transport holds the accept-loop and framing primitives shared by
// every protocol server in this repository: TCP/UDP accept loops that
// dispatch to a per-connection or per-datagram handler, and the two framing
// reads every line- or length-oriented protocol here is built out of.
package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"

	"github.com/sirupsen/logrus"
)

// ErrLineTooLong is returned by ReadLine when a line exceeds maxLine bytes
// without a terminator, so a misbehaving peer can't force unbounded buffering.
var ErrLineTooLong = errors.New("transport: line exceeds maximum length")

// ConnHandler processes one accepted TCP connection. It owns the connection
// and must close it before returning.
type ConnHandler func(ctx context.Context, conn net.Conn)

// Serve runs a TCP accept loop on l, spawning handle in its own goroutine for
// every accepted connection, until ctx is cancelled or the listener closes.
func Serve(ctx context.Context, l net.Listener, log *logrus.Entry, handle ConnHandler) error {
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.WithError(err).Warn("accept failed")
			continue
		}
		log.WithField("remote", conn.RemoteAddr()).Debug("connection accepted")
		go handle(ctx, conn)
	}
}

// PacketHandler processes one received UDP datagram. buf is a fresh copy of
// the datagram that is not reused by the read loop.
type PacketHandler func(ctx context.Context, pc net.PacketConn, addr net.Addr, buf []byte)

// ServeUDP reads datagrams from pc and dispatches each to handle in a fresh
// goroutine, until ctx is cancelled or the socket closes. The
// per-protocol handler is responsible for any serialization its own state
// needs; ServeUDP itself does not block on handle.
func ServeUDP(ctx context.Context, pc net.PacketConn, log *logrus.Entry, maxDatagram int, handle PacketHandler) error {
	go func() {
		<-ctx.Done()
		_ = pc.Close()
	}()

	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.WithError(err).Warn("udp read failed")
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		go handle(ctx, pc, addr, payload)
	}
}

// ReadLine reads bytes from r up to and including delim, returning the line
// with the delimiter stripped. It returns io.EOF if the peer closes
// before sending a delimiter, and ErrLineTooLong if maxLine is exceeded.
func ReadLine(r *bufio.Reader, delim byte, maxLine int) (string, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice(delim)
		line = append(line, chunk...)
		if err == nil {
			return string(line[:len(line)-1]), nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			if len(line) > maxLine {
				return "", ErrLineTooLong
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		return "", err
	}
}

// ReadExact reads exactly n bytes from r, returning io.EOF if the peer closes
// before n bytes are available.
func ReadExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return buf, nil
}
