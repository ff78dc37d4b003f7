package cipher

import (
	"bufio"
	"context"
	"net"

	"github.com/sirupsen/logrus"
)

// Server runs the obfuscated toy-shop protocol: one cipher spec per
// connection, then a stream of decode/respond/encode cycles.
type Server struct {
	log *logrus.Entry
}

// New returns a cipher Server ready to be handed to transport.Serve.
func New(log *logrus.Entry) *Server {
	return &Server{log: log}
}

// Handle implements transport.ConnHandler.
func (s *Server) Handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	ops, err := parseSpec(r)
	if err != nil {
		return
	}

	layer, err := newObfuscationLayer(ops)
	if err != nil {
		return
	}

	ws := newWorkshop()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			decoded := layer.decode(buf[:n])
			for _, resp := range ws.addData(decoded) {
				if _, werr := conn.Write(layer.encode(resp)); werr != nil {
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}
