package pest

import (
	"context"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// Server runs the site-visiting pest-control protocol and maintains the
// per-site authority connections and reconciliation state it depends on.
type Server struct {
	log           *logrus.Entry
	authorityAddr string
	dial          func(ctx context.Context, addr string) (net.Conn, error)

	mu          sync.Mutex
	connections map[uint32]*authorityConn
	siteStates  map[uint32]*siteStateEntry
}

// New returns a pest Server ready to be handed to transport.Serve.
func New(log *logrus.Entry, opts ...Option) *Server {
	s := &Server{
		log:           log,
		authorityAddr: DefaultAuthorityAddr,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
		connections: make(map[uint32]*authorityConn),
		siteStates:  make(map[uint32]*siteStateEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle implements transport.ConnHandler.
func (s *Server) Handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	first, parseErr := readMessage(conn)
	if _, err := conn.Write(helloMessage().encode()); err != nil {
		return
	}

	switch {
	case parseErr != nil:
		conn.Write(errorMessage("%s", parseErr).encode())
		return
	case first.msgType != msgHello:
		conn.Write(errorMessage("connection must start with a Hello message").encode())
		return
	case first.protocol != "pestcontrol" || first.version != 1:
		conn.Write(errorMessage("invalid Hello message (protocol: %s, version %d)", first.protocol, first.version).encode())
		return
	}

	for {
		msg, err := readMessage(conn)
		if err != nil {
			conn.Write(errorMessage("%s", err).encode())
			return
		}
		if msg.msgType != msgSiteVisit {
			conn.Write(errorMessage("invalid message type from site-visiting client").encode())
			return
		}

		if err := s.processObservation(ctx, msg.site, msg.observations); err != nil {
			conn.Write(errorMessage("%s", err).encode())
			return
		}
	}
}
