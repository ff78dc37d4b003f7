package chat

import (
	"bufio"
	"context"
	"io"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/vikstrand/protoharbor/internal/idgen"
	"github.com/vikstrand/protoharbor/internal/transport"
)

const maxLineLength = 1 << 16

// Server runs the budgetchat protocol over a shared Room.
type Server struct {
	room *Room
	log  *logrus.Entry
}

// New returns a chat Server ready to be handed to transport.Serve.
func New(log *logrus.Entry) *Server {
	return &Server{room: NewRoom(), log: log}
}

// Handle implements transport.ConnHandler.
func (s *Server) Handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := s.log.WithField("conn", idgen.New())

	r := bufio.NewReaderSize(conn, maxLineLength)
	if _, err := conn.Write([]byte("Welcome to budgetchat! What shall I call you?\n")); err != nil {
		return
	}

	name, err := transport.ReadLine(r, '\n', maxLineLength)
	if err != nil {
		if err != io.EOF {
			log.WithError(err).Debug("failed reading username")
		}
		return
	}
	if !IsValidName(name) {
		return
	}

	present, ok := s.room.Join(name, conn)
	if !ok {
		return
	}
	log = log.WithField("user", name)
	log.Debug("joined room")
	s.room.SendTo(name, RoomContainsMessage(present))

	defer func() {
		s.room.Leave(name)
		log.Debug("left room")
	}()

	for {
		line, err := transport.ReadLine(r, '\n', maxLineLength)
		if err != nil {
			return
		}
		s.room.Say(name, line)
	}
}
