package speed

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vikstrand/protoharbor/internal/idgen"
	"github.com/vikstrand/protoharbor/internal/transport"
)

// Server runs the speed-daemon protocol. Each connection is either a camera
// or a dispatcher, decided by the first identifying message it sends.
type Server struct {
	st  *state
	log *logrus.Entry

	mu      sync.Mutex
	nextID  ClientID
	writers map[ClientID]*clientWriter
}

// clientWriter serializes the two independent producers of outgoing bytes
// for one connection: the protocol handler (tickets, errors) and the
// heartbeat ticker goroutine.
type clientWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *clientWriter) write(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.conn.Write(b)
	return err
}

// New returns a speed-daemon Server ready to be handed to transport.Serve.
func New(log *logrus.Entry) *Server {
	return &Server{
		st:      newState(),
		log:     log,
		writers: make(map[ClientID]*clientWriter),
	}
}

func (s *Server) allocateID(cw *clientWriter) ClientID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.writers[id] = cw
	return id
}

func (s *Server) writerFor(id ClientID) *clientWriter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writers[id]
}

func (s *Server) dropClient(id ClientID) {
	s.mu.Lock()
	delete(s.writers, id)
	s.mu.Unlock()
	s.st.removeClient(id)
}

// Handle implements transport.ConnHandler.
func (s *Server) Handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := s.log.WithField("conn", idgen.New())

	cw := &clientWriter{conn: conn}
	id := s.allocateID(cw)
	defer s.dropClient(id)

	r := bufio.NewReader(conn)
	for {
		msgType, err := r.ReadByte()
		if err != nil {
			return
		}

		switch msgType {
		case msgPlate:
			plate, ts, err := readPlateBody(r)
			if err != nil {
				return
			}
			assignments, errMsg := s.st.readPlate(id, plate, ts)
			if errMsg != "" {
				_ = cw.write(encodeError(errMsg))
				return
			}
			for _, a := range assignments {
				if w := s.writerFor(a.recipient); w != nil {
					_ = w.write(a.t.encode())
				}
			}

		case msgWantHeartbeat:
			interval, err := readU32(r)
			if err != nil {
				return
			}
			if errMsg := s.st.markHeartbeat(id); errMsg != "" {
				_ = cw.write(encodeError(errMsg))
				return
			}
			if interval > 0 {
				go sendHeartbeats(ctx, cw, time.Duration(interval)*100*time.Millisecond)
			}

		case msgIAmCamera:
			road, mile, limit, err := readCameraBody(r)
			if err != nil {
				return
			}
			if errMsg := s.st.addCamera(id, camera{road: road, mile: mile, limit: limit}); errMsg != "" {
				_ = cw.write(encodeError(errMsg))
				return
			}

		case msgIAmDispatcher:
			roads, err := readDispatcherBody(r)
			if err != nil {
				return
			}
			toSend, errMsg := s.st.addDispatcher(id, dispatcher{roads: roads})
			if errMsg != "" {
				_ = cw.write(encodeError(errMsg))
				return
			}
			for _, t := range toSend {
				_ = cw.write(t.encode())
			}

		default:
			_ = cw.write(encodeError("invalid message type"))
			return
		}
	}
}

func sendHeartbeats(ctx context.Context, w *clientWriter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.write([]byte{msgHeartbeat}); err != nil {
				return
			}
		}
	}
}

func readU16(r *bufio.Reader) (uint16, error) {
	b, err := transport.ReadExact(r, 2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

func readU32(r *bufio.Reader) (uint32, error) {
	b, err := transport.ReadExact(r, 4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func readPlateBody(r *bufio.Reader) (plate string, timestamp uint32, err error) {
	lenByte, err := r.ReadByte()
	if err != nil {
		return "", 0, err
	}
	b, err := transport.ReadExact(r, int(lenByte))
	if err != nil {
		return "", 0, err
	}
	ts, err := readU32(r)
	if err != nil {
		return "", 0, err
	}
	return string(b), ts, nil
}

func readCameraBody(r *bufio.Reader) (road, mile, limit uint16, err error) {
	if road, err = readU16(r); err != nil {
		return
	}
	if mile, err = readU16(r); err != nil {
		return
	}
	limit, err = readU16(r)
	return
}

func readDispatcherBody(r *bufio.Reader) ([]uint16, error) {
	numRoads, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	roads := make([]uint16, numRoads)
	for i := range roads {
		roads[i], err = readU16(r)
		if err != nil {
			return nil, err
		}
	}
	return roads, nil
}
