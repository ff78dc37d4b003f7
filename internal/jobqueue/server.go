package jobqueue

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vikstrand/protoharbor/internal/idgen"
	"github.com/vikstrand/protoharbor/internal/transport"
)

const maxLineLength = 1 << 20

// Server runs the job-queue broker protocol over a shared Broker.
type Server struct {
	broker *Broker
	log    *logrus.Entry

	mu     sync.Mutex
	nextID ClientID
}

// NewServer returns a jobqueue Server ready to be handed to transport.Serve.
func NewServer(log *logrus.Entry) *Server {
	return &Server{broker: New(), log: log}
}

func (s *Server) allocateClientID() ClientID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	return id
}

type request struct {
	Request string          `json:"request"`
	Queue   string          `json:"queue"`
	Pri     json.Number     `json:"pri"`
	Job     json.RawMessage `json:"job"`
	Queues  []string        `json:"queues"`
	Wait    bool            `json:"wait"`
	ID      json.Number     `json:"id"`
}

// Handle implements transport.ConnHandler.
func (s *Server) Handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := s.log.WithField("conn", idgen.New())

	clientID := s.allocateClientID()
	defer s.broker.Disconnect(clientID)

	r := bufio.NewReaderSize(conn, maxLineLength)
	w := bufio.NewWriter(conn)

	for {
		line, err := transport.ReadLine(r, '\n', maxLineLength)
		if err != nil {
			return
		}

		resp := s.handleRequest(ctx, clientID, line)
		encoded, err := json.Marshal(resp)
		if err != nil {
			log.WithError(err).Error("failed to encode response")
			return
		}
		if _, err := w.Write(encoded); err != nil {
			return
		}
		if err := w.WriteByte('\n'); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, clientID ClientID, line string) map[string]any {
	var req request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return errorResponse("invalid JSON format")
	}

	switch req.Request {
	case "put":
		return s.handlePut(req)
	case "get":
		return s.handleGet(ctx, clientID, req)
	case "delete":
		return s.handleDelete(req)
	case "abort":
		return s.handleAbort(clientID, req)
	case "":
		return errorResponse("key 'request' not found in JSON")
	default:
		return errorResponse("invalid request type: '" + req.Request + "'")
	}
}

func (s *Server) handlePut(req request) map[string]any {
	if req.Queue == "" {
		return errorResponse("invalid key 'queue' in put request")
	}
	priority, err := req.Pri.Int64()
	if err != nil || priority < 0 {
		return errorResponse("invalid priority in put request")
	}
	if len(req.Job) == 0 {
		return errorResponse("key 'job' not found in put request")
	}

	id := s.broker.Put(req.Queue, uint64(priority), req.Job)
	return map[string]any{"status": "ok", "id": id}
}

func (s *Server) handleGet(ctx context.Context, clientID ClientID, req request) map[string]any {
	if req.Queues == nil {
		return errorResponse("key 'queues' is not an array")
	}

	job, ok := s.broker.Get(ctx, clientID, req.Queues, req.Wait)
	if !ok {
		return map[string]any{"status": "no-job"}
	}
	return map[string]any{
		"status": "ok",
		"id":     job.ID,
		"pri":    job.Priority,
		"queue":  job.Queue,
		"job":    job.Task,
	}
}

func (s *Server) handleDelete(req request) map[string]any {
	id, err := req.ID.Int64()
	if err != nil {
		return errorResponse("invalid id")
	}
	if s.broker.Delete(uint64(id)) {
		return map[string]any{"status": "ok"}
	}
	return map[string]any{"status": "no-job"}
}

func (s *Server) handleAbort(clientID ClientID, req request) map[string]any {
	id, err := req.ID.Int64()
	if err != nil {
		return errorResponse("invalid id")
	}
	ok, errMsg := s.broker.Abort(clientID, uint64(id))
	if !ok {
		return errorResponse(errMsg)
	}
	return map[string]any{"status": "ok"}
}

func errorResponse(msg string) map[string]any {
	return map[string]any{"status": "error", "error": msg}
}
