package vcs

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vikstrand/protoharbor/internal/transport"
)

const maxLineLength = 1000

// verbResult is the outcome of dispatching one request line. needsBody
// signals that PUT's usage line parsed cleanly and the connection loop must
// read exactly length more raw bytes before a final message is known.
type verbResult struct {
	message   string
	needsBody bool
	path      string
	length    int
	abort     bool
}

// Server implements the HELP/GET/PUT/LIST protocol over a single shared
// file tree.
type Server struct {
	log  *logrus.Entry
	mu   sync.Mutex
	root *dir
}

// New returns a vcs Server ready to be handed to transport.Serve.
func New(log *logrus.Entry) *Server {
	return &Server{log: log, root: newDir("")}
}

// Handle implements transport.ConnHandler.
func (s *Server) Handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	if _, err := w.WriteString("READY\n"); err != nil {
		return
	}
	if err := w.Flush(); err != nil {
		return
	}

	for {
		line, err := transport.ReadLine(r, '\n', maxLineLength)
		if err != nil {
			return
		}

		result := s.handleRequest(line)
		if result.needsBody {
			data, err := transport.ReadExact(r, result.length)
			if err != nil {
				return
			}
			result = s.finishPut(result.path, data)
		}

		if _, err := w.WriteString(result.message); err != nil {
			return
		}
		if err := w.WriteByte('\n'); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
		if result.abort {
			return
		}
	}
}

func (s *Server) handleRequest(request string) verbResult {
	verb, args, _ := strings.Cut(request, " ")
	switch strings.ToUpper(verb) {
	case "HELP":
		return verbResult{message: "OK usage: HELP|GET|PUT|LIST\nREADY"}
	case "GET":
		return s.handleGet(args)
	case "PUT":
		return s.handlePut(args)
	case "LIST":
		return s.handleList(args)
	default:
		return verbResult{abort: true, message: fmt.Sprintf("ERR illegal method: %s", request)}
	}
}

func (s *Server) handleGet(argStr string) verbResult {
	args := strings.Split(argStr, " ")
	if len(args) < 1 || len(args) > 2 {
		return verbResult{message: "ERR usage: GET file [revision]\nREADY"}
	}

	path := args[0]
	if !IsValidPath(path) {
		return verbResult{message: "ERR illegal file name"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.root.getFile(path[1:])
	if !ok {
		return verbResult{message: "ERR no such file\nREADY"}
	}

	revision := len(f.revisions)
	if len(args) == 2 {
		revStr := strings.TrimPrefix(args[1], "r")
		rev, err := strconv.Atoi(revStr)
		if err != nil || rev < 1 || rev > len(f.revisions) {
			return verbResult{message: "ERR no such revision\nREADY"}
		}
		revision = rev
	}

	data := f.revisions[revision-1]
	return verbResult{message: fmt.Sprintf("OK %d\n%sREADY", len(data), data)}
}

func (s *Server) handlePut(argStr string) verbResult {
	args := strings.Split(argStr, " ")
	if len(args) != 2 {
		return verbResult{message: "ERR usage: PUT file length newline data\nREADY"}
	}

	path := args[0]
	if !IsValidPath(path) || strings.HasSuffix(path, "/") {
		return verbResult{message: "ERR illegal file name"}
	}

	length, err := strconv.Atoi(args[1])
	if err != nil || length < 0 {
		length = 0
	}
	return verbResult{needsBody: true, path: path, length: length}
}

func (s *Server) finishPut(path string, data []byte) verbResult {
	for _, b := range data {
		if !(b >= 0x20 && b <= 0x7f) && b != 0x09 && b != 0x0a && b != 0x0d {
			return verbResult{message: "ERR text files only\nREADY"}
		}
	}

	s.mu.Lock()
	revision := s.root.putFile(path[1:], string(data))
	s.mu.Unlock()

	return verbResult{message: fmt.Sprintf("OK r%d\nREADY", revision)}
}

func (s *Server) handleList(dirName string) verbResult {
	if dirName == "" || strings.Contains(dirName, " ") {
		return verbResult{message: "ERR usage: LIST dir\nREADY"}
	}
	if !IsValidPath(dirName) {
		return verbResult{message: "ERR illegal dir name"}
	}

	nameEnd := len(dirName)
	if strings.HasSuffix(dirName, "/") && len(dirName) > 1 {
		nameEnd--
	}

	s.mu.Lock()
	list := s.root.getList(dirName[1:nameEnd])
	s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "OK %d\n", len(list))
	b.WriteString(strings.Join(list, "\n"))
	if len(list) > 0 {
		b.WriteByte('\n')
	}
	b.WriteString("READY")
	return verbResult{message: b.String()}
}
