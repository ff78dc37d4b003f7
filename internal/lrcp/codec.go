// Package lrcp implements the Line Reversal Control Protocol: a reliable,
// in-order session layer built on top of unreliable UDP datagrams, carrying
// an application that reverses each newline-terminated line it receives.
package lrcp

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reConnect = regexp.MustCompile(`^/connect/(\d+)/$`)
	reData    = regexp.MustCompile(`^/data/(\d+)/(\d+)/((?:[^/\\]|\\/|\\\\)*)/$`)
	reAck     = regexp.MustCompile(`^/ack/(\d+)/(\d+)/$`)
	reClose   = regexp.MustCompile(`^/close/(\d+)/$`)
)

type msgKind int

const (
	kindUnknown msgKind = iota
	kindConnect
	kindData
	kindAck
	kindClose
)

type parsedMsg struct {
	kind      msgKind
	sessionID uint32
	pos       int
	data      string
}

// parseMessage matches one LRCP datagram against the four message grammars.
// Datagrams that match none of them, or whose numeric fields overflow a
// session's 32-bit id/position space, are silently ignored per the protocol.
func parseMessage(raw string) (parsedMsg, bool) {
	if m := reConnect.FindStringSubmatch(raw); m != nil {
		sid, ok := parseUint32(m[1])
		if !ok {
			return parsedMsg{}, false
		}
		return parsedMsg{kind: kindConnect, sessionID: sid}, true
	}
	if m := reData.FindStringSubmatch(raw); m != nil {
		sid, ok := parseUint32(m[1])
		if !ok {
			return parsedMsg{}, false
		}
		pos, ok := parseUint32(m[2])
		if !ok {
			return parsedMsg{}, false
		}
		return parsedMsg{kind: kindData, sessionID: sid, pos: int(pos), data: unescape(m[3])}, true
	}
	if m := reAck.FindStringSubmatch(raw); m != nil {
		sid, ok := parseUint32(m[1])
		if !ok {
			return parsedMsg{}, false
		}
		pos, ok := parseUint32(m[2])
		if !ok {
			return parsedMsg{}, false
		}
		return parsedMsg{kind: kindAck, sessionID: sid, pos: int(pos)}, true
	}
	if m := reClose.FindStringSubmatch(raw); m != nil {
		sid, ok := parseUint32(m[1])
		if !ok {
			return parsedMsg{}, false
		}
		return parsedMsg{kind: kindClose, sessionID: sid}, true
	}
	return parsedMsg{}, false
}

func parseUint32(s string) (uint32, bool) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `/`, `\/`)
	return s
}

func unescape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '\\' || s[i+1] == '/') {
			b.WriteByte(s[i+1])
			i++
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func reverseLine(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
