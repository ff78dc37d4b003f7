// Package chat implements the budgetchat room: clients join with an
// alphanumeric username, see who else is present, and broadcast chat lines to
// everyone else in the room.
package chat

import (
	"bufio"
	"net"
	"sort"
	"strings"
	"sync"
)

// IsValidName reports whether name is non-empty and entirely alphanumeric,
// the only constraint budgetchat places on a username.
func IsValidName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

type member struct {
	name string
	w    *bufio.Writer
}

// Room holds the set of currently-joined members. All membership and
// broadcast operations happen under a single mutex: the room is small enough,
// and the protocol ordered enough, that serializing writes behind the same
// lock that guards membership is simpler than decoupling them and risking a
// join/leave announcement racing a chat line.
type Room struct {
	mu      sync.Mutex
	members map[string]*member
}

// NewRoom returns an empty room.
func NewRoom() *Room {
	return &Room{members: make(map[string]*member)}
}

// Join adds name to the room, announces it to existing members, and returns
// the names present before this join (for the "room contains" message). It
// fails if name is already taken.
func (r *Room) Join(name string, conn net.Conn) (present []string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.members[name]; taken {
		return nil, false
	}

	present = make([]string, 0, len(r.members))
	for n := range r.members {
		present = append(present, n)
	}
	sort.Strings(present)

	r.members[name] = &member{name: name, w: bufio.NewWriter(conn)}
	r.broadcastFromLocked(name, "* "+name+" has entered the room\n")
	return present, true
}

// Leave removes name from the room and announces its departure.
func (r *Room) Leave(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[name]; !ok {
		return
	}
	delete(r.members, name)
	r.broadcastFromLocked(name, "* "+name+" has left the room\n")
}

// Say broadcasts a chat line from name to every other member.
func (r *Room) Say(name, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastFromLocked(name, "["+name+"] "+text+"\n")
}

// SendTo writes msg to name only. Handle uses it for the room-contents line,
// sent after Join has already announced the member to the others.
func (r *Room) SendTo(name, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[name]; ok {
		_, _ = m.w.WriteString(msg)
		_ = m.w.Flush()
	}
}

func (r *Room) broadcastFromLocked(from, msg string) {
	for name, m := range r.members {
		if name == from {
			continue
		}
		_, _ = m.w.WriteString(msg)
		_ = m.w.Flush()
	}
}

// RoomContainsMessage formats the "room contains" banner shown to a joining
// client, listing whoever was already present.
func RoomContainsMessage(present []string) string {
	return "* The room contains: " + strings.Join(present, ", ") + "\n"
}
