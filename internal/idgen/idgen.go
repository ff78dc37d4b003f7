// Package idgen mints correlation identifiers attached to accepted
// connections (chat, speed and jobqueue servers) so log lines from the same
// peer can be grepped together.
package idgen

import "github.com/google/uuid"

// New returns a fresh correlation id, short enough to keep log lines readable.
func New() string {
	return uuid.New().String()[:8]
}
