// Package obslog wires up the structured logger shared by every server.
package obslog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logrus logger configured the same way for every component:
// text formatter with full timestamps to stderr, tagged with the component
// name so mixed output from several servers running in one process can be
// told apart.
func New(component string) *logrus.Entry {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log.WithField("server", component)
}
