// Package watcher detects changes on the local tree and the remote server
// and records them in the state store.
package watcher

import (
	"fmt"
	"time"

	"github.com/chmdznr/ftpsync/pkg/models"
)

// EventKind is the type of change observed on a replica.
type EventKind int

const (
	// Added means the path appeared on the replica.
	Added EventKind = iota
	// Changed means the path's content may differ from the other replica.
	Changed
	// Deleted means the path disappeared from the replica.
	Deleted
)

// String returns a human-readable representation of the kind.
func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Changed:
		return "changed"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is a change notification for one logical path.
type Event struct {
	Kind EventKind
	Side models.Side
	Path string
	// SkipTolerance asks the decision logic to act even when both mtimes
	// lie within the tolerance window.
	SkipTolerance bool
}

func (e Event) String() string {
	return fmt.Sprintf("%s/%s %s", e.Kind, e.Side, e.Path)
}

// epochClock hands out scan epochs that strictly increase even when the
// wall clock is coarse or steps backwards.
type epochClock struct {
	last time.Time
}

func (c *epochClock) next() time.Time {
	now := time.Now().UTC()
	if !now.After(c.last) {
		now = c.last.Add(time.Microsecond)
	}
	c.last = now
	return now
}
