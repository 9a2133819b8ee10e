// Package notify carries user-facing notifications from the engine to
// whatever front end is attached.
package notify

import "fmt"

// Kind identifies a notification category.
type Kind string

const (
	KindStatus      Kind = "status"
	KindProgress    Kind = "progress"
	KindIOError     Kind = "io_error"
	KindBadFilename Kind = "bad_filename"
	KindLogin       Kind = "login"
)

// Notification is a single message for the front end.
type Notification struct {
	Kind    Kind
	Message string
	Path    string
	Op      string
	Total   int64
	Done    int64
	Err     error
}

func (n Notification) String() string {
	switch n.Kind {
	case KindProgress:
		return fmt.Sprintf("%s %s %d/%d", n.Op, n.Path, n.Done, n.Total)
	case KindIOError:
		return fmt.Sprintf("%s %s: %v", n.Op, n.Path, n.Err)
	case KindBadFilename:
		return fmt.Sprintf("skipping %s: %s", n.Path, n.Message)
	default:
		return n.Message
	}
}

// Bus is a buffered notification channel. A nil *Bus discards everything.
type Bus struct {
	ch chan Notification
}

// NewBus creates a bus holding up to size undelivered notifications.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 64
	}
	return &Bus{ch: make(chan Notification, size)}
}

// Publish delivers n without blocking. Notifications are dropped when the
// consumer falls behind; the engine never waits on the front end.
func (b *Bus) Publish(n Notification) {
	if b == nil {
		return
	}
	select {
	case b.ch <- n:
	default:
	}
}

// C returns the receive side of the bus.
func (b *Bus) C() <-chan Notification {
	if b == nil {
		return nil
	}
	return b.ch
}

// Status publishes a status line.
func (b *Bus) Status(msg string) {
	b.Publish(Notification{Kind: KindStatus, Message: msg})
}

// Progress publishes a transfer progress update.
func (b *Bus) Progress(op, path string, done, total int64) {
	b.Publish(Notification{Kind: KindProgress, Op: op, Path: path, Done: done, Total: total})
}

// IOError publishes a per-file failure.
func (b *Bus) IOError(op, path string, err error) {
	b.Publish(Notification{Kind: KindIOError, Op: op, Path: path, Err: err})
}

// BadFilename publishes a skipped remote name.
func (b *Bus) BadFilename(path, reason string) {
	b.Publish(Notification{Kind: KindBadFilename, Path: path, Message: reason})
}

// Login publishes the login result.
func (b *Bus) Login(msg string, err error) {
	b.Publish(Notification{Kind: KindLogin, Message: msg, Err: err})
}
