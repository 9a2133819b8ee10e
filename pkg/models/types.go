package models

import "time"

// Side identifies one replica of the sync.
type Side string

const (
	SideLocal  Side = "local"
	SideServer Side = "server"
)

// Other returns the opposite replica.
func (s Side) Other() Side {
	if s == SideLocal {
		return SideServer
	}
	return SideLocal
}

// ActionKind is the remediation applied to a path.
type ActionKind string

const (
	ActionUpload   ActionKind = "upload"
	ActionDownload ActionKind = "download"
	ActionDelete   ActionKind = "delete"
)

// FileRecord is the persisted state of one logical path on both replicas.
// Path is forward-slash separated with a leading slash.
type FileRecord struct {
	Path              string
	LocalModifiedAt   *time.Time
	RemoteModifiedAt  *time.Time
	LastCheckedLocal  *time.Time
	LastCheckedServer *time.Time
	PresentLocally    bool
	PresentRemotely   bool
}

// TimeDiff returns localModifiedAt - remoteModifiedAt in seconds. ok is false
// when either side's timestamp is unknown.
func (r *FileRecord) TimeDiff() (delta float64, ok bool) {
	if r.LocalModifiedAt == nil || r.RemoteModifiedAt == nil {
		return 0, false
	}
	return r.LocalModifiedAt.Sub(*r.RemoteModifiedAt).Seconds(), true
}

// Absent reports whether neither replica claims the path.
func (r *FileRecord) Absent() bool {
	return !r.PresentLocally && !r.PresentRemotely
}

// ActionEntry is a queued remediation. Target is the side the action acts upon.
type ActionEntry struct {
	Path   string
	Kind   ActionKind
	Target Side
}

func (a ActionEntry) String() string {
	return string(a.Kind) + "/" + string(a.Target) + " " + a.Path
}

// TimePtr returns a pointer to a UTC copy of t.
func TimePtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}
