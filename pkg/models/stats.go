package models

// Stats represents state store statistics
type Stats struct {
	TotalFiles       int64
	SyncedFiles      int64 // present on both sides
	LocalOnlyFiles   int64
	RemoteOnlyFiles  int64
	AbsentFiles      int64 // waiting for garbage collection
	PendingUploads   int64
	PendingDownloads int64
	PendingDeletes   int64
}

// PendingActions returns the total number of queued actions.
func (s *Stats) PendingActions() int64 {
	return s.PendingUploads + s.PendingDownloads + s.PendingDeletes
}
