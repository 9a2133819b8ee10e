package sync

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/chmdznr/ftpsync/internal/watcher"
	"github.com/chmdznr/ftpsync/pkg/utils"
)

// CycleStats describes one drain-and-scan cycle.
type CycleStats struct {
	Started    time.Time
	Duration   time.Duration
	Drained    int
	Events     int
	Uploaded   int
	Downloaded int
	Deleted    int
	Skipped    int
	Failed     int
	Bytes      int64
	Purged     int64
	Queued     int // actions waiting after the cycle
}

func newCycleStats() *CycleStats {
	return &CycleStats{Started: time.Now()}
}

func (c *CycleStats) addTransfers(r watcher.TransferReport) {
	c.Uploaded += r.Uploaded
	c.Downloaded += r.Downloaded
	c.Deleted += r.Deleted
	c.Failed += r.Failed
	c.Bytes += r.Bytes
}

func (c *CycleStats) finish() {
	c.Duration = time.Since(c.Started)
}

// Worked reports whether the cycle performed or discovered any work.
func (c *CycleStats) Worked() bool {
	return c.Drained > 0 || c.Events > 0 || c.Uploaded+c.Downloaded+c.Deleted+c.Failed > 0
}

// Speed returns the average transfer rate in bytes per second.
func (c *CycleStats) Speed() float64 {
	secs := c.Duration.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(c.Bytes) / secs
}

func (c *CycleStats) log(l zerolog.Logger) {
	level := zerolog.DebugLevel
	if c.Worked() {
		level = zerolog.InfoLevel
	}
	l.WithLevel(level).
		Int("drained", c.Drained).
		Int("events", c.Events).
		Int("uploaded", c.Uploaded).
		Int("downloaded", c.Downloaded).
		Int("deleted", c.Deleted).
		Int("skipped", c.Skipped).
		Int("failed", c.Failed).
		Int64("purged", c.Purged).
		Int("queued", c.Queued).
		Str("transferred", utils.FormatSize(c.Bytes)).
		Str("speed", utils.FormatSpeed(c.Speed())).
		Str("elapsed", utils.FormatDuration(c.Duration)).
		Msg("sync cycle finished")
}
