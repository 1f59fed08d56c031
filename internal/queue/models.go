package queue

import (
	"strings"
	"time"
)

// Status represents the processing lifecycle of a content file.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
	StatusDead       Status = "dead"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusReady,
	StatusFailed,
	StatusDead,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a string to a Status, reporting whether it is known.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// Claimable reports whether the worker may pick up a row in this status.
func (s Status) Claimable() bool {
	return s == StatusPending || s == StatusFailed
}

// Job is a content file viewed as a unit of processing work.
type Job struct {
	ID            int64
	ContentID     int64
	Title         string
	OriginalPath  string
	Status        Status
	Attempts      int
	NextAttemptAt *time.Time
	LastError     string
	HLSPath       string
	PreviewPath   string
	PosterPath    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Renditions are the derived asset paths, relative to the content root.
type Renditions struct {
	HLS     string
	Preview string
	Poster  string
}

// Complete reports whether all three paths are set.
func (r Renditions) Complete() bool {
	return r.HLS != "" && r.Preview != "" && r.Poster != ""
}

// Policy bounds retries for failed jobs.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
}

// DefaultPolicy mirrors the configuration defaults.
var DefaultPolicy = Policy{MaxAttempts: 5, Base: 30 * time.Second, Max: 30 * time.Minute}

// Backoff returns the delay before the next attempt after attempts failures.
// The delay doubles from Base and never exceeds Max.
func (p Policy) Backoff(attempts int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	delay := p.Base
	for i := 1; i < attempts; i++ {
		if p.Max > 0 && delay >= p.Max {
			break
		}
		delay *= 2
	}
	if p.Max > 0 && delay > p.Max {
		return p.Max
	}
	return delay
}

// Exhausted reports whether attempts has reached the retry budget.
func (p Policy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

// HealthSummary aggregates queue counts for status output.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Ready      int
	Failed     int
	Dead       int
}

// DatabaseHealth reports diagnostic information about the store.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    uint
	SchemaDirty      bool
	TotalItems       int
	IntegrityCheck   bool
	Error            string
}
