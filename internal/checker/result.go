package checker

import "time"

// Status represents the reachability of a target.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Target is a single monitored URL. Its identity is the URL string.
type Target struct {
	URL string
}

func (t Target) String() string {
	return t.URL
}

// CheckResult is the outcome of a single probe.
type CheckResult struct {
	Target       Target
	Status       Status
	StatusCode   int
	ResponseTime time.Duration
	Error        string
	CheckedAt    time.Time
}
