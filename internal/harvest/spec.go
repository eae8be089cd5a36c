package harvest

import (
	"fmt"
	"time"

	"bronze-harvest/internal/snapshot"
)

// DatasetSpec describes one dataset to harvest.
type DatasetSpec struct {
	Name     string
	Dataset  string
	Prefix   string // snapshot prefix, defaults to the dataset id
	PageSize int
	// PageLimit caps the number of pages; zero or negative means no limit.
	PageLimit int
}

func (s DatasetSpec) Validate() error {
	if s.Dataset == "" {
		return fmt.Errorf("harvest: dataset is required")
	}
	if s.PageSize <= 0 {
		return fmt.Errorf("harvest: %s: page size must be positive, got %d", s.Dataset, s.PageSize)
	}
	return nil
}

func (s DatasetSpec) label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Dataset
}

func (s DatasetSpec) prefix() string {
	if s.Prefix != "" {
		return s.Prefix
	}
	return s.Dataset
}

// Reason tells why a harvest stopped.
type Reason string

const (
	// ReasonExhausted: the offset reached the reported hit count.
	ReasonExhausted Reason = "exhausted"
	// ReasonTruncated: the page limit stopped the run before the end of the
	// result set. The harvest is incomplete.
	ReasonTruncated Reason = "truncated"
	// ReasonEmpty: a page came back without records.
	ReasonEmpty Reason = "empty"
)

type Result struct {
	RunID  string
	Spec   DatasetSpec
	Pages  []snapshot.Ref
	Reason Reason

	Records int // records across all pages
	NHits   int // hit count reported by the last page

	StartedAt  time.Time
	FinishedAt time.Time
}

func (r Result) Truncated() bool { return r.Reason == ReasonTruncated }

func (r Result) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }
