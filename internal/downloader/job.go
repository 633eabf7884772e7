package downloader

import (
	"sort"
	"time"

	"imagedl/pkg/errors"
	"imagedl/pkg/media"
)

// Job is one file to download: a selected gallery item resolved to a
// concrete URL and destination path.
type Job struct {
	URL      string
	DestPath string
	Item     *media.Item
	Gallery  *media.Gallery
}

// Status is the terminal state of a job.
type Status string

const (
	// StatusDownloaded means the file was fetched and saved.
	StatusDownloaded Status = "downloaded"
	// StatusSkipped means the destination already existed.
	StatusSkipped Status = "skipped"
	// StatusSimulated means the job was listed without network access.
	StatusSimulated Status = "simulated"
	// StatusFailed means every permitted attempt failed.
	StatusFailed Status = "failed"
	// StatusCancelled means the run was cancelled before the job finished.
	StatusCancelled Status = "cancelled"
)

// Outcome is the terminal result of one job.
type Outcome struct {
	Job      Job
	Status   Status
	Err      error
	Attempts int
	Bytes    int64
	Duration time.Duration
}

// Report aggregates the outcomes of a whole run.
type Report struct {
	Outcomes []Outcome
	Duration time.Duration
}

// Count returns how many jobs ended in the given status.
func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Bytes returns the total bytes downloaded.
func (r *Report) Bytes() int64 {
	var total int64
	for _, o := range r.Outcomes {
		total += o.Bytes
	}
	return total
}

// FailureKinds returns the distinct error kinds of failed jobs with their
// counts, sorted by kind for stable reporting.
func (r *Report) FailureKinds() []KindCount {
	counts := make(map[errors.Kind]int)
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			counts[errors.KindOf(o.Err)]++
		}
	}
	out := make([]KindCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, KindCount{Kind: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// KindCount pairs an error kind with its occurrence count.
type KindCount struct {
	Kind  errors.Kind
	Count int
}
