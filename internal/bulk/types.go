// Package bulk coordinates long-running, pausable, resumable,
// cancellable crawl campaigns over a date range (or the portal's full
// history), persisting progress so a campaign survives a restart.
package bulk

import "time"

// Status is a campaign's lifecycle state.
type Status string

const (
	StatusInitializing Status = "INITIALIZING"
	StatusDiscovering  Status = "DISCOVERING"
	StatusCrawling     Status = "CRAWLING"
	StatusPaused       Status = "PAUSED"
	StatusResuming     Status = "RESUMING"
	StatusCancelled    Status = "CANCELLED"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
)

func (s Status) terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusFailed
}

// Kind distinguishes a bounded date-range campaign from a full-history
// one whose bounds are discovered at runtime.
type Kind string

const (
	KindRange Kind = "RANGE"
	KindFull  Kind = "FULL"
)

// StuckErrorMessage is recorded by ReapStuck when force-failing a
// campaign that outran its timeout.
const StuckErrorMessage = "stuck"

// Config parameterizes one campaign's pacing.
type Config struct {
	RateLimitMs             int
	MaxConcurrentDownloads  int
	DiscoveryTimeoutHours   int
}

// Progress is the persisted state of one campaign.
type Progress struct {
	OperationID             string
	Kind                    Kind
	Status                  Status
	RangeStart              time.Time
	RangeEnd                time.Time
	CurrentDateCursor       time.Time
	Config                  Config
	EstimatedTotalDocuments int64
	DocumentsProcessed      int64
	DocumentsFailed         int64
	// ProcessedDates and FailedDates record, per date, which side of the
	// campaign's date range has already been crawled; DatesProcessed
	// derives from their combined length rather than being tracked as a
	// separate counter that could drift out of sync.
	ProcessedDates []time.Time
	FailedDates    []time.Time
	RetryCount     int
	RatePerMinute  float64
	// PauseRequested and CancelRequested are latches written by
	// Pause/Resume/Cancel (Resume clears PauseRequested). They are persisted alongside the rest of
	// the row (not held only in an in-memory flag) so a restarted
	// process can see a pause or cancel that was requested before it
	// came back up, via Coordinator.ReattachAll.
	PauseRequested        bool
	CancelRequested       bool
	EstimatedCompletionAt time.Time
	ErrorMessage          string
	StartedAt             time.Time
	CompletedAt           time.Time
	UpdatedAt             time.Time
}

// DatesProcessed is the count of dates the campaign has finished handling,
// successfully or not.
func (p *Progress) DatesProcessed() int {
	return len(p.ProcessedDates) + len(p.FailedDates)
}

func (p *Progress) recomputeRate() {
	minutes := time.Since(p.StartedAt).Minutes()
	if minutes <= 0 {
		return
	}

	p.RatePerMinute = float64(p.DocumentsProcessed) / minutes

	if p.RatePerMinute <= 0 || p.EstimatedTotalDocuments <= p.DocumentsProcessed {
		p.EstimatedCompletionAt = time.Time{}
		return
	}

	remaining := float64(p.EstimatedTotalDocuments - p.DocumentsProcessed)
	etaMinutes := remaining / p.RatePerMinute
	p.EstimatedCompletionAt = time.Now().UTC().Add(time.Duration(etaMinutes * float64(time.Minute)))
}
