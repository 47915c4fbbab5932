// Package document defines the central LegalDocument entity shared by every
// component of the crawler pipeline, from discovery through storage.
package document

import "time"

// Status is the lifecycle state of a LegalDocument.
type Status string

const (
	// StatusPending means the document was seen in a sitemap but not yet downloaded.
	StatusPending Status = "PENDING"
	// StatusDownloaded means the raw body was fetched and persisted.
	StatusDownloaded Status = "DOWNLOADED"
	// StatusProcessed means the document was downloaded, validated and extracted.
	StatusProcessed Status = "PROCESSED"
	// StatusFailed means a fatal error occurred somewhere in the pipeline.
	StatusFailed Status = "FAILED"
)

// CanTransitionTo reports whether moving from s to next is a legal status
// transition: PENDING -> DOWNLOADED -> PROCESSED, any state -> FAILED,
// FAILED -> PENDING (manual retry only), or staying in the same state.
func (s Status) CanTransitionTo(next Status) bool {
	if next == StatusFailed {
		return true
	}

	switch s {
	case StatusPending:
		return next == StatusDownloaded || next == StatusPending
	case StatusDownloaded:
		return next == StatusProcessed || next == StatusDownloaded
	case StatusProcessed:
		return next == StatusProcessed
	case StatusFailed:
		return next == StatusPending
	default:
		return false
	}
}

// LegalDocument is the central entity of the crawler: one record per
// documentId, mutated in place by the Downloader as it moves through its
// lifecycle.
type LegalDocument struct {
	// DocumentID is the portal's opaque identifier (e.g. "KARE500041892")
	// and the natural key: exactly one record exists per ID.
	DocumentID string `json:"documentId"`

	// ECLI is set after validation/extraction and, if non-empty, matches
	// the ECLI grammar.
	ECLI string `json:"ecli,omitempty"`

	// Court is derived from the DocumentID prefix at creation time and
	// refined by extraction; never empty once persisted.
	Court string `json:"court"`

	SourceURL string `json:"sourceUrl"`

	// DecisionDate is initialized to crawl time as a placeholder and
	// refined from extracted content.
	DecisionDate time.Time `json:"decisionDate"`
	CrawledAt    time.Time `json:"crawledAt,omitempty"`

	Title        string `json:"title,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Summary      string `json:"summary,omitempty"`
	CaseNumber   string `json:"caseNumber,omitempty"`
	DocumentType string `json:"documentType,omitempty"`
	Norms        string `json:"norms,omitempty"`
	Leitsatz     string `json:"leitsatz,omitempty"`
	Tenor        string `json:"tenor,omitempty"`
	Gruende      string `json:"gruende,omitempty"`
	FullText     string `json:"fullText,omitempty"`

	// FilePath is the archive location once written to the filesystem
	// backend.
	FilePath string `json:"filePath,omitempty"`

	Status Status `json:"status"`
}

// Valid reports whether the document satisfies the invariants that must
// hold once it is persisted: a non-empty identity, a non-empty court, and
// (when downloaded or processed) a crawl timestamp.
func (d *LegalDocument) Valid() bool {
	if d == nil || d.DocumentID == "" || d.Court == "" {
		return false
	}

	if d.Status == StatusDownloaded || d.Status == StatusProcessed {
		return !d.CrawledAt.IsZero()
	}

	return true
}
