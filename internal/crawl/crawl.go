// Package crawl orchestrates one calendar date end-to-end: fetch the
// day's sitemap index, walk every leaf sitemap, and hand each entry to
// the downloader, creating or refreshing the corresponding document
// record in the store.
package crawl

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/legaldocml-crawler/internal/document"
	"github.com/lueurxax/legaldocml-crawler/internal/downloader"
	"github.com/lueurxax/legaldocml-crawler/internal/sitemap"
	"github.com/lueurxax/legaldocml-crawler/internal/store"
)

const retryEligibleAfter = time.Hour

// prefixToCourt maps the leading letters of a documentId to the issuing
// court. Unmapped prefixes resolve to UNKNOWN.
var prefixToCourt = map[string]string{
	"KARE": "BAG",
	"KORE": "BGH",
	"KSRE": "BSG",
	"WBRE": "BVerwG",
}

// Result summarizes the outcome of crawling one date.
type Result struct {
	NewDocs     []string
	UpdatedDocs []string
	FailedDocs  []string
}

// Orchestrator drives one date's worth of sitemap discovery and download.
type Orchestrator struct {
	sitemapClient *sitemap.Client
	downloader    *downloader.Downloader
	repo          store.Repository
	logger        *zerolog.Logger
}

// New builds an Orchestrator.
func New(sitemapClient *sitemap.Client, dl *downloader.Downloader, repo store.Repository, logger *zerolog.Logger) *Orchestrator {
	return &Orchestrator{sitemapClient: sitemapClient, downloader: dl, repo: repo, logger: logger}
}

// Crawl fetches the sitemap index for date, walks every leaf, and
// downloads every entry not already DOWNLOADED or PROCESSED (unless
// forceUpdate is set).
func (o *Orchestrator) Crawl(ctx context.Context, date time.Time, forceUpdate bool) (Result, error) {
	var result Result

	leafURLs, err := o.sitemapClient.FetchIndex(ctx, date)
	if err != nil {
		return result, err
	}

	for _, leafURL := range leafURLs {
		entries, err := o.sitemapClient.FetchLeaf(ctx, leafURL)
		if err != nil {
			if o.logger != nil {
				o.logger.Error().Err(err).Str("leaf", leafURL).Msg("failed to fetch leaf sitemap")
			}

			continue
		}

		for _, entry := range entries {
			o.processEntry(ctx, entry, forceUpdate, &result)
		}
	}

	return result, nil
}

func (o *Orchestrator) processEntry(ctx context.Context, entry sitemap.Entry, forceUpdate bool, result *Result) {
	if entry.DocumentID == "" {
		return
	}

	existing, err := o.repo.FindByDocumentID(ctx, entry.DocumentID)
	if err != nil && o.logger != nil {
		o.logger.Error().Err(err).Str("documentId", entry.DocumentID).Msg("lookup failed, treating as new")
	}

	isUpdate := existing != nil

	if isUpdate && !forceUpdate && isAlreadyDone(existing.Status) {
		return
	}

	doc := existing
	if doc == nil {
		doc = &document.LegalDocument{
			DocumentID:   entry.DocumentID,
			Court:        CourtForDocumentID(entry.DocumentID),
			SourceURL:    entry.URL,
			DecisionDate: time.Now().UTC(),
			Status:       document.StatusPending,
		}

		if err := o.repo.Upsert(ctx, doc); err != nil {
			o.markFailed(ctx, entry.DocumentID, result)
			return
		}
	}

	downloadResult := o.downloader.Download(ctx, doc)
	if !downloadResult.Success {
		o.markFailed(ctx, entry.DocumentID, result)
		return
	}

	if isUpdate {
		result.UpdatedDocs = append(result.UpdatedDocs, entry.DocumentID)
	} else {
		result.NewDocs = append(result.NewDocs, entry.DocumentID)
	}
}

func (o *Orchestrator) markFailed(ctx context.Context, documentID string, result *Result) {
	doc, err := o.repo.FindByDocumentID(ctx, documentID)
	if err == nil && doc != nil {
		doc.Status = document.StatusFailed

		if upsertErr := o.repo.Upsert(ctx, doc); upsertErr != nil && o.logger != nil {
			o.logger.Error().Err(upsertErr).Str("documentId", documentID).Msg("failed to persist FAILED status")
		}
	}

	result.FailedDocs = append(result.FailedDocs, documentID)
}

func isAlreadyDone(status document.Status) bool {
	return status == document.StatusDownloaded || status == document.StatusProcessed
}

// CourtForDocumentID derives the issuing court from a documentId's
// leading letters, e.g. "KARE500041892" -> "BAG".
func CourtForDocumentID(documentID string) string {
	for prefix, court := range prefixToCourt {
		if strings.HasPrefix(documentID, prefix) {
			return court
		}
	}

	return "UNKNOWN"
}

// RetryFailed picks up every FAILED document older than one hour, resets
// it to PENDING, and re-invokes the downloader, returning the count of
// documents that succeeded on retry.
func (o *Orchestrator) RetryFailed(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-retryEligibleAfter)

	candidates, err := o.repo.FindFailedForRetry(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	succeeded := 0

	for _, doc := range candidates {
		doc.Status = document.StatusPending

		if err := o.repo.Upsert(ctx, doc); err != nil {
			if o.logger != nil {
				o.logger.Error().Err(err).Str("documentId", doc.DocumentID).Msg("failed to reset status before retry")
			}

			continue
		}

		if o.downloader.Download(ctx, doc).Success {
			succeeded++
		}
	}

	return succeeded, nil
}
