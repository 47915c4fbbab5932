// Package store defines the document repository contract shared by every
// backend that can persist a LegalDocument: an archive filesystem layout,
// a Solr-compatible search index, and a dual-write wrapper that keeps
// both in sync.
package store

import (
	"context"
	"time"

	"github.com/lueurxax/legaldocml-crawler/internal/document"
	observability "github.com/lueurxax/legaldocml-crawler/internal/health"
)

// observeOp records how long a Repository method took against a given
// backend label, for the crawler_store_operation_duration_seconds
// histogram.
func observeOp(backend, method string, start time.Time) {
	observability.StoreOperationDuration.WithLabelValues(backend, method).Observe(time.Since(start).Seconds())
}

// Page bounds a listing query: Limit <= 0 means "use the backend
// default", Offset <= 0 means "start from the beginning".
type Page struct {
	Limit  int
	Offset int
}

// Repository is the single contract implemented by every store backend.
// documentId is the unique key; upsert is idempotent on it.
type Repository interface {
	Upsert(ctx context.Context, doc *document.LegalDocument) error
	FindByDocumentID(ctx context.Context, id string) (*document.LegalDocument, error)
	ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error)

	FindByCourt(ctx context.Context, court string, page Page) ([]*document.LegalDocument, error)
	FindByStatus(ctx context.Context, status document.Status, page Page) ([]*document.LegalDocument, error)
	FindByDateRange(ctx context.Context, start, end time.Time, page Page) ([]*document.LegalDocument, error)
	FindByECLI(ctx context.Context, ecli string) (*document.LegalDocument, error)
	FindByCrawledAfter(ctx context.Context, after time.Time, page Page) ([]*document.LegalDocument, error)
	FindRecent(ctx context.Context, page Page) ([]*document.LegalDocument, error)
	SearchText(ctx context.Context, term string, page Page) ([]*document.LegalDocument, error)

	CountByCourt(ctx context.Context, court string) (int, error)
	CountByStatus(ctx context.Context, status document.Status) (int, error)
	Count(ctx context.Context) (int, error)

	FindFailedForRetry(ctx context.Context, olderThan time.Time) ([]*document.LegalDocument, error)

	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}
