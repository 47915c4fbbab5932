package store

import (
	"context"
	"time"

	"github.com/lueurxax/legaldocml-crawler/internal/document"
)

// DualStore writes every upsert to the archive backend first and then the
// search backend, per the pipeline's ordering requirement: the archive
// copy is the durable record, the index is a derived, rebuildable view.
// Reads are served from the search backend, since it is the one designed
// for the richer query shapes; DualStore falls back to the archive for
// FindByDocumentID so a document remains visible even before it is
// indexed.
type DualStore struct {
	Archive *ArchiveStore
	Search  *SearchStore
}

// NewDualStore builds a DualStore over an existing archive and search
// backend.
func NewDualStore(archive *ArchiveStore, search *SearchStore) *DualStore {
	return &DualStore{Archive: archive, Search: search}
}

func (d *DualStore) Upsert(ctx context.Context, doc *document.LegalDocument) error {
	if err := d.Archive.Upsert(ctx, doc); err != nil {
		return err
	}

	return d.Search.Upsert(ctx, doc)
}

func (d *DualStore) FindByDocumentID(ctx context.Context, id string) (*document.LegalDocument, error) {
	doc, err := d.Search.FindByDocumentID(ctx, id)
	if err != nil || doc != nil {
		return doc, err
	}

	return d.Archive.FindByDocumentID(ctx, id)
}

func (d *DualStore) ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error) {
	return d.Search.ExistsBySourceURL(ctx, sourceURL)
}

func (d *DualStore) FindByCourt(ctx context.Context, court string, page Page) ([]*document.LegalDocument, error) {
	return d.Search.FindByCourt(ctx, court, page)
}

func (d *DualStore) FindByStatus(ctx context.Context, status document.Status, page Page) ([]*document.LegalDocument, error) {
	return d.Search.FindByStatus(ctx, status, page)
}

func (d *DualStore) FindByDateRange(ctx context.Context, start, end time.Time, page Page) ([]*document.LegalDocument, error) {
	return d.Search.FindByDateRange(ctx, start, end, page)
}

func (d *DualStore) FindByECLI(ctx context.Context, ecli string) (*document.LegalDocument, error) {
	return d.Search.FindByECLI(ctx, ecli)
}

func (d *DualStore) FindByCrawledAfter(ctx context.Context, after time.Time, page Page) ([]*document.LegalDocument, error) {
	return d.Search.FindByCrawledAfter(ctx, after, page)
}

func (d *DualStore) FindRecent(ctx context.Context, page Page) ([]*document.LegalDocument, error) {
	return d.Search.FindRecent(ctx, page)
}

func (d *DualStore) SearchText(ctx context.Context, term string, page Page) ([]*document.LegalDocument, error) {
	return d.Search.SearchText(ctx, term, page)
}

func (d *DualStore) CountByCourt(ctx context.Context, court string) (int, error) {
	return d.Search.CountByCourt(ctx, court)
}

func (d *DualStore) CountByStatus(ctx context.Context, status document.Status) (int, error) {
	return d.Search.CountByStatus(ctx, status)
}

func (d *DualStore) Count(ctx context.Context) (int, error) {
	return d.Search.Count(ctx)
}

func (d *DualStore) FindFailedForRetry(ctx context.Context, olderThan time.Time) ([]*document.LegalDocument, error) {
	return d.Search.FindFailedForRetry(ctx, olderThan)
}

func (d *DualStore) Delete(ctx context.Context, id string) error {
	if err := d.Archive.Delete(ctx, id); err != nil {
		return err
	}

	return d.Search.Delete(ctx, id)
}

func (d *DualStore) DeleteAll(ctx context.Context) error {
	if err := d.Archive.DeleteAll(ctx); err != nil {
		return err
	}

	return d.Search.DeleteAll(ctx)
}

var _ Repository = (*DualStore)(nil)
