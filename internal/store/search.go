package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/lueurxax/legaldocml-crawler/internal/document"
	"github.com/lueurxax/legaldocml-crawler/internal/searchclient"
)

// SearchStore implements Repository on top of the Solr-compatible search
// index: the document's natural key (documentId) doubles as the index id,
// FindByDocumentID uses the real-time get handler, and every other read
// method is translated into a search query.
type SearchStore struct {
	client *searchclient.Client
}

// NewSearchStore wraps an existing searchclient.Client as a Repository.
func NewSearchStore(client *searchclient.Client) *SearchStore {
	return &SearchStore{client: client}
}

func toIndexDoc(doc *document.LegalDocument, indexedAt time.Time) searchclient.IndexDocument {
	d := searchclient.NewIndexDocument(doc.DocumentID).
		SetField("document_id", doc.DocumentID).
		SetField("court", doc.Court).
		SetField("ecli_identifier", doc.ECLI).
		SetField("source_url", doc.SourceURL).
		SetField("title", doc.Title).
		SetField("summary", doc.Summary).
		SetField("full_text", doc.FullText).
		SetField("case_number", doc.CaseNumber).
		SetField("document_type", doc.DocumentType).
		SetField("status", string(doc.Status)).
		SetField("file_path", doc.FilePath).
		SetField("leitsatz", doc.Leitsatz).
		SetField("tenor", doc.Tenor).
		SetField("gruende", doc.Gruende).
		SetField("indexed_at", indexedAt).
		SetField("title_de", normalizeGerman(doc.Title)).
		SetField("full_text_de", normalizeGerman(doc.FullText))

	if !doc.DecisionDate.IsZero() {
		d.SetField("decision_date", doc.DecisionDate).
			SetField("year", doc.DecisionDate.Year()).
			SetField("month", int(doc.DecisionDate.Month()))
	}

	if !doc.CrawledAt.IsZero() {
		d.SetField("crawled_at", doc.CrawledAt)
	}

	return d
}

func fromIndexedDocument(d *searchclient.Document) *document.LegalDocument {
	return &document.LegalDocument{
		DocumentID:   d.DocumentID,
		ECLI:         d.ECLIIdentifier,
		Court:        d.Court,
		SourceURL:    d.SourceURL,
		DecisionDate: d.DecisionDate,
		CrawledAt:    d.CrawledAt,
		Title:        d.Title,
		Summary:      d.Summary,
		CaseNumber:   d.CaseNumber,
		DocumentType: d.DocumentType,
		Leitsatz:     d.Leitsatz,
		Tenor:        d.Tenor,
		Gruende:      d.Gruende,
		FullText:     d.FullText,
		FilePath:     d.FilePath,
		Status:       document.Status(d.Status),
	}
}

// Upsert indexes doc, stamping indexed_at with the current time.
func (s *SearchStore) Upsert(ctx context.Context, doc *document.LegalDocument) error {
	defer observeOp("search", "Upsert", time.Now())

	return s.client.Index(ctx, toIndexDoc(doc, time.Now().UTC()))
}

func (s *SearchStore) FindByDocumentID(ctx context.Context, id string) (*document.LegalDocument, error) {
	defer observeOp("search", "FindByDocumentID", time.Now())

	d, err := s.client.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, err
	}

	return fromIndexedDocument(d), nil
}

func (s *SearchStore) ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error) {
	resp, err := s.client.Search(ctx, fmt.Sprintf(`source_url:%q`, sourceURL), searchclient.WithRows(1))
	if err != nil {
		return false, err
	}

	return resp.Response.NumFound > 0, nil
}

func (s *SearchStore) FindByCourt(ctx context.Context, court string, page Page) ([]*document.LegalDocument, error) {
	return s.query(ctx, "court:"+quote(court), "", page)
}

func (s *SearchStore) FindByStatus(ctx context.Context, status document.Status, page Page) ([]*document.LegalDocument, error) {
	return s.query(ctx, "status:"+quote(string(status)), "", page)
}

func (s *SearchStore) FindByDateRange(ctx context.Context, start, end time.Time, page Page) ([]*document.LegalDocument, error) {
	q := fmt.Sprintf("decision_date:[%s TO %s]", formatSolrTime(start), formatSolrTime(end))
	return s.query(ctx, q, "decision_date asc", page)
}

func (s *SearchStore) FindByECLI(ctx context.Context, ecli string) (*document.LegalDocument, error) {
	resp, err := s.client.Search(ctx, "ecli_identifier:"+quote(ecli), searchclient.WithRows(1))
	if err != nil {
		return nil, err
	}

	if resp.Response.NumFound == 0 || len(resp.Response.Docs) == 0 {
		return nil, nil
	}

	return fromIndexedDocument(&resp.Response.Docs[0]), nil
}

func (s *SearchStore) FindByCrawledAfter(ctx context.Context, after time.Time, page Page) ([]*document.LegalDocument, error) {
	q := fmt.Sprintf("crawled_at:[%s TO *]", formatSolrTime(after))
	return s.query(ctx, q, "crawled_at asc", page)
}

func (s *SearchStore) FindRecent(ctx context.Context, page Page) ([]*document.LegalDocument, error) {
	return s.query(ctx, "*:*", "crawled_at desc", page)
}

func (s *SearchStore) SearchText(ctx context.Context, term string, page Page) ([]*document.LegalDocument, error) {
	defer observeOp("search", "SearchText", time.Now())

	opts := []searchclient.SearchOption{searchclient.WithEdismax("full_text_de title_de summary")}
	opts = append(opts, pageOptions(page)...)

	resp, err := s.client.Search(ctx, term, opts...)
	if err != nil {
		return nil, err
	}

	return toDocs(resp), nil
}

func (s *SearchStore) CountByCourt(ctx context.Context, court string) (int, error) {
	resp, err := s.client.Search(ctx, "court:"+quote(court), searchclient.WithRows(0))
	if err != nil {
		return 0, err
	}

	return resp.Response.NumFound, nil
}

func (s *SearchStore) CountByStatus(ctx context.Context, status document.Status) (int, error) {
	resp, err := s.client.Search(ctx, "status:"+quote(string(status)), searchclient.WithRows(0))
	if err != nil {
		return 0, err
	}

	return resp.Response.NumFound, nil
}

func (s *SearchStore) Count(ctx context.Context) (int, error) {
	resp, err := s.client.Search(ctx, "*:*", searchclient.WithRows(0))
	if err != nil {
		return 0, err
	}

	return resp.Response.NumFound, nil
}

func (s *SearchStore) FindFailedForRetry(ctx context.Context, olderThan time.Time) ([]*document.LegalDocument, error) {
	q := fmt.Sprintf("status:%s AND crawled_at:[* TO %s]", quote(string(document.StatusFailed)), formatSolrTime(olderThan))
	return s.query(ctx, q, "", Page{})
}

func (s *SearchStore) Delete(ctx context.Context, id string) error {
	return s.client.Delete(ctx, id)
}

func (s *SearchStore) DeleteAll(ctx context.Context) error {
	return s.client.DeleteByQuery(ctx, "*:*")
}

func (s *SearchStore) query(ctx context.Context, q, sort string, page Page) ([]*document.LegalDocument, error) {
	opts := pageOptions(page)
	if sort != "" {
		opts = append(opts, searchclient.WithSort(sort))
	}

	resp, err := s.client.Search(ctx, q, opts...)
	if err != nil {
		return nil, err
	}

	return toDocs(resp), nil
}

func pageOptions(page Page) []searchclient.SearchOption {
	var opts []searchclient.SearchOption

	if page.Limit > 0 {
		opts = append(opts, searchclient.WithRows(page.Limit))
	}

	if page.Offset > 0 {
		opts = append(opts, searchclient.WithStart(page.Offset))
	}

	return opts
}

func toDocs(resp *searchclient.SearchResponse) []*document.LegalDocument {
	out := make([]*document.LegalDocument, 0, len(resp.Response.Docs))

	for i := range resp.Response.Docs {
		out = append(out, fromIndexedDocument(&resp.Response.Docs[i]))
	}

	return out
}

// normalizeGerman applies Unicode NFC normalization so umlauts and ß
// entered in decomposed form (e.g. combining diaeresis) index identically
// to their precomposed equivalents before the German-language analyzer
// sees them.
func normalizeGerman(s string) string {
	return norm.NFC.String(s)
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func formatSolrTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

func isNotFound(err error) bool {
	return errors.Is(err, searchclient.ErrNotFound)
}

var _ Repository = (*SearchStore)(nil)
