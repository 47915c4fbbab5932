package store

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lueurxax/legaldocml-crawler/internal/document"
)

// archiveRecord is the on-disk XML shape written for every document. It
// mirrors document.LegalDocument with xml tags so the archive remains a
// self-describing, independently readable copy of the store.
type archiveRecord struct {
	XMLName      xml.Name  `xml:"legalDocument"`
	DocumentID   string    `xml:"documentId"`
	ECLI         string    `xml:"ecli,omitempty"`
	Court        string    `xml:"court"`
	SourceURL    string    `xml:"sourceUrl"`
	DecisionDate time.Time `xml:"decisionDate"`
	CrawledAt    time.Time `xml:"crawledAt,omitempty"`
	Title        string    `xml:"title,omitempty"`
	Subject      string    `xml:"subject,omitempty"`
	Summary      string    `xml:"summary,omitempty"`
	CaseNumber   string    `xml:"caseNumber,omitempty"`
	DocumentType string    `xml:"documentType,omitempty"`
	Norms        string    `xml:"norms,omitempty"`
	Leitsatz     string    `xml:"leitsatz,omitempty"`
	Tenor        string    `xml:"tenor,omitempty"`
	Gruende      string    `xml:"gruende,omitempty"`
	FullText     string    `xml:"fullText,omitempty"`
	FilePath     string    `xml:"filePath,omitempty"`
	Status       string    `xml:"status"`
}

func toRecord(doc *document.LegalDocument) archiveRecord {
	return archiveRecord{
		DocumentID: doc.DocumentID, ECLI: doc.ECLI, Court: doc.Court,
		SourceURL: doc.SourceURL, DecisionDate: doc.DecisionDate, CrawledAt: doc.CrawledAt,
		Title: doc.Title, Subject: doc.Subject, Summary: doc.Summary,
		CaseNumber: doc.CaseNumber, DocumentType: doc.DocumentType, Norms: doc.Norms,
		Leitsatz: doc.Leitsatz, Tenor: doc.Tenor, Gruende: doc.Gruende,
		FullText: doc.FullText, FilePath: doc.FilePath, Status: string(doc.Status),
	}
}

func fromRecord(r archiveRecord) *document.LegalDocument {
	return &document.LegalDocument{
		DocumentID: r.DocumentID, ECLI: r.ECLI, Court: r.Court,
		SourceURL: r.SourceURL, DecisionDate: r.DecisionDate, CrawledAt: r.CrawledAt,
		Title: r.Title, Subject: r.Subject, Summary: r.Summary,
		CaseNumber: r.CaseNumber, DocumentType: r.DocumentType, Norms: r.Norms,
		Leitsatz: r.Leitsatz, Tenor: r.Tenor, Gruende: r.Gruende,
		FullText: r.FullText, FilePath: r.FilePath, Status: document.Status(r.Status),
	}
}

// ArchiveStore implements Repository by laying documents out on the
// filesystem as <basePath>/<court-lower>/<YYYY>/<MM>/<documentId>.xml. It
// also keeps an in-memory catalog so the richer query methods (by court,
// by status, by date range, full text) don't require a directory walk on
// every call; the catalog is seeded from disk at construction time.
type ArchiveStore struct {
	basePath string

	mu  sync.RWMutex
	all map[string]*document.LegalDocument
}

// NewArchiveStore builds an ArchiveStore rooted at basePath, scanning any
// existing archived documents into its in-memory catalog.
func NewArchiveStore(basePath string) (*ArchiveStore, error) {
	s := &ArchiveStore{basePath: basePath, all: make(map[string]*document.LegalDocument)}

	if err := s.loadExisting(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *ArchiveStore) loadExisting() error {
	if _, err := os.Stat(s.basePath); os.IsNotExist(err) {
		return nil
	}

	return filepath.WalkDir(s.basePath, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".xml") {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}

		var rec archiveRecord
		if unmarshalErr := xml.Unmarshal(data, &rec); unmarshalErr != nil {
			return nil
		}

		doc := fromRecord(rec)
		doc.FilePath = path
		s.all[doc.DocumentID] = doc

		return nil
	})
}

// PathFor returns the archive file path for a document.
func (s *ArchiveStore) PathFor(doc *document.LegalDocument) string {
	court := strings.ToLower(doc.Court)
	if court == "" {
		court = "unknown"
	}

	year, month := doc.DecisionDate.Year(), int(doc.DecisionDate.Month())
	if doc.DecisionDate.IsZero() {
		year, month = doc.CrawledAt.Year(), int(doc.CrawledAt.Month())
	}

	return filepath.Join(s.basePath, court, fmt.Sprintf("%04d", year), fmt.Sprintf("%02d", month), doc.DocumentID+".xml")
}

// Upsert writes the document's XML representation to its archive path,
// creating directories as needed and truncating any existing file.
func (s *ArchiveStore) Upsert(_ context.Context, doc *document.LegalDocument) error {
	defer observeOp("archive", "Upsert", time.Now())

	path := s.PathFor(doc)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	data, err := xml.MarshalIndent(toRecord(doc), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal archive record: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write archive file: %w", err)
	}

	doc.FilePath = path

	stored := *doc

	s.mu.Lock()
	s.all[doc.DocumentID] = &stored
	s.mu.Unlock()

	return nil
}

// WriteRawBody writes the raw fetched bytes to the archive path,
// independent of the structured Upsert record; the downloader calls this
// once per download in dual-backend mode.
func (s *ArchiveStore) WriteRawBody(_ context.Context, doc *document.LegalDocument, body []byte) (string, error) {
	path := s.PathFor(doc)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write raw archive file: %w", err)
	}

	return path, nil
}

func (s *ArchiveStore) FindByDocumentID(_ context.Context, id string) (*document.LegalDocument, error) {
	defer observeOp("archive", "FindByDocumentID", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.all[id]
	if !ok {
		return nil, nil
	}

	clone := *doc

	return &clone, nil
}

func (s *ArchiveStore) ExistsBySourceURL(_ context.Context, sourceURL string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, doc := range s.all {
		if doc.SourceURL == sourceURL {
			return true, nil
		}
	}

	return false, nil
}

func (s *ArchiveStore) snapshot(match func(*document.LegalDocument) bool) []*document.LegalDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*document.LegalDocument, 0)

	for _, doc := range s.all {
		if match(doc) {
			clone := *doc
			out = append(out, &clone)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })

	return out
}

func (s *ArchiveStore) FindByCourt(_ context.Context, court string, page Page) ([]*document.LegalDocument, error) {
	results := s.snapshot(func(d *document.LegalDocument) bool { return d.Court == court })
	return paginate(results, page), nil
}

func (s *ArchiveStore) FindByStatus(_ context.Context, status document.Status, page Page) ([]*document.LegalDocument, error) {
	results := s.snapshot(func(d *document.LegalDocument) bool { return d.Status == status })
	return paginate(results, page), nil
}

func (s *ArchiveStore) FindByDateRange(_ context.Context, start, end time.Time, page Page) ([]*document.LegalDocument, error) {
	results := s.snapshot(func(d *document.LegalDocument) bool {
		return !d.DecisionDate.Before(start) && !d.DecisionDate.After(end)
	})

	sort.Slice(results, func(i, j int) bool { return results[i].DecisionDate.Before(results[j].DecisionDate) })

	return paginate(results, page), nil
}

func (s *ArchiveStore) FindByECLI(_ context.Context, ecli string) (*document.LegalDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, doc := range s.all {
		if doc.ECLI == ecli {
			clone := *doc
			return &clone, nil
		}
	}

	return nil, nil
}

func (s *ArchiveStore) FindByCrawledAfter(_ context.Context, after time.Time, page Page) ([]*document.LegalDocument, error) {
	results := s.snapshot(func(d *document.LegalDocument) bool { return d.CrawledAt.After(after) })

	sort.Slice(results, func(i, j int) bool { return results[i].CrawledAt.Before(results[j].CrawledAt) })

	return paginate(results, page), nil
}

func (s *ArchiveStore) FindRecent(_ context.Context, page Page) ([]*document.LegalDocument, error) {
	results := s.snapshot(func(*document.LegalDocument) bool { return true })

	sort.Slice(results, func(i, j int) bool { return results[i].CrawledAt.After(results[j].CrawledAt) })

	return paginate(results, page), nil
}

func (s *ArchiveStore) SearchText(_ context.Context, term string, page Page) ([]*document.LegalDocument, error) {
	defer observeOp("archive", "SearchText", time.Now())

	term = strings.ToLower(term)

	results := s.snapshot(func(d *document.LegalDocument) bool {
		return strings.Contains(strings.ToLower(d.FullText), term) ||
			strings.Contains(strings.ToLower(d.Title), term) ||
			strings.Contains(strings.ToLower(d.Summary), term)
	})

	return paginate(results, page), nil
}

func (s *ArchiveStore) CountByCourt(_ context.Context, court string) (int, error) {
	return len(s.snapshot(func(d *document.LegalDocument) bool { return d.Court == court })), nil
}

func (s *ArchiveStore) CountByStatus(_ context.Context, status document.Status) (int, error) {
	return len(s.snapshot(func(d *document.LegalDocument) bool { return d.Status == status })), nil
}

func (s *ArchiveStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.all), nil
}

func (s *ArchiveStore) FindFailedForRetry(_ context.Context, olderThan time.Time) ([]*document.LegalDocument, error) {
	results := s.snapshot(func(d *document.LegalDocument) bool {
		return d.Status == document.StatusFailed && d.CrawledAt.Before(olderThan)
	})

	return results, nil
}

func (s *ArchiveStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	doc, ok := s.all[id]
	delete(s.all, id)
	s.mu.Unlock()

	if !ok {
		return nil
	}

	if err := os.Remove(s.PathFor(doc)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove archive file: %w", err)
	}

	return nil
}

func (s *ArchiveStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	s.all = make(map[string]*document.LegalDocument)
	s.mu.Unlock()

	if err := os.RemoveAll(s.basePath); err != nil {
		return fmt.Errorf("remove archive root: %w", err)
	}

	return os.MkdirAll(s.basePath, 0o755)
}

func paginate(docs []*document.LegalDocument, page Page) []*document.LegalDocument {
	offset := page.Offset
	if offset < 0 || offset > len(docs) {
		offset = 0
	}

	docs = docs[offset:]

	if page.Limit > 0 && page.Limit < len(docs) {
		docs = docs[:page.Limit]
	}

	return docs
}

var _ Repository = (*ArchiveStore)(nil)
