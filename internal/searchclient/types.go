// Package searchclient provides a REST client for the Solr-compatible document
// search index used as one of the two Document Store backends: document
// indexing with optimistic locking, atomic partial updates, and
// functional-option full-text search.
package searchclient

import "time"

// Config holds configuration for the Solr client.
type Config struct {
	// Enabled is not consulted by New: the client is enabled exactly when
	// BaseURL is non-empty.
	Enabled bool
	// BaseURL is the Solr collection URL, e.g., "http://solr:8983/solr/documents".
	BaseURL string
	// Timeout is the HTTP request timeout.
	Timeout time.Duration
	// MaxResults is the default maximum number of search results.
	MaxResults int
}

// SearchResponse represents the Solr search response.
type SearchResponse struct {
	Response     ResponseBody         `json:"response"`
	FacetCounts  *FacetCounts         `json:"facet_counts,omitempty"`
	Highlighting map[string]Highlight `json:"highlighting,omitempty"`
}

// ResponseBody contains the main response data.
type ResponseBody struct {
	NumFound int        `json:"numFound"` //nolint:tagliatelle // Solr API field name
	Start    int        `json:"start"`
	Docs     []Document `json:"docs"`
}

// FacetCounts contains facet results.
type FacetCounts struct {
	FacetFields map[string][]interface{} `json:"facet_fields,omitempty"`
}

// Highlight contains highlighted snippets for a document.
type Highlight map[string][]string

// Document represents one indexed legal document. Field names mirror the
// search backend's indexed field set in the document store contract.
type Document struct {
	ID      string `json:"id"`
	Version int64  `json:"_version_,omitempty"` //nolint:tagliatelle // Solr internal field name

	DocumentID     string    `json:"document_id"`
	Court          string    `json:"court,omitempty"`
	ECLIIdentifier string    `json:"ecli_identifier,omitempty"`
	SourceURL      string    `json:"source_url,omitempty"`
	Title          string    `json:"title,omitempty"`
	Summary        string    `json:"summary,omitempty"`
	FullText       string    `json:"full_text,omitempty"`
	CaseNumber     string    `json:"case_number,omitempty"`
	DocumentType   string    `json:"document_type,omitempty"`
	DecisionDate   time.Time `json:"decision_date,omitempty"`
	CrawledAt      time.Time `json:"crawled_at,omitempty"`
	IndexedAt      time.Time `json:"indexed_at,omitempty"`
	Status         string    `json:"status,omitempty"`
	FilePath       string    `json:"file_path,omitempty"`
	Year           int       `json:"year,omitempty"`
	Month          int       `json:"month,omitempty"`
	Leitsatz       string    `json:"leitsatz,omitempty"`
	Tenor          string    `json:"tenor,omitempty"`
	Gruende        string    `json:"gruende,omitempty"`

	// Language-specific dynamic fields populated during indexing for
	// German-aware analysis (normalization, light stemming, stopwords).
	TitleDE    string `json:"title_de,omitempty"`
	FullTextDE string `json:"full_text_de,omitempty"`
}

// IndexDocument is a simplified document for indexing.
// It uses interface{} to allow flexible field population.
type IndexDocument map[string]interface{}

// NewIndexDocument creates a new IndexDocument with the given ID.
func NewIndexDocument(id string) IndexDocument {
	return IndexDocument{
		"id": id,
	}
}

// SetField sets a field on the document.
func (d IndexDocument) SetField(name string, value interface{}) IndexDocument {
	d[name] = value
	return d
}

// AtomicUpdate represents an atomic update operation.
type AtomicUpdate struct {
	ID     string                 `json:"id"`
	Fields map[string]UpdateField `json:"-"`
}

// UpdateField represents a single field update operation.
type UpdateField struct {
	Set interface{} `json:"set,omitempty"`
	Add interface{} `json:"add,omitempty"`
	Inc interface{} `json:"inc,omitempty"`
}

// DocumentStatus mirrors internal/document.Status for the fields stored
// in the search index.
const (
	DocumentStatusPending    = "PENDING"
	DocumentStatusDownloaded = "DOWNLOADED"
	DocumentStatusProcessed  = "PROCESSED"
	DocumentStatusFailed     = "FAILED"
)
