// Package downloader implements the fetch-validate-extract-persist
// pipeline that turns one sitemap entry into a fully processed
// LegalDocument: rate-limited HTTP GET, XML sanitization/validation,
// best-effort field extraction, and a dual-backend persist.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lueurxax/legaldocml-crawler/internal/document"
	"github.com/lueurxax/legaldocml-crawler/internal/extract"
	observability "github.com/lueurxax/legaldocml-crawler/internal/health"
	"github.com/lueurxax/legaldocml-crawler/internal/store"
	"github.com/lueurxax/legaldocml-crawler/internal/validation"
)

const maxBodySize = 25 * 1024 * 1024

// ErrFetch is the sentinel wrapping any transport-level failure: a
// non-200 response, timeout, or connection error. It is retryable after
// the configured backoff window.
var ErrFetch = errors.New("download fetch error")

// Config controls pacing and validation strictness.
type Config struct {
	UserAgent   string
	RateLimitMs int
	StrictMode  bool
	// AsyncValidate, when StrictMode is false, upserts the document as
	// soon as it is fetched and extracted and runs validate() in the
	// background, applying the report to the stored document once it
	// finishes instead of making the caller wait for it. Ignored under
	// StrictMode, which always gates on the report before persisting.
	AsyncValidate bool
	// ValidationTimeout bounds how long validate() may run before its
	// result is discarded as a timeout; zero disables the bound.
	ValidationTimeout time.Duration
	Sanitize          validation.Config
	DualBackend       bool
}

// Result is the outcome of one Download call.
type Result struct {
	Document   *document.LegalDocument
	XMLContent []byte
	FilePath   string
	Validation validation.Report
	Success    bool
	Err        error
}

// Downloader fetches, validates, extracts and persists one document at a
// time, guaranteeing at most one concurrent build per documentId via a
// keyed mutex.
type Downloader struct {
	httpClient *http.Client
	repo       store.Repository
	archive    *store.ArchiveStore
	cfg        Config
	logger     *zerolog.Logger
	limiter    *rate.Limiter

	docLocks sync.Map // documentId -> *sync.Mutex
}

// New builds a Downloader. archive may be nil when the store is not
// running in dual-backend mode; in that case DualBackend in Config should
// be false.
func New(httpClient *http.Client, repo store.Repository, archive *store.ArchiveStore, cfg Config, logger *zerolog.Logger) *Downloader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimitMs > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Duration(cfg.RateLimitMs)*time.Millisecond), 1)
	}

	return &Downloader{httpClient: httpClient, repo: repo, archive: archive, cfg: cfg, logger: logger, limiter: limiter}
}

func (d *Downloader) lockFor(id string) *sync.Mutex {
	lock, _ := d.docLocks.LoadOrStore(id, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Download runs the full pipeline against doc, mutating it in place and
// returning a Result. It recovers from panics during extraction so a
// single malformed document never takes down a batch.
func (d *Downloader) Download(ctx context.Context, doc *document.LegalDocument) (result Result) {
	lock := d.lockFor(doc.DocumentID)
	lock.Lock()
	defer lock.Unlock()

	defer func() {
		if r := recover(); r != nil {
			if d.logger != nil {
				d.logger.Error().Interface("panic", r).Str("documentId", doc.DocumentID).Msg("recovered from panic during download")
			}

			doc.Status = document.StatusFailed
			observability.DocumentsFailed.WithLabelValues(doc.Court, "panic").Inc()
			result = Result{Document: doc, Success: false, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	return d.download(ctx, doc)
}

func (d *Downloader) download(ctx context.Context, doc *document.LegalDocument) Result {
	start := time.Now()

	if err := d.limiter.Wait(ctx); err != nil {
		return d.fail(doc, fmt.Errorf("rate limit wait: %w", err), start)
	}

	doc.SourceURL = normalizeURL(doc.SourceURL)

	body, err := d.fetch(ctx, doc.SourceURL)
	if err != nil {
		return d.fail(doc, err, start)
	}

	if d.asyncValidate() {
		d.applyExtraction(doc, body)
		doc.CrawledAt = time.Now().UTC()

		return d.downloadAsync(ctx, doc, body, start)
	}

	report := d.validate(ctx, body)
	observeValidation(report)

	if d.cfg.StrictMode && !report.Valid {
		doc.Status = document.StatusFailed

		if upsertErr := d.repo.Upsert(ctx, doc); upsertErr != nil && d.logger != nil {
			d.logger.Error().Err(upsertErr).Str("documentId", doc.DocumentID).Msg("store write failed after validation rejection")
		}

		observability.DocumentsFailed.WithLabelValues(doc.Court, "validation").Inc()
		observability.DownloadDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())

		return Result{Document: doc, XMLContent: body, Validation: report, Success: false, Err: errValidationStrict}
	}

	d.applyExtraction(doc, body)

	if len(report.ECLIIdentifiers) > 0 && doc.ECLI == "" {
		doc.ECLI = report.ECLIIdentifiers[0]
	}

	doc.CrawledAt = time.Now().UTC()

	if report.Valid {
		doc.Status = document.StatusProcessed
	} else {
		doc.Status = document.StatusDownloaded
	}

	if err := d.repo.Upsert(ctx, doc); err != nil {
		return d.fail(doc, fmt.Errorf("store upsert: %w", err), start)
	}

	filePath, err := d.writeArchiveBody(ctx, doc, body)
	if err != nil && d.logger != nil {
		d.logger.Error().Err(err).Str("documentId", doc.DocumentID).Msg("archive raw body write failed")
	}

	observability.DocumentsDownloaded.WithLabelValues(doc.Court).Inc()
	observability.DownloadDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())

	return Result{
		Document:   doc,
		XMLContent: body,
		FilePath:   filePath,
		Validation: report,
		Success:    true,
	}
}

// asyncValidate reports whether validation should run in the background.
// StrictMode always gates synchronously on the report, regardless of the
// flag.
func (d *Downloader) asyncValidate() bool {
	return !d.cfg.StrictMode && d.cfg.AsyncValidate
}

// downloadAsync upserts doc immediately with a provisional Downloaded
// status, then spawns validate() in the background and re-upserts once a
// verdict is available, so the caller never waits on validation latency.
func (d *Downloader) downloadAsync(ctx context.Context, doc *document.LegalDocument, body []byte, start time.Time) Result {
	doc.Status = document.StatusDownloaded

	if err := d.repo.Upsert(ctx, doc); err != nil {
		return d.fail(doc, fmt.Errorf("store upsert: %w", err), start)
	}

	filePath, err := d.writeArchiveBody(ctx, doc, body)
	if err != nil && d.logger != nil {
		d.logger.Error().Err(err).Str("documentId", doc.DocumentID).Msg("archive raw body write failed")
	}

	go d.applyValidationPostHoc(doc.DocumentID, body)

	observability.DocumentsDownloaded.WithLabelValues(doc.Court).Inc()
	observability.DownloadDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())

	return Result{Document: doc, XMLContent: body, FilePath: filePath, Success: true}
}

// applyValidationPostHoc runs validate() outside the caller's request
// lifetime and reconciles its verdict into the stored document, keyed by
// documentId so it serializes against any other Download of the same
// document. It uses a background context since the originating request's
// ctx may already be gone by the time validation finishes.
func (d *Downloader) applyValidationPostHoc(documentID string, body []byte) {
	lock := d.lockFor(documentID)
	lock.Lock()
	defer lock.Unlock()

	ctx := context.Background()

	report := d.validate(ctx, body)
	observeValidation(report)

	doc, err := d.repo.FindByDocumentID(ctx, documentID)
	if err != nil || doc == nil {
		if d.logger != nil {
			d.logger.Error().Err(err).Str("documentId", documentID).Msg("async validation could not reload document")
		}

		return
	}

	if len(report.ECLIIdentifiers) > 0 && doc.ECLI == "" {
		doc.ECLI = report.ECLIIdentifiers[0]
	}

	if report.Valid {
		doc.Status = document.StatusProcessed
	}

	if err := d.repo.Upsert(ctx, doc); err != nil && d.logger != nil {
		d.logger.Error().Err(err).Str("documentId", documentID).Msg("async validation re-upsert failed")
	}
}

func (d *Downloader) writeArchiveBody(ctx context.Context, doc *document.LegalDocument, body []byte) (string, error) {
	if !d.cfg.DualBackend || d.archive == nil {
		return "", nil
	}

	return d.archive.WriteRawBody(ctx, doc, body)
}

var errValidationStrict = errors.New("document failed strict validation")

func (d *Downloader) fail(doc *document.LegalDocument, err error, start time.Time) Result {
	doc.Status = document.StatusFailed

	observability.DocumentsFailed.WithLabelValues(doc.Court, "fetch").Inc()
	observability.DownloadDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())

	return Result{Document: doc, Success: false, Err: err}
}

func observeValidation(report validation.Report) {
	result := "valid"
	if !report.Valid {
		result = "invalid"
	}

	observability.ValidationResults.WithLabelValues(result).Inc()
}

func (d *Downloader) validate(ctx context.Context, body []byte) validation.Report {
	mode := validation.Strict
	if !d.cfg.StrictMode {
		mode = validation.Lenient
	}

	cfg := d.cfg.Sanitize
	cfg.Mode = mode

	if d.cfg.ValidationTimeout <= 0 {
		return validation.Validate(body, cfg)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.ValidationTimeout)
	defer cancel()

	resultCh := make(chan validation.Report, 1)

	go func() { resultCh <- validation.Validate(body, cfg) }()

	select {
	case report := <-resultCh:
		return report
	case <-ctx.Done():
		return validation.Report{Valid: false, Errors: []string{"validation timed out"}}
	}
}

func (d *Downloader) applyExtraction(doc *document.LegalDocument, body []byte) {
	defer func() {
		if r := recover(); r != nil && d.logger != nil {
			d.logger.Debug().Interface("panic", r).Str("documentId", doc.DocumentID).Msg("extraction failed, leaving fields unset")
		}
	}()

	extracted := extract.Extract(body)

	if extracted.Title != "" {
		doc.Title = extracted.Title
	}

	if extracted.Court != "" && extracted.Court != "UNKNOWN" {
		doc.Court = extracted.Court
	}

	if !extracted.DecisionDate.IsZero() {
		doc.DecisionDate = extracted.DecisionDate
	}

	if extracted.CaseNumber != "" {
		doc.CaseNumber = extracted.CaseNumber
	}

	if extracted.ECLI != "" {
		doc.ECLI = extracted.ECLI
	}

	if extracted.DocumentType != "" {
		doc.DocumentType = extracted.DocumentType
	}

	if extracted.Norms != "" {
		doc.Norms = extracted.Norms
	}

	if extracted.Subject != "" {
		doc.Subject = extracted.Subject
	}

	if extracted.FullText != "" {
		doc.FullText = extracted.FullText
	}

	if extracted.Leitsatz != "" {
		doc.Leitsatz = extracted.Leitsatz
	}

	if extracted.Tenor != "" {
		doc.Tenor = extracted.Tenor
	}

	if extracted.Gruende != "" {
		doc.Gruende = extracted.Gruende
	}
}

func (d *Downloader) fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", d.cfg.UserAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}

	return body, nil
}

// normalizeURL strips surrounding whitespace and embedded newlines.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, "\n", "")
	raw = strings.ReplaceAll(raw, "\r", "")

	return raw
}
