package downloader

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/legaldocml-crawler/internal/document"
	"github.com/lueurxax/legaldocml-crawler/internal/store"
)

const sampleBody = `<?xml version="1.0" encoding="UTF-8"?>
<judgment xmlns="http://docs.oasis-open.org/legaldocml/ns/akn/3.0" name="judgment">
<meta>
<identification source="#attributor">
<FRBRWork><FRBRthis value="x"/><FRBRuri value="x"/><FRBRdate date="2024-03-01" name="decision"/><FRBRauthor href="#bgh"/></FRBRWork>
<FRBRExpression><FRBRthis value="x"/><FRBRuri value="x"/><FRBRdate date="2024-03-01" name="decision"/><FRBRauthor href="#bgh"/></FRBRExpression>
<FRBRManifestation><FRBRthis value="x"/><FRBRuri value="x"/><FRBRdate date="2024-03-01" name="decision"/><FRBRauthor href="#bgh"/></FRBRManifestation>
</identification>
</meta>
<judgmentBody>
<table><tr><td>Gericht</td><td>BGH</td></tr><tr><td>Aktenzeichen</td><td>IX ZR 1/24</td></tr><tr><td>ECLI</td><td>ECLI:DE:BGH:2024:010324IXZR0001.24.0</td></tr></table>
<h2>Leitsatz</h2><div>Ein Leitsatz.</div>
</judgmentBody>
</judgment>`

func newTestDownloader(t *testing.T, handler http.HandlerFunc) (*Downloader, *httptest.Server, *store.ArchiveStore) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	archive, err := store.NewArchiveStore(t.TempDir())
	require.NoError(t, err)

	cfg := Config{UserAgent: "test-agent", RateLimitMs: 0, DualBackend: true}
	d := New(srv.Client(), archive, archive, cfg, nil)

	return d, srv, archive
}

func TestDownloadSuccessUpsertsAndSetsStatus(t *testing.T) {
	t.Parallel()

	d, srv, _ := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(sampleBody))
	})

	doc := &document.LegalDocument{DocumentID: "KARE1", Court: "UNKNOWN", SourceURL: srv.URL, Status: document.StatusPending}

	result := d.Download(t.Context(), doc)

	require.True(t, result.Success)
	assert.NotEmpty(t, result.FilePath)
	assert.Equal(t, "BGH", doc.Court)
	assert.Equal(t, "IX ZR 1/24", doc.CaseNumber)
	assert.NotEmpty(t, doc.ECLI)
	assert.False(t, doc.CrawledAt.IsZero())
	assert.Contains(t, []document.Status{document.StatusDownloaded, document.StatusProcessed}, doc.Status)
}

func TestDownloadNon200MarksFailed(t *testing.T) {
	t.Parallel()

	d, srv, _ := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	doc := &document.LegalDocument{DocumentID: "KARE2", Court: "UNKNOWN", SourceURL: srv.URL}

	result := d.Download(t.Context(), doc)

	require.False(t, result.Success)
	require.Error(t, result.Err)
	assert.Equal(t, document.StatusFailed, doc.Status)
}

func TestDownloadStrictModeRejectsInvalidStructure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<not-akoma-ntoso>plain text</not-akoma-ntoso>"))
	}))
	t.Cleanup(srv.Close)

	archive, err := store.NewArchiveStore(t.TempDir())
	require.NoError(t, err)

	cfg := Config{UserAgent: "test-agent", StrictMode: true}
	d := New(srv.Client(), archive, archive, cfg, nil)

	doc := &document.LegalDocument{DocumentID: "KARE3", Court: "UNKNOWN", SourceURL: srv.URL}

	result := d.Download(t.Context(), doc)

	assert.False(t, result.Success)
	assert.Equal(t, document.StatusFailed, doc.Status)
}

func TestDownloadNormalizesURLWhitespace(t *testing.T) {
	t.Parallel()

	d, srv, _ := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleBody))
	})

	doc := &document.LegalDocument{DocumentID: "KARE4", Court: "UNKNOWN", SourceURL: " " + srv.URL + "\n"}

	result := d.Download(t.Context(), doc)

	require.True(t, result.Success)
	assert.Equal(t, srv.URL, doc.SourceURL)
}

func TestDownloadSerializesConcurrentCallsPerDocumentID(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex

	concurrent := 0
	maxConcurrent := 0

	d, srv, _ := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		concurrent++
		if concurrent > maxConcurrent {
			maxConcurrent = concurrent
		}
		mu.Unlock()

		_, _ = w.Write([]byte(sampleBody))

		mu.Lock()
		concurrent--
		mu.Unlock()
	})

	doc := &document.LegalDocument{DocumentID: "KARE5", Court: "UNKNOWN", SourceURL: srv.URL}

	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			d.Download(t.Context(), doc)
		}()
	}

	wg.Wait()

	assert.LessOrEqual(t, maxConcurrent, 1)
}

func TestDownloadSampleBodySucceeds(t *testing.T) {
	t.Parallel()

	d, srv, _ := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleBody))
	})

	doc := &document.LegalDocument{DocumentID: "KARE6", Court: "UNKNOWN", SourceURL: srv.URL}

	result := d.Download(t.Context(), doc)

	assert.True(t, result.Success)
}
