package crawl

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/legaldocml-crawler/internal/document"
	"github.com/lueurxax/legaldocml-crawler/internal/downloader"
	"github.com/lueurxax/legaldocml-crawler/internal/sitemap"
	"github.com/lueurxax/legaldocml-crawler/internal/store"
)

const minimalDoc = `<?xml version="1.0"?><judgment xmlns="http://docs.oasis-open.org/legaldocml/ns/akn/3.0"><judgmentBody><p>content</p></judgmentBody></judgment>`

// newFixture wires a single-leaf sitemap containing one entry
// (KARE500041892) behind an httptest server, plus an orchestrator backed
// by a fresh archive-only store.
func newFixture(t *testing.T) (orch *Orchestrator, archive *store.ArchiveStore, srvURL string) {
	t.Helper()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/jportal/docs/eclicrawler/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<sitemapindex><sitemap><loc>` + srv.URL + `/leaf.xml</loc></sitemap></sitemapindex>`))
	})
	mux.HandleFunc("/leaf.xml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<urlset><url><loc>` + srv.URL + `/doc?docid=KARE500041892</loc></url></urlset>`))
	})
	mux.HandleFunc("/doc", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(minimalDoc))
	})

	var err error

	archive, err = store.NewArchiveStore(t.TempDir())
	require.NoError(t, err)

	sitemapClient := sitemap.NewClient(srv.Client(), srv.URL, "test-agent", 0)
	dl := downloader.New(srv.Client(), archive, archive, downloader.Config{UserAgent: "test-agent"}, nil)

	return New(sitemapClient, dl, archive, nil), archive, srv.URL
}

func TestCrawlDiscoversAndDownloadsNewDocument(t *testing.T) {
	t.Parallel()

	orch, archive, _ := newFixture(t)

	result, err := orch.Crawl(t.Context(), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), false)
	require.NoError(t, err)

	assert.Equal(t, []string{"KARE500041892"}, result.NewDocs)
	assert.Empty(t, result.FailedDocs)

	doc, err := archive.FindByDocumentID(t.Context(), "KARE500041892")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "BAG", doc.Court)
}

func TestCrawlSkipsAlreadyDownloadedUnlessForced(t *testing.T) {
	t.Parallel()

	orch, archive, srvURL := newFixture(t)

	existing := &document.LegalDocument{
		DocumentID: "KARE500041892",
		Court:      "BAG",
		SourceURL:  srvURL + "/doc?docid=KARE500041892",
		Status:     document.StatusProcessed,
		CrawledAt:  time.Now().UTC(),
	}
	require.NoError(t, archive.Upsert(t.Context(), existing))

	result, err := orch.Crawl(t.Context(), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), false)
	require.NoError(t, err)

	assert.Empty(t, result.NewDocs)
	assert.Empty(t, result.UpdatedDocs)
}

func TestCrawlForceUpdateRefetchesExisting(t *testing.T) {
	t.Parallel()

	orch, archive, srvURL := newFixture(t)

	existing := &document.LegalDocument{
		DocumentID: "KARE500041892",
		Court:      "BAG",
		SourceURL:  srvURL + "/doc?docid=KARE500041892",
		Status:     document.StatusProcessed,
		CrawledAt:  time.Now().UTC(),
	}
	require.NoError(t, archive.Upsert(t.Context(), existing))

	result, err := orch.Crawl(t.Context(), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true)
	require.NoError(t, err)

	assert.Equal(t, []string{"KARE500041892"}, result.UpdatedDocs)
}

func TestCourtForDocumentIDMapsKnownPrefixes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "BAG", CourtForDocumentID("KARE500041892"))
	assert.Equal(t, "BGH", CourtForDocumentID("KORE1"))
	assert.Equal(t, "BSG", CourtForDocumentID("KSRE1"))
	assert.Equal(t, "BVerwG", CourtForDocumentID("WBRE1"))
	assert.Equal(t, "UNKNOWN", CourtForDocumentID("ZZZZ1"))
}

func TestRetryFailedResetsAndRetriesOldFailures(t *testing.T) {
	t.Parallel()

	orch, archive, srvURL := newFixture(t)

	failed := &document.LegalDocument{
		DocumentID: "KARE500041892",
		Court:      "BAG",
		SourceURL:  srvURL + "/doc?docid=KARE500041892",
		Status:     document.StatusFailed,
		CrawledAt:  time.Now().UTC().Add(-2 * time.Hour),
	}
	require.NoError(t, archive.Upsert(t.Context(), failed))

	succeeded, err := orch.RetryFailed(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, succeeded)
}
