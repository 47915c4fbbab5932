package bulk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/legaldocml-crawler/internal/crawl"
	"github.com/lueurxax/legaldocml-crawler/internal/downloader"
	"github.com/lueurxax/legaldocml-crawler/internal/sitemap"
	"github.com/lueurxax/legaldocml-crawler/internal/store"
)

// fakeRepository is an in-memory Repository used so coordinator tests
// don't need a live Postgres instance.
type fakeRepository struct {
	mu   sync.Mutex
	rows map[string]*Progress
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{rows: make(map[string]*Progress)}
}

func (f *fakeRepository) Create(_ context.Context, p *Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p.OperationID == "" {
		p.OperationID = uuid.NewString()
	}

	p.StartedAt = time.Now().UTC()
	clone := *p
	f.rows[p.OperationID] = &clone

	return nil
}

func (f *fakeRepository) Save(_ context.Context, p *Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	clone := *p
	f.rows[p.OperationID] = &clone

	return nil
}

func (f *fakeRepository) SaveControlFlags(_ context.Context, operationID string, pauseRequested, cancelRequested bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.rows[operationID]
	if !ok {
		return ErrNotFound
	}

	p.PauseRequested = pauseRequested
	p.CancelRequested = cancelRequested

	return nil
}

func (f *fakeRepository) Get(_ context.Context, operationID string) (*Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.rows[operationID]
	if !ok {
		return nil, nil
	}

	clone := *p

	return &clone, nil
}

func (f *fakeRepository) ListActive(ctx context.Context) ([]*Progress, error) {
	return f.ListByStatus(ctx, StatusInitializing, StatusDiscovering, StatusCrawling, StatusPaused, StatusResuming)
}

func (f *fakeRepository) ListByStatus(_ context.Context, statuses ...Status) ([]*Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	want := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	var out []*Progress

	for _, p := range f.rows {
		if want[p.Status] {
			clone := *p
			out = append(out, &clone)
		}
	}

	return out, nil
}

func (f *fakeRepository) DeleteOlderThan(_ context.Context, statuses []Status, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	want := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	deleted := 0

	for id, p := range f.rows {
		if want[p.Status] && p.CompletedAt.Before(cutoff) {
			delete(f.rows, id)
			deleted++
		}
	}

	return deleted, nil
}

// newTestCoordinator wires a Coordinator against an httptest server that
// serves an empty sitemap index for every date, so campaigns run fast
// without any real documents to download.
func newTestCoordinator(t *testing.T, maxConcurrent int) (*Coordinator, *fakeRepository) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<sitemapindex></sitemapindex>`))
	}))
	t.Cleanup(srv.Close)

	archive, err := store.NewArchiveStore(t.TempDir())
	require.NoError(t, err)

	sitemapClient := sitemap.NewClient(srv.Client(), srv.URL, "test-agent", 0)
	dl := downloader.New(srv.Client(), archive, archive, downloader.Config{UserAgent: "test-agent"}, nil)
	orch := crawl.New(sitemapClient, dl, archive, nil)
	discovery := sitemap.NewDiscovery(sitemapClient, sitemap.DiscoveryConfig{})

	repo := newFakeRepository()

	return NewCoordinator(repo, orch, discovery, CoordinatorConfig{MaxConcurrentOperations: maxConcurrent}, nil), repo
}

func TestStartRunsCampaignToCompletion(t *testing.T) {
	t.Parallel()

	coord, repo := newTestCoordinator(t, 2)

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	id, err := coord.Start(t.Context(), KindRange, start, end, Config{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		p, _ := repo.Get(t.Context(), id)
		return p != nil && p.Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartFailsAtCapacity(t *testing.T) {
	t.Parallel()

	coord, _ := newTestCoordinator(t, 1)

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := coord.Start(t.Context(), KindRange, start, end, Config{})
	require.NoError(t, err)

	_, err = coord.Start(t.Context(), KindRange, start, end, Config{})
	assert.ErrorIs(t, err, ErrAtCapacity)
}

func TestCancelStopsRunningCampaign(t *testing.T) {
	t.Parallel()

	coord, repo := newTestCoordinator(t, 1)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	id, err := coord.Start(t.Context(), KindRange, start, end, Config{})
	require.NoError(t, err)

	require.NoError(t, coord.Cancel(t.Context(), id))

	require.Eventually(t, func() bool {
		p, _ := repo.Get(t.Context(), id)
		return p != nil && (p.Status == StatusCancelled || p.Status == StatusCompleted)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPauseResumeUnknownOperationReturnsNotFound(t *testing.T) {
	t.Parallel()

	coord, _ := newTestCoordinator(t, 1)

	assert.ErrorIs(t, coord.Pause(t.Context(), "does-not-exist"), ErrNotFound)
	assert.ErrorIs(t, coord.Resume(t.Context(), "does-not-exist"), ErrNotFound)
	assert.ErrorIs(t, coord.Cancel(t.Context(), "does-not-exist"), ErrNotFound)
}

func TestReapStuckFailsOldCampaigns(t *testing.T) {
	t.Parallel()

	coord, repo := newTestCoordinator(t, 1)

	stuck := &Progress{Status: StatusCrawling}
	require.NoError(t, repo.Create(t.Context(), stuck))

	repo.mu.Lock()
	repo.rows[stuck.OperationID].StartedAt = time.Now().UTC().Add(-5 * time.Hour)
	repo.mu.Unlock()

	reaped, err := coord.ReapStuck(t.Context(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	p, err := repo.Get(t.Context(), stuck.OperationID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, p.Status)
	assert.Equal(t, StuckErrorMessage, p.ErrorMessage)
}

func TestCleanupOldDeletesOldTerminalCampaigns(t *testing.T) {
	t.Parallel()

	coord, repo := newTestCoordinator(t, 1)

	old := &Progress{Status: StatusCompleted}
	require.NoError(t, repo.Create(t.Context(), old))
	repo.mu.Lock()
	repo.rows[old.OperationID].CompletedAt = time.Now().UTC().AddDate(0, 0, -40)
	repo.mu.Unlock()

	deleted, err := coord.CleanupOld(t.Context(), 30)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestReattachAllResumesPersistedPauseLatch(t *testing.T) {
	t.Parallel()

	coord, repo := newTestCoordinator(t, 2)

	paused := &Progress{
		Status:         StatusCrawling,
		Kind:           KindRange,
		RangeStart:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:       time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		PauseRequested: true,
	}
	require.NoError(t, repo.Create(t.Context(), paused))

	reattached, err := coord.ReattachAll(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, reattached)

	op := coord.lookup(paused.OperationID)
	require.NotNil(t, op)
	assert.True(t, op.pauseRequested.Load())

	require.NoError(t, coord.Resume(t.Context(), paused.OperationID))

	require.Eventually(t, func() bool {
		p, _ := repo.Get(t.Context(), paused.OperationID)
		return p != nil && p.Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPauseResumeCancelWithoutInMemoryEntryPersistToRepository(t *testing.T) {
	t.Parallel()

	coord, repo := newTestCoordinator(t, 2)

	detached := &Progress{Status: StatusPaused, Kind: KindRange}
	require.NoError(t, repo.Create(t.Context(), detached))

	require.Nil(t, coord.lookup(detached.OperationID))

	require.NoError(t, coord.Resume(t.Context(), detached.OperationID))

	p, err := repo.Get(t.Context(), detached.OperationID)
	require.NoError(t, err)
	assert.False(t, p.PauseRequested)

	require.NoError(t, coord.Cancel(t.Context(), detached.OperationID))

	p, err = repo.Get(t.Context(), detached.OperationID)
	require.NoError(t, err)
	assert.True(t, p.CancelRequested)
}

func TestRemainingDatesSkipsProcessedAndFailed(t *testing.T) {
	t.Parallel()

	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

	discovered := []time.Time{day(1), day(2), day(3), day(4)}
	processed := []time.Time{day(1), day(3)}
	failed := []time.Time{day(2)}

	remaining := remainingDates(discovered, processed, failed)
	assert.Equal(t, []time.Time{day(4)}, remaining)
}

func TestProgressDatesProcessedCombinesBothLists(t *testing.T) {
	t.Parallel()

	p := &Progress{
		ProcessedDates: []time.Time{time.Now(), time.Now()},
		FailedDates:    []time.Time{time.Now()},
	}

	assert.Equal(t, 3, p.DatesProcessed())
}
