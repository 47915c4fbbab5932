package bulk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/legaldocml-crawler/internal/db"
)

// Repository persists Progress records.
type Repository interface {
	Create(ctx context.Context, p *Progress) error
	Save(ctx context.Context, p *Progress) error
	// SaveControlFlags persists only the pause/cancel latches, so a
	// Pause/Resume/Cancel call never clobbers fields a concurrently
	// running campaign is writing through Save.
	SaveControlFlags(ctx context.Context, operationID string, pauseRequested, cancelRequested bool) error
	Get(ctx context.Context, operationID string) (*Progress, error)
	ListActive(ctx context.Context) ([]*Progress, error)
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Progress, error)
	DeleteOlderThan(ctx context.Context, statuses []Status, cutoff time.Time) (int, error)
}

// PostgresRepository implements Repository directly over pgx, without a
// generated query layer: the bulk campaign schema is small and changes
// rarely enough that hand-written SQL stays easy to audit.
type PostgresRepository struct {
	db *db.DB
}

// NewPostgresRepository wraps an existing connection pool.
func NewPostgresRepository(database *db.DB) *PostgresRepository {
	return &PostgresRepository{db: database}
}

func (r *PostgresRepository) Create(ctx context.Context, p *Progress) error {
	if p.OperationID == "" {
		p.OperationID = uuid.NewString()
	}

	now := time.Now().UTC()
	p.StartedAt = now
	p.UpdatedAt = now

	processedDates, err := marshalDates(p.ProcessedDates)
	if err != nil {
		return fmt.Errorf("marshal processed dates: %w", err)
	}

	failedDates, err := marshalDates(p.FailedDates)
	if err != nil {
		return fmt.Errorf("marshal failed dates: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO bulk_crawl_progress (
			operation_id, kind, status, range_start, range_end, current_date_cursor,
			rate_limit_ms, max_concurrent_downloads, estimated_total_documents,
			documents_processed, documents_failed, processed_dates, failed_dates,
			retry_count, rate_per_minute, pause_requested, cancel_requested,
			estimated_completion_at, error_message, started_at, completed_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		toUUID(p.OperationID), string(p.Kind), string(p.Status),
		toDate(p.RangeStart), toDate(p.RangeEnd), toDate(p.CurrentDateCursor),
		p.Config.RateLimitMs, p.Config.MaxConcurrentDownloads, p.EstimatedTotalDocuments,
		p.DocumentsProcessed, p.DocumentsFailed, processedDates, failedDates,
		p.RetryCount, p.RatePerMinute, p.PauseRequested, p.CancelRequested,
		toTimestamptz(p.EstimatedCompletionAt), toText(p.ErrorMessage),
		p.StartedAt, toTimestamptz(p.CompletedAt), p.UpdatedAt,
	)

	return err
}

func (r *PostgresRepository) Save(ctx context.Context, p *Progress) error {
	p.UpdatedAt = time.Now().UTC()

	processedDates, err := marshalDates(p.ProcessedDates)
	if err != nil {
		return fmt.Errorf("marshal processed dates: %w", err)
	}

	failedDates, err := marshalDates(p.FailedDates)
	if err != nil {
		return fmt.Errorf("marshal failed dates: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		UPDATE bulk_crawl_progress SET
			status = $2, current_date_cursor = $3, estimated_total_documents = $4,
			documents_processed = $5, documents_failed = $6, processed_dates = $7,
			failed_dates = $8, retry_count = $9, rate_per_minute = $10,
			estimated_completion_at = $11,
			error_message = $12, completed_at = $13, updated_at = $14
		WHERE operation_id = $1`,
		toUUID(p.OperationID), string(p.Status), toDate(p.CurrentDateCursor),
		p.EstimatedTotalDocuments, p.DocumentsProcessed, p.DocumentsFailed,
		processedDates, failedDates, p.RetryCount, p.RatePerMinute,
		toTimestamptz(p.EstimatedCompletionAt), toText(p.ErrorMessage),
		toTimestamptz(p.CompletedAt), p.UpdatedAt,
	)

	return err
}

// SaveControlFlags persists a Pause/Resume/Cancel request without touching
// the columns a running campaign's own Save call is writing concurrently.
func (r *PostgresRepository) SaveControlFlags(ctx context.Context, operationID string, pauseRequested, cancelRequested bool) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE bulk_crawl_progress SET
			pause_requested = $2, cancel_requested = $3, updated_at = $4
		WHERE operation_id = $1`,
		toUUID(operationID), pauseRequested, cancelRequested, time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, operationID string) (*Progress, error) {
	row := r.db.Pool.QueryRow(ctx, selectColumns+` WHERE operation_id = $1`, toUUID(operationID))

	p, err := scanProgress(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}

		return nil, err
	}

	return p, nil
}

func (r *PostgresRepository) ListActive(ctx context.Context) ([]*Progress, error) {
	return r.ListByStatus(ctx, StatusInitializing, StatusDiscovering, StatusCrawling, StatusPaused, StatusResuming)
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, statuses ...Status) ([]*Progress, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	rows, err := r.db.Pool.Query(ctx, selectColumns+` WHERE status = ANY($1) ORDER BY started_at ASC`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Progress

	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, p)
	}

	return out, rows.Err()
}

func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, statuses []Status, cutoff time.Time) (int, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	tag, err := r.db.Pool.Exec(ctx, `
		DELETE FROM bulk_crawl_progress WHERE status = ANY($1) AND completed_at < $2`,
		names, cutoff,
	)
	if err != nil {
		return 0, err
	}

	return int(tag.RowsAffected()), nil
}

const selectColumns = `
	SELECT operation_id, kind, status, range_start, range_end, current_date_cursor,
		rate_limit_ms, max_concurrent_downloads, estimated_total_documents,
		documents_processed, documents_failed, processed_dates, failed_dates,
		retry_count, rate_per_minute, pause_requested, cancel_requested,
		estimated_completion_at, error_message, started_at, completed_at, updated_at
	FROM bulk_crawl_progress`

type scannable interface {
	Scan(dest ...any) error
}

func scanProgress(row scannable) (*Progress, error) {
	var (
		operationID, kind, status           string
		rangeStart, rangeEnd, cursor        pgtype.Date
		rateLimitMs, maxConcurrentDownloads int
		estTotal, processed, failed         int64
		processedDatesRaw, failedDatesRaw   []byte
		retryCount                          int
		ratePerMinute                       float64
		pauseRequested, cancelRequested     bool
		eta                                 pgtype.Timestamptz
		errMsg                              pgtype.Text
		startedAt                           time.Time
		completedAt                         pgtype.Timestamptz
		updatedAt                           time.Time
	)

	if err := row.Scan(
		&operationID, &kind, &status, &rangeStart, &rangeEnd, &cursor,
		&rateLimitMs, &maxConcurrentDownloads, &estTotal,
		&processed, &failed, &processedDatesRaw, &failedDatesRaw,
		&retryCount, &ratePerMinute, &pauseRequested, &cancelRequested,
		&eta, &errMsg, &startedAt, &completedAt, &updatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan bulk_crawl_progress: %w", err)
	}

	processedDates, err := unmarshalDates(processedDatesRaw)
	if err != nil {
		return nil, fmt.Errorf("unmarshal processed dates: %w", err)
	}

	failedDates, err := unmarshalDates(failedDatesRaw)
	if err != nil {
		return nil, fmt.Errorf("unmarshal failed dates: %w", err)
	}

	p := &Progress{
		OperationID:             operationID,
		Kind:                    Kind(kind),
		Status:                  Status(status),
		RangeStart:              fromDate(rangeStart),
		RangeEnd:                fromDate(rangeEnd),
		CurrentDateCursor:       fromDate(cursor),
		Config:                  Config{RateLimitMs: rateLimitMs, MaxConcurrentDownloads: maxConcurrentDownloads},
		EstimatedTotalDocuments: estTotal,
		DocumentsProcessed:      processed,
		DocumentsFailed:         failed,
		ProcessedDates:          processedDates,
		FailedDates:             failedDates,
		RetryCount:              retryCount,
		RatePerMinute:           ratePerMinute,
		PauseRequested:          pauseRequested,
		CancelRequested:         cancelRequested,
		EstimatedCompletionAt:   fromTimestamptz(eta),
		ErrorMessage:            errMsg.String,
		StartedAt:               startedAt,
		CompletedAt:             fromTimestamptz(completedAt),
		UpdatedAt:               updatedAt,
	}

	return p, nil
}

// marshalDates encodes a date list for the jsonb processed_dates/failed_dates
// columns. Dates are stored as RFC 3339 midnight-UTC strings so they survive
// the round trip through JSON without losing the UTC location scanProgress
// and remainingDates rely on for map-key equality.
func marshalDates(dates []time.Time) ([]byte, error) {
	if len(dates) == 0 {
		return []byte(`[]`), nil
	}

	strs := make([]string, len(dates))
	for i, d := range dates {
		strs[i] = d.UTC().Format(time.RFC3339)
	}

	return json.Marshal(strs)
}

func unmarshalDates(raw []byte) ([]time.Time, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var strs []string
	if err := json.Unmarshal(raw, &strs); err != nil {
		return nil, err
	}

	if len(strs) == 0 {
		return nil, nil
	}

	dates := make([]time.Time, len(strs))

	for i, s := range strs {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, err
		}

		dates[i] = t.UTC()
	}

	return dates, nil
}

func toUUID(id string) pgtype.UUID {
	u, err := uuid.Parse(id)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}

	return pgtype.UUID{Bytes: u, Valid: true}
}

func toText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func toTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}

func fromTimestamptz(t pgtype.Timestamptz) time.Time {
	if !t.Valid {
		return time.Time{}
	}

	return t.Time
}

func toDate(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{Valid: false}
	}

	return pgtype.Date{Time: t, Valid: true}
}

func fromDate(d pgtype.Date) time.Time {
	if !d.Valid {
		return time.Time{}
	}

	return d.Time
}
