package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"imagesynth/imagegen"
	"imagesynth/logging"
)

// Attempt status values stored in provider_attempts.status.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DefaultQueryLimit applies when a query asks for zero or fewer rows.
const DefaultQueryLimit = 50

// MaxQueryLimit bounds any single history query.
const MaxQueryLimit = 500

// AttemptRecord is one row of provider_attempts.
type AttemptRecord struct {
	ID            int64         `json:"id"`
	CorrelationID string        `json:"correlation_id"`
	Role          imagegen.Role `json:"role"`
	Provider      string        `json:"provider"`
	Model         string        `json:"model"`
	Status        string        `json:"status"`
	Category      string        `json:"category,omitempty"`
	ErrorMessage  string        `json:"error,omitempty"`
	Seed          int64         `json:"seed"`
	DurationMS    int64         `json:"duration_ms"`
	CreatedAt     time.Time     `json:"created_at"`
}

// AttemptFromEntry converts an orchestrator attempt into a row.
func AttemptFromEntry(e imagegen.AttemptEntry) AttemptRecord {
	rec := AttemptRecord{
		CorrelationID: e.CorrelationID,
		Role:          e.Role,
		Provider:      e.Provider,
		Model:         e.Model,
		Status:        StatusSuccess,
		Seed:          e.Seed,
		DurationMS:    e.Duration.Milliseconds(),
		CreatedAt:     e.StartedAt,
	}
	if !e.Success {
		rec.Status = StatusError
		rec.Category = string(e.Category)
		rec.ErrorMessage = e.Message
	}
	return rec
}

// Repository reads and writes the attempt history. RecordAttempt queues
// writes on an AsyncWriter once StartAsync has been called; everything else
// is synchronous.
type Repository struct {
	db     *Database
	logger *logging.Logger
	now    func() time.Time

	writer *AsyncWriter[AttemptRecord]
	config AsyncWriterConfig
}

// NewRepository creates a Repository on db.
func NewRepository(db *Database, logger *logging.Logger) *Repository {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Repository{
		db:     db,
		logger: logger.Named("history"),
		now:    time.Now,
	}
}

// StartAsync starts the background writer used by RecordAttempt.
func (r *Repository) StartAsync(config AsyncWriterConfig) {
	if r.writer != nil {
		return
	}
	r.config = config
	r.writer = NewAsyncWriter(func(rec AttemptRecord) error {
		_, err := r.InsertAttempt(context.Background(), rec)
		return err
	}, func(rec AttemptRecord, err error) {
		r.logger.Warn("failed to record provider attempt",
			zap.String("correlation_id", rec.CorrelationID),
			zap.Error(err))
	}, config)
	r.writer.Start()
}

// Close flushes queued attempts. It does not close the Database.
func (r *Repository) Close() error {
	if r.writer == nil {
		return nil
	}
	timeout := r.config.DrainTimeout
	if timeout <= 0 {
		timeout = DefaultDrainTimeout
	}
	if !r.writer.Close(timeout) {
		return fmt.Errorf("timed out flushing %d queued attempts", r.writer.Pending())
	}
	return nil
}

// RecordAttempt implements imagegen.AttemptRecorder. It never blocks the
// caller: with the async writer running the row is queued, and a full queue
// drops the row with a warning. Without the writer the row is written inline
// and failures are only logged.
func (r *Repository) RecordAttempt(ctx context.Context, entry imagegen.AttemptEntry) {
	rec := AttemptFromEntry(entry)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}

	if r.writer != nil && r.writer.IsStarted() {
		if !r.writer.Write(rec) {
			r.logger.Warn("attempt history queue full, dropping entry",
				zap.String("correlation_id", rec.CorrelationID))
		}
		return
	}

	if _, err := r.InsertAttempt(ctx, rec); err != nil {
		r.logger.Warn("failed to record provider attempt",
			zap.String("correlation_id", rec.CorrelationID),
			zap.Error(err))
	}
}

// InsertAttempt writes rec and returns its id.
func (r *Repository) InsertAttempt(ctx context.Context, rec AttemptRecord) (int64, error) {
	conn, err := r.conn()
	if err != nil {
		return 0, err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}

	res, err := conn.ExecContext(ctx, `
		INSERT INTO provider_attempts (
			correlation_id, role, provider, model, status,
			category, error_message, seed, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CorrelationID,
		string(rec.Role),
		rec.Provider,
		rec.Model,
		rec.Status,
		nullString(rec.Category),
		nullString(rec.ErrorMessage),
		rec.Seed,
		rec.DurationMS,
		rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert provider attempt: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

const selectAttempts = `
	SELECT id, correlation_id, role, provider, model, status,
		   COALESCE(category, ''), COALESCE(error_message, ''),
		   seed, duration_ms, created_at
	FROM provider_attempts`

// QueryRecentAttempts returns the newest attempts first.
func (r *Repository) QueryRecentAttempts(ctx context.Context, limit int) ([]AttemptRecord, error) {
	conn, err := r.conn()
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, selectAttempts+`
	ORDER BY created_at DESC, id DESC
	LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query provider attempts: %w", err)
	}
	return scanAttempts(rows)
}

// QueryByCorrelationID returns the attempts of one generate call in the order made.
func (r *Repository) QueryByCorrelationID(ctx context.Context, correlationID string) ([]AttemptRecord, error) {
	conn, err := r.conn()
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, selectAttempts+`
	WHERE correlation_id = ?
	ORDER BY created_at ASC, id ASC`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query provider attempts: %w", err)
	}
	return scanAttempts(rows)
}

// CountAttempts returns the number of stored attempts.
func (r *Repository) CountAttempts(ctx context.Context) (int64, error) {
	conn, err := r.conn()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM provider_attempts").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count provider attempts: %w", err)
	}
	return count, nil
}

// CategoryCounts returns the number of failed attempts per category since t.
func (r *Repository) CategoryCounts(ctx context.Context, since time.Time) (map[string]int64, error) {
	conn, err := r.conn()
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, `
		SELECT category, COUNT(*) FROM provider_attempts
		WHERE status = ? AND created_at >= ?
		GROUP BY category`, StatusError, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var category sql.NullString
		var n int64
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		counts[category.String] = n
	}
	return counts, rows.Err()
}

func (r *Repository) conn() (*sql.DB, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return r.db.conn()
}

func scanAttempts(rows *sql.Rows) ([]AttemptRecord, error) {
	defer rows.Close()

	records := []AttemptRecord{}
	for rows.Next() {
		var rec AttemptRecord
		var role string
		var createdAt int64
		if err := rows.Scan(
			&rec.ID,
			&rec.CorrelationID,
			&role,
			&rec.Provider,
			&rec.Model,
			&rec.Status,
			&rec.Category,
			&rec.ErrorMessage,
			&rec.Seed,
			&rec.DurationMS,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan provider attempt row: %w", err)
		}
		rec.Role = imagegen.Role(role)
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating provider attempt rows: %w", err)
	}
	return records, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultQueryLimit
	case limit > MaxQueryLimit:
		return MaxQueryLimit
	default:
		return limit
	}
}

// nullString stores empty strings as NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ imagegen.AttemptRecorder = (*Repository)(nil)
