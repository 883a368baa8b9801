package repository

import (
	"context"
	"time"

	"github.com/cadentj/interp-workbench/internal/models"
	"github.com/cadentj/interp-workbench/internal/store"
)

// SQLiteRepository implements Repository interface using SQLite
type SQLiteRepository struct {
	db        *store.DB
	jobRepo   JobRepositoryInterface
	eventRepo EventRepositoryInterface
}

func NewSQLiteRepository(db *store.DB) Repository {
	return &SQLiteRepository{
		db:        db,
		jobRepo:   &SQLiteJobRepository{db: db},
		eventRepo: &SQLiteEventRepository{db: db},
	}
}

func (r *SQLiteRepository) Job() JobRepositoryInterface {
	return r.jobRepo
}

func (r *SQLiteRepository) Event() EventRepositoryInterface {
	return r.eventRepo
}

// SQLiteJobRepository handles terminal-job persistence
type SQLiteJobRepository struct {
	db *store.DB
}

func (r *SQLiteJobRepository) LogJob(ctx context.Context, record *models.JobRecord) error {
	r.db.Job(
		record.Timestamp,
		record.JobID,
		record.TraceID,
		record.Kind,
		record.Status,
		record.Payload,
		record.Error,
		time.Duration(record.DurationMs)*time.Millisecond,
	)
	return nil
}

func (r *SQLiteJobRepository) GetJob(ctx context.Context, jobID string) (*models.JobRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT ts, job_id, trace_id, kind, status, payload, error, dur_ms FROM jobs WHERE job_id = ? ORDER BY id DESC LIMIT 1`,
		jobID)
	return scanJob(row)
}

func (r *SQLiteJobRepository) GetJobs(ctx context.Context, limit int) ([]*models.JobRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ts, job_id, trace_id, kind, status, payload, error, dur_ms FROM jobs ORDER BY id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.JobRecord
	for rows.Next() {
		record, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.JobRecord, error) {
	var record models.JobRecord
	var ts, durMs float64
	if err := row.Scan(&ts, &record.JobID, &record.TraceID, &record.Kind,
		&record.Status, &record.Payload, &record.Error, &durMs); err != nil {
		return nil, err
	}
	record.Timestamp = time.Unix(0, int64(ts*1e9))
	record.DurationMs = int64(durMs)
	return &record, nil
}

// SQLiteEventRepository handles event logging
type SQLiteEventRepository struct {
	db *store.DB
}

func (r *SQLiteEventRepository) LogEvent(ctx context.Context, level, code, msg string, meta map[string]interface{}) error {
	r.db.Event(level, code, msg, meta)
	return nil
}
