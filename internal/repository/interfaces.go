package repository

import (
	"context"

	"github.com/cadentj/interp-workbench/internal/models"
)

// Repository aggregates all repository interfaces
type Repository interface {
	Job() JobRepositoryInterface
	Event() EventRepositoryInterface
}

// JobRepositoryInterface defines terminal-job persistence operations
type JobRepositoryInterface interface {
	LogJob(ctx context.Context, record *models.JobRecord) error
	GetJob(ctx context.Context, jobID string) (*models.JobRecord, error)
	GetJobs(ctx context.Context, limit int) ([]*models.JobRecord, error)
}

// EventRepositoryInterface defines event logging operations
type EventRepositoryInterface interface {
	LogEvent(ctx context.Context, level, code, msg string, meta map[string]interface{}) error
}
