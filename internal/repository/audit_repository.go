package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/otcheredev/ris-db-connector/internal/database"
	"github.com/otcheredev/ris-db-connector/internal/models"
)

// AuditStore records manifest builds
type AuditStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// AuditRepository handles audit log database operations
type AuditRepository struct{}

// NewAuditRepository creates a new audit repository
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

// Create creates a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	if err := database.DB.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// GetByArchive retrieves audit logs for an archive
func (r *AuditRepository) GetByArchive(ctx context.Context, archive string, limit, offset int) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	query := database.DB.WithContext(ctx).
		Where("archive = ?", archive).
		Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to get audit logs: %w", err)
	}

	return logs, nil
}

// DeleteOlderThan purges entries created before cutoff
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := database.DB.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge audit logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// NopAuditStore discards entries; used when auditing is disabled
type NopAuditStore struct{}

// Create implements AuditStore
func (NopAuditStore) Create(context.Context, *models.AuditLog) error {
	return nil
}
