// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the UploadLog
// model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jkimaro/pledges-backend/internal/domain"
)

// CreateUploadLog appends one log row for a processed file. The reconciler
// calls this on its transaction handle so the log commits or rolls back
// together with the batch it describes.
func CreateUploadLog(ctx context.Context, db *gorm.DB, filename string, total, created, updated int, errText string) (*domain.UploadLog, error) {
	l := &domain.UploadLog{
		ID:             uuid.NewString(),
		Filename:       filename,
		TotalRecords:   total,
		NewRecords:     created,
		UpdatedRecords: updated,
		Errors:         errText,
		UploadedAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(l).Error; err != nil {
		return nil, err
	}
	return l, nil
}

// CountUploadLogs returns the total number of upload log rows.
func CountUploadLogs(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.UploadLog{}).Count(&total).Error
	return total, err
}

// ListUploadLogsPage returns a paginated slice of upload logs, newest first.
func ListUploadLogsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.UploadLog, error) {
	var out []domain.UploadLog
	err := db.WithContext(ctx).
		Order("uploaded_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
