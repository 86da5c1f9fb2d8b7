// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// attempt log.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jkimaro/pledges-backend/internal/domain"
)

// CreatePendingMessage inserts a new attempt row in pending state. Dispatchers
// call this before contacting the provider so every attempt is on record even
// when the process dies mid-call.
func CreatePendingMessage(ctx context.Context, db *gorm.DB, recordID, channel, kind, recipientName, recipientMobile, body string) (*domain.Message, error) {
	m := &domain.Message{
		ID:              uuid.NewString(),
		PledgeRecordID:  recordID,
		Channel:         channel,
		Kind:            kind,
		RecipientName:   recipientName,
		RecipientMobile: recipientMobile,
		Body:            body,
		Status:          domain.MessageStatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// MarkMessageSent updates an attempt in place with the provider's message id.
func MarkMessageSent(ctx context.Context, db *gorm.DB, id, providerMessageID string) error {
	return updateMessage(ctx, db, id, map[string]any{
		"status":              domain.MessageStatusSent,
		"provider_message_id": providerMessageID,
	})
}

// MarkMessageFailed updates an attempt in place with the provider error text.
func MarkMessageFailed(ctx context.Context, db *gorm.DB, id, errText string) error {
	return updateMessage(ctx, db, id, map[string]any{
		"status":        domain.MessageStatusFailed,
		"error_message": errText,
	})
}

func updateMessage(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).Model(&domain.Message{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMessage returns a single attempt by id, or ErrNotFound.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessagesForRecord returns a record's attempt history, newest first.
func ListMessagesForRecord(ctx context.Context, db *gorm.DB, recordID string) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("pledge_record_id = ?", recordID).
		Order("created_at desc, id desc").
		Find(&out).Error
	return out, err
}

// CountMessagesByStatus returns how many attempts a record has in the given
// status, across both channels.
func CountMessagesByStatus(ctx context.Context, db *gorm.DB, recordID, status string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("pledge_record_id = ? AND status = ?", recordID, status).
		Count(&total).Error
	return total, err
}
