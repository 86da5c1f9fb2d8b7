// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// PledgeRecord model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition. The save pipeline (normalization, card
// code assignment, derived fields) lives in services.PledgeService.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jkimaro/pledges-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// InsertPledge persists a fully prepared new record. The caller (the service
// save pipeline) has already set the ID, normalized fields, and derived
// values. Raw DB errors, including unique-constraint violations on mobile
// number or card code, are propagated for the service to classify.
func InsertPledge(ctx context.Context, db *gorm.DB, rec *domain.PledgeRecord) error {
	rec.CreatedAt = time.Now().UTC()
	return db.WithContext(ctx).Create(rec).Error
}

// UpdatePledge saves all columns of an existing record.
func UpdatePledge(ctx context.Context, db *gorm.DB, rec *domain.PledgeRecord) error {
	return db.WithContext(ctx).Model(rec).Select("*").Omit("created_at").Updates(rec).Error
}

// GetPledge fetches a record by primary key, or ErrNotFound.
func GetPledge(ctx context.Context, db *gorm.DB, id string) (*domain.PledgeRecord, error) {
	var rec domain.PledgeRecord
	if err := db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetPledgeByMobile fetches a record by its canonical mobile number, or
// ErrNotFound. Mobile number is the natural key used by upload reconciliation.
func GetPledgeByMobile(ctx context.Context, db *gorm.DB, mobile string) (*domain.PledgeRecord, error) {
	var rec domain.PledgeRecord
	if err := db.WithContext(ctx).Where("mobile_number = ?", mobile).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeletePledge removes a record by ID. Associated messages are removed by the
// FK cascade. Returns ErrNotFound when no row was deleted.
func DeletePledge(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.PledgeRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountPledges returns the number of records matching the optional search
// term (substring match on name or mobile number).
func CountPledges(ctx context.Context, db *gorm.DB, search string) (int64, error) {
	var total int64
	q := db.WithContext(ctx).Model(&domain.PledgeRecord{})
	if search != "" {
		like := "%" + search + "%"
		q = q.Where("name LIKE ? OR mobile_number LIKE ?", like, like)
	}
	err := q.Count(&total).Error
	return total, err
}

// ListPledgesPage returns a paginated slice of records ordered by most
// recently updated first, optionally filtered by a search term.
func ListPledgesPage(ctx context.Context, db *gorm.DB, search string, offset, limit int) ([]domain.PledgeRecord, error) {
	var out []domain.PledgeRecord
	q := db.WithContext(ctx).Order("updated_at desc, id asc")
	if search != "" {
		like := "%" + search + "%"
		q = q.Where("name LIKE ? OR mobile_number LIKE ?", like, like)
	}
	err := q.Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// CardCodeTaken reports whether code is already assigned to a record other
// than excludeID. Pass an empty excludeID for new records. This pre-check is
// advisory only; the unique index on card_code is the final backstop.
func CardCodeTaken(ctx context.Context, db *gorm.DB, code, excludeID string) (bool, error) {
	var n int64
	q := db.WithContext(ctx).Model(&domain.PledgeRecord{}).Where("card_code = ?", code)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListUnsent returns records whose sent flag for the given channel is still
// false, ordered oldest first so long-waiting holders are served first.
func ListUnsent(ctx context.Context, db *gorm.DB, channel string) ([]domain.PledgeRecord, error) {
	col := "normal_message_sent"
	if channel == domain.ChannelWhatsApp {
		col = "whatsapp_sent"
	}
	var out []domain.PledgeRecord
	err := db.WithContext(ctx).Where(col+" = ?", false).Order("created_at asc, id asc").Find(&out).Error
	return out, err
}

// MarkNormalMessageSent flips the SMS sent flag without re-running the save
// pipeline. Returns ErrNotFound when the record does not exist.
func MarkNormalMessageSent(ctx context.Context, db *gorm.DB, id string) error {
	return markFlag(ctx, db, id, "normal_message_sent")
}

// MarkWhatsappSent flips the WhatsApp sent flag without re-running the save
// pipeline. Returns ErrNotFound when the record does not exist.
func MarkWhatsappSent(ctx context.Context, db *gorm.DB, id string) error {
	return markFlag(ctx, db, id, "whatsapp_sent")
}

func markFlag(ctx context.Context, db *gorm.DB, id, col string) error {
	res := db.WithContext(ctx).
		Model(&domain.PledgeRecord{}).
		Where("id = ?", id).
		Update(col, true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetInvitationImageURL stores the rendered invitation image URL on a record.
func SetInvitationImageURL(ctx context.Context, db *gorm.DB, id, url string) error {
	res := db.WithContext(ctx).
		Model(&domain.PledgeRecord{}).
		Where("id = ?", id).
		Update("invitation_image_url", url)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
