// Package services – PledgeService
//
// This file implements the PledgeService, which owns the lifecycle of pledge
// records. Every persist runs the same save pipeline: phone normalization,
// one-time card code assignment, derived-field recomputation, validation, and
// finally the insert or update with conflict classification. The repository
// layer stays thin; all invariants live here.
//
// Service-level errors (e.g., ErrPledgeNotFound, ErrDuplicateMobile) are
// returned for predictable cases so handlers can map them to HTTP results
// consistently.
package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jkimaro/pledges-backend/internal/domain"
	"github.com/jkimaro/pledges-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// defaultCodeMaxAttempts bounds the card code rejection-sampling loop. The
// pool holds 22^3 = 10648 codes, so hitting the cap means the pool is close
// to exhausted, not unlucky.
const defaultCodeMaxAttempts = 50

// Capacity tier thresholds on the paid amount.
var (
	capacityDoubleThreshold = decimal.NewFromInt(100000)
	capacitySingleThreshold = decimal.NewFromInt(50000)
)

// PledgeInput carries the caller-supplied fields for a create or update.
type PledgeInput struct {
	Name         string
	MobileNumber string
	Pledge       decimal.Decimal
	Paid         decimal.Decimal

	// CardCapacity optionally overrides the derived tier. Values above 2 stick
	// as manual overrides; lower values are recomputed on the next save.
	CardCapacity *int

	// AttendedCount optionally sets how many guests have checked in against
	// the card. Nil leaves the stored value untouched.
	AttendedCount *int
}

// PledgeService provides CRUD and the save pipeline for pledge records.
type PledgeService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// CodeMaxAttempts caps the card code generation loop.
	CodeMaxAttempts int
}

// NewPledgeService constructs a PledgeService with the default attempt cap.
func NewPledgeService(db *gorm.DB) *PledgeService {
	return &PledgeService{
		DB:              db,
		CodeMaxAttempts: defaultCodeMaxAttempts,
	}
}

// Create inserts a new record after running the save pipeline.
func (s *PledgeService) Create(ctx context.Context, in PledgeInput) (*domain.PledgeRecord, error) {
	tr := otel.Tracer("services/PledgeService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("pledge.name", in.Name)),
	)
	defer span.End()

	rec := &domain.PledgeRecord{
		ID:           uuid.NewString(),
		Name:         in.Name,
		MobileNumber: in.MobileNumber,
		Pledge:       in.Pledge,
		Paid:         in.Paid,
	}
	if in.CardCapacity != nil {
		rec.CardCapacity = *in.CardCapacity
	}
	if in.AttendedCount != nil {
		rec.AttendedCount = *in.AttendedCount
	}
	if err := s.Save(ctx, s.DB, rec, true); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update applies input to an existing record and re-runs the save pipeline.
func (s *PledgeService) Update(ctx context.Context, id string, in PledgeInput) (*domain.PledgeRecord, error) {
	tr := otel.Tracer("services/PledgeService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(attribute.String("pledge.id", id)),
	)
	defer span.End()

	rec, err := repo.GetPledge(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPledgeNotFound
		}
		return nil, err
	}

	rec.Name = in.Name
	rec.MobileNumber = in.MobileNumber
	rec.Pledge = in.Pledge
	rec.Paid = in.Paid
	if in.CardCapacity != nil {
		rec.CardCapacity = *in.CardCapacity
	}
	if in.AttendedCount != nil {
		rec.AttendedCount = *in.AttendedCount
	}
	if err := s.Save(ctx, s.DB, rec, false); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get fetches one record by id.
func (s *PledgeService) Get(ctx context.Context, id string) (*domain.PledgeRecord, error) {
	rec, err := repo.GetPledge(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPledgeNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Delete removes a record and, via the FK cascade, its message history.
func (s *PledgeService) Delete(ctx context.Context, id string) error {
	err := repo.DeletePledge(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrPledgeNotFound
	}
	return err
}

// ListPage returns a page of records, optionally filtered by a search term
// matching name or mobile number. It applies defaults for invalid
// page/pageSize and returns the total count.
func (s *PledgeService) ListPage(ctx context.Context, search string, page, pageSize int) ([]domain.PledgeRecord, int64, error) {
	tr := otel.Tracer("services/PledgeService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountPledges(ctx, s.DB, search)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.PledgeRecord{}, 0, nil
	}

	items, err := repo.ListPledgesPage(ctx, s.DB, search, offset, pageSize)
	return items, total, err
}

// Save runs the full save pipeline on the given handle, which may be a
// transaction (the upload reconciler passes its tx so batch upserts commit
// atomically). Steps, in order: normalize phone, assign card code once,
// recompute remaining, recompute capacity tier unless manually overridden,
// validate, persist with conflict classification.
func (s *PledgeService) Save(ctx context.Context, db *gorm.DB, rec *domain.PledgeRecord, isNew bool) error {
	tr := otel.Tracer("services/PledgeService")
	ctx, span := tr.Start(ctx, "Save",
		trace.WithAttributes(
			attribute.String("pledge.id", rec.ID),
			attribute.Bool("pledge.new", isNew),
		),
	)
	defer span.End()

	rec.MobileNumber = domain.NormalizePhone(rec.MobileNumber)

	if rec.CardCode == "" {
		code, err := s.generateCardCode(ctx, db, rec.ID)
		if err != nil {
			return err
		}
		rec.CardCode = code
	}

	rec.Remaining = rec.Pledge.Sub(rec.Paid)

	// Tiers above 2 are manual overrides and never recomputed.
	if rec.CardCapacity <= 2 {
		rec.CardCapacity = capacityForPaid(rec.Paid)
	}

	if err := validateRecord(rec); err != nil {
		return err
	}

	var err error
	if isNew {
		err = repo.InsertPledge(ctx, db, rec)
	} else {
		err = repo.UpdatePledge(ctx, db, rec)
	}
	if err != nil {
		return classifyConflict(err)
	}
	return nil
}

// generateCardCode draws random codes from the restricted alphabet until one
// is free, excluding excludeID so re-saving a record never self-collides. The
// pre-check is advisory; the unique index remains the backstop for the narrow
// race against a concurrent writer.
func (s *PledgeService) generateCardCode(ctx context.Context, db *gorm.DB, excludeID string) (string, error) {
	maxAttempts := s.CodeMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultCodeMaxAttempts
	}

	buf := make([]byte, domain.CardCodeLength)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		for i := range buf {
			buf[i] = domain.CardCodeAlphabet[rand.IntN(len(domain.CardCodeAlphabet))]
		}
		code := string(buf)

		taken, err := repo.CardCodeTaken(ctx, db, code, excludeID)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrCardCodesExhausted
}

// capacityForPaid maps a paid amount to its entitlement tier.
func capacityForPaid(paid decimal.Decimal) int {
	switch {
	case paid.GreaterThanOrEqual(capacityDoubleThreshold):
		return 2
	case paid.GreaterThanOrEqual(capacitySingleThreshold):
		return 1
	default:
		return 0
	}
}

// validateRecord enforces required fields and phone format before persistence.
func validateRecord(rec *domain.PledgeRecord) error {
	if strings.TrimSpace(rec.Name) == "" {
		return ErrNameRequired
	}
	if rec.Pledge.IsNegative() || rec.Paid.IsNegative() {
		return ErrNegativeAmount
	}
	if rec.AttendedCount < 0 {
		return ErrNegativeAttended
	}
	return domain.ValidatePhone(rec.MobileNumber)
}

// classifyConflict maps storage-level unique violations onto the structured
// conflict errors callers match on. glebarez/sqlite reports violations as
// plain text naming the column.
func classifyConflict(err error) error {
	low := strings.ToLower(err.Error())
	isUnique := errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
	if !isUnique {
		return err
	}
	if strings.Contains(low, "mobile_number") {
		return ErrDuplicateMobile
	}
	if strings.Contains(low, "card_code") {
		return ErrDuplicateCardCode
	}
	return ErrDuplicateMobile
}
