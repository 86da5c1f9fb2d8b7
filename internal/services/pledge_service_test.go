package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jkimaro/pledges-backend/internal/domain"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:pledgesvc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func mustCreate(t *testing.T, s *PledgeService, in PledgeInput) *domain.PledgeRecord {
	t.Helper()
	rec, err := s.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create(%q): %v", in.Name, err)
	}
	return rec
}

// ---------- Create ----------

func TestPledgeService_Create_RunsFullPipeline(t *testing.T) {
	db := newSvcDB(t, &domain.PledgeRecord{})
	s := NewPledgeService(db)

	rec := mustCreate(t, s, PledgeInput{
		Name:         "Asha Omari",
		MobileNumber: "255712345678",
		Pledge:       dec(150000),
		Paid:         dec(100000),
	})

	if rec.MobileNumber != "0712345678" {
		t.Fatalf("mobile not normalized: %q", rec.MobileNumber)
	}
	if !rec.Remaining.Equal(dec(50000)) {
		t.Fatalf("remaining = %s, want 50000", rec.Remaining)
	}
	if rec.CardCapacity != 2 {
		t.Fatalf("capacity = %d, want 2", rec.CardCapacity)
	}
	if len(rec.CardCode) != domain.CardCodeLength {
		t.Fatalf("card code %q, want %d chars", rec.CardCode, domain.CardCodeLength)
	}
	for _, c := range rec.CardCode {
		if !strings.ContainsRune(domain.CardCodeAlphabet, c) {
			t.Fatalf("card code %q uses forbidden char %q", rec.CardCode, c)
		}
	}
}

func TestPledgeService_Create_CapacityTiers(t *testing.T) {
	db := newSvcDB(t, &domain.PledgeRecord{})
	s := NewPledgeService(db)

	cases := []struct {
		paid int64
		want int
	}{
		{0, 0},
		{49999, 0},
		{50000, 1},
		{99999, 1},
		{100000, 2},
		{250000, 2},
	}
	for i, c := range cases {
		rec := mustCreate(t, s, PledgeInput{
			Name:         fmt.Sprintf("Guest %d", i),
			MobileNumber: fmt.Sprintf("07123456%02d", i),
			Pledge:       dec(300000),
			Paid:         dec(c.paid),
		})
		if rec.CardCapacity != c.want {
			t.Errorf("paid=%d: capacity = %d, want %d", c.paid, rec.CardCapacity, c.want)
		}
	}
}

func TestPledgeService_ManualCapacityOverridePreserved(t *testing.T) {
	db := newSvcDB(t, &domain.PledgeRecord{})
	s := NewPledgeService(db)

	override := 5
	rec := mustCreate(t, s, PledgeInput{
		Name:         "Family Table",
		MobileNumber: "0712345678",
		Pledge:       dec(10000),
		Paid:         dec(1000),
		CardCapacity: &override,
	})
	if rec.CardCapacity != 5 {
		t.Fatalf("override lost on create: %d", rec.CardCapacity)
	}

	// A later save with a big paid amount must not clamp the override.
	updated, err := s.Update(context.Background(), rec.ID, PledgeInput{
		Name:         "Family Table",
		MobileNumber: "0712345678",
		Pledge:       dec(200000),
		Paid:         dec(200000),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.CardCapacity != 5 {
		t.Fatalf("override lost on update: %d", updated.CardCapacity)
	}
}

func TestPledgeService_Create_DuplicateMobile(t *testing.T) {
	db := newSvcDB(t, &domain.PledgeRecord{})
	s := NewPledgeService(db)

	mustCreate(t, s, PledgeInput{Name: "Asha", MobileNumber: "0712345678", Pledge: dec(1000), Paid: dec(0)})

	_, err := s.Create(context.Background(), PledgeInput{
		Name: "Juma", MobileNumber: "255712345678", Pledge: dec(1000), Paid: dec(0),
	})
	if !errors.Is(err, ErrDuplicateMobile) {
		t.Fatalf("expected ErrDuplicateMobile, got %v", err)
	}
}

func TestPledgeService_Create_Validation(t *testing.T) {
	db := newSvcDB(t, &domain.PledgeRecord{})
	s := NewPledgeService(db)

	if _, err := s.Create(context.Background(), PledgeInput{
		Name: "  ", MobileNumber: "0712345678", Pledge: dec(1), Paid: dec(0),
	}); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}

	if _, err := s.Create(context.Background(), PledgeInput{
		Name: "Asha", MobileNumber: "", Pledge: dec(1), Paid: dec(0),
	}); !errors.Is(err, domain.ErrPhoneRequired) {
		t.Fatalf("expected ErrPhoneRequired, got %v", err)
	}

	if _, err := s.Create(context.Background(), PledgeInput{
		Name: "Asha", MobileNumber: "+0123", Pledge: dec(1), Paid: dec(0),
	}); !errors.Is(err, domain.ErrPhoneInternational) {
		t.Fatalf("expected ErrPhoneInternational, got %v", err)
	}

	if _, err := s.Create(context.Background(), PledgeInput{
		Name: "Asha", MobileNumber: "0712345678", Pledge: dec(-1), Paid: dec(0),
	}); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}

	negAttended := -1
	if _, err := s.Create(context.Background(), PledgeInput{
		Name: "Asha", MobileNumber: "0712345678", Pledge: dec(1), Paid: dec(0),
		AttendedCount: &negAttended,
	}); !errors.Is(err, ErrNegativeAttended) {
		t.Fatalf("expected ErrNegativeAttended, got %v", err)
	}

	// Nothing persisted by the failed attempts.
	var n int64
	if err := db.Model(&domain.PledgeRecord{}).Count(&n).Error; err != nil || n != 0 {
		t.Fatalf("expected empty table, n=%d err=%v", n, err)
	}
}

// ---------- Update / card code stability ----------

func TestPledgeService_Update_KeepsCardCode(t *testing.T) {
	db := newSvcDB(t, &domain.PledgeRecord{})
	s := NewPledgeService(db)

	rec := mustCreate(t, s, PledgeInput{Name: "Asha", MobileNumber: "0712345678", Pledge: dec(1000), Paid: dec(0)})
	code := rec.CardCode

	for i := 0; i < 3; i++ {
		updated, err := s.Update(context.Background(), rec.ID, PledgeInput{
			Name: "Asha", MobileNumber: "0712345678", Pledge: dec(1000), Paid: dec(int64(i * 100)),
		})
		if err != nil {
			t.Fatalf("Update #%d: %v", i, err)
		}
		if updated.CardCode != code {
			t.Fatalf("card code changed on re-save: %q -> %q", code, updated.CardCode)
		}
	}
}

func TestPledgeService_Update_AttendedCount(t *testing.T) {
	db := newSvcDB(t, &domain.PledgeRecord{})
	s := NewPledgeService(db)

	rec := mustCreate(t, s, PledgeInput{Name: "Asha", MobileNumber: "0712345678", Pledge: dec(1000), Paid: dec(0)})
	if rec.AttendedCount != 0 {
		t.Fatalf("fresh record attended = %d; want 0", rec.AttendedCount)
	}

	attended := 2
	updated, err := s.Update(context.Background(), rec.ID, PledgeInput{
		Name: "Asha", MobileNumber: "0712345678", Pledge: dec(1000), Paid: dec(0),
		AttendedCount: &attended,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.AttendedCount != 2 {
		t.Fatalf("attended = %d; want 2", updated.AttendedCount)
	}

	// Nil input leaves the stored value alone.
	updated, err = s.Update(context.Background(), rec.ID, PledgeInput{
		Name: "Asha", MobileNumber: "0712345678", Pledge: dec(1000), Paid: dec(500),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.AttendedCount != 2 {
		t.Fatalf("attended reset by nil input: %d", updated.AttendedCount)
	}
}

func TestPledgeService_Update_NotFound(t *testing.T) {
	db := newSvcDB(t, &domain.PledgeRecord{})
	s := NewPledgeService(db)

	_, err := s.Update(context.Background(), uuid.NewString(), PledgeInput{
		Name: "Asha", MobileNumber: "0712345678", Pledge: dec(1), Paid: dec(0),
	})
	if !errors.Is(err, ErrPledgeNotFound) {
		t.Fatalf("expected ErrPledgeNotFound, got %v", err)
	}
}

func TestPledgeService_GetAndDelete(t *testing.T) {
	db := newSvcDB(t, &domain.PledgeRecord{})
	s := NewPledgeService(db)

	rec := mustCreate(t, s, PledgeInput{Name: "Asha", MobileNumber: "0712345678", Pledge: dec(1000), Paid: dec(0)})

	got, err := s.Get(context.Background(), rec.ID)
	if err != nil || got.ID != rec.ID {
		t.Fatalf("Get: got=%v err=%v", got, err)
	}

	if err := s.Delete(context.Background(), rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(context.Background(), rec.ID); !errors.Is(err, ErrPledgeNotFound) {
		t.Fatalf("expected ErrPledgeNotFound after delete, got %v", err)
	}
	if err := s.Delete(context.Background(), rec.ID); !errors.Is(err, ErrPledgeNotFound) {
		t.Fatalf("expected ErrPledgeNotFound on double delete, got %v", err)
	}
}

func TestPledgeService_ListPage_DefaultsAndSearch(t *testing.T) {
	db := newSvcDB(t, &domain.PledgeRecord{})
	s := NewPledgeService(db)

	for i := 0; i < 3; i++ {
		mustCreate(t, s, PledgeInput{
			Name:         fmt.Sprintf("Guest %d", i),
			MobileNumber: fmt.Sprintf("07123456%02d", i),
			Pledge:       dec(1000),
			Paid:         dec(0),
		})
	}

	items, total, err := s.ListPage(context.Background(), "", 0, 0)
	if err != nil || total != 3 || len(items) != 3 {
		t.Fatalf("ListPage defaults: n=%d total=%d err=%v", len(items), total, err)
	}

	items, total, err = s.ListPage(context.Background(), "Guest 1", 1, 10)
	if err != nil || total != 1 || len(items) != 1 || items[0].Name != "Guest 1" {
		t.Fatalf("ListPage search: items=%v total=%d err=%v", items, total, err)
	}

	items, total, err = s.ListPage(context.Background(), "nobody", 1, 10)
	if err != nil || total != 0 || len(items) != 0 {
		t.Fatalf("ListPage empty: items=%v total=%d err=%v", items, total, err)
	}
}

// ---------- code generation internals ----------

func TestGenerateCardCode_PropagatesStorageError(t *testing.T) {
	db := newSvcDB(t /* no migrations: uniqueness check has no table */)
	s := NewPledgeService(db)

	_, err := s.generateCardCode(context.Background(), db, "")
	if err == nil || errors.Is(err, ErrCardCodesExhausted) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestCapacityForPaid(t *testing.T) {
	if got := capacityForPaid(dec(100000)); got != 2 {
		t.Fatalf("100000 -> %d, want 2", got)
	}
	if got := capacityForPaid(decimal.NewFromFloat(99999.99)); got != 1 {
		t.Fatalf("99999.99 -> %d, want 1", got)
	}
	if got := capacityForPaid(decimal.NewFromFloat(49999.99)); got != 0 {
		t.Fatalf("49999.99 -> %d, want 0", got)
	}
}

func TestClassifyConflict(t *testing.T) {
	if err := classifyConflict(errors.New("UNIQUE constraint failed: pledge_records.mobile_number")); !errors.Is(err, ErrDuplicateMobile) {
		t.Fatalf("mobile conflict: %v", err)
	}
	if err := classifyConflict(errors.New("UNIQUE constraint failed: pledge_records.card_code")); !errors.Is(err, ErrDuplicateCardCode) {
		t.Fatalf("card code conflict: %v", err)
	}
	plain := errors.New("disk I/O error")
	if err := classifyConflict(plain); !errors.Is(err, plain) {
		t.Fatalf("plain error rewritten: %v", err)
	}
}
