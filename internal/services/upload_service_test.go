package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jkimaro/pledges-backend/internal/domain"
	"github.com/jkimaro/pledges-backend/internal/repo"
	"github.com/jkimaro/pledges-backend/internal/upload"
)

func newUploadService(t *testing.T) (*UploadService, *PledgeService) {
	t.Helper()
	db := newSvcDB(t, &domain.PledgeRecord{}, &domain.UploadLog{})
	pledges := NewPledgeService(db)
	return NewUploadService(db, pledges), pledges
}

// ---------- column resolution ----------

func TestResolveColumns_AliasesAndNormalization(t *testing.T) {
	cols, err := resolveColumns([]string{" Full Name ", "PHONE NUMBER", "Pledge Amount", "amount paid", "Balance"})
	if err != nil {
		t.Fatalf("resolveColumns: %v", err)
	}
	want := map[string]int{"name": 0, "mobile_number": 1, "pledge": 2, "paid": 3, "remaining": 4}
	for k, idx := range want {
		if cols[k] != idx {
			t.Errorf("%s -> %d, want %d", k, cols[k], idx)
		}
	}
}

func TestResolveColumns_FirstAliasWins(t *testing.T) {
	cols, err := resolveColumns([]string{"phone", "mobile_number", "name", "pledge", "paid"})
	if err != nil {
		t.Fatalf("resolveColumns: %v", err)
	}
	// mobile_number is listed before phone in the alias table.
	if cols["mobile_number"] != 1 {
		t.Fatalf("mobile_number resolved to %d, want 1", cols["mobile_number"])
	}
}

func TestResolveColumns_Missing(t *testing.T) {
	_, err := resolveColumns([]string{"name", "phone"})
	var mc *MissingColumnsError
	if !errors.As(err, &mc) {
		t.Fatalf("expected MissingColumnsError, got %v", err)
	}
	if len(mc.Missing) != 2 || mc.Missing[0] != "pledge" || mc.Missing[1] != "paid" {
		t.Fatalf("missing = %v", mc.Missing)
	}
	if !strings.Contains(mc.Error(), "pledge, paid") {
		t.Fatalf("error text: %v", mc)
	}
}

// ---------- Process ----------

func TestUploadService_Process_NewUpdatedAndRowErrors(t *testing.T) {
	s, pledges := newUploadService(t)
	ctx := context.Background()

	// Pre-existing record to be updated by the second row.
	existing, err := pledges.Create(ctx, PledgeInput{
		Name: "Old Name", MobileNumber: "0765432109", Pledge: dec(10000), Paid: dec(0),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	tab := &upload.Table{
		Headers: []string{"Name", "Mobile", "Pledge", "Paid"},
		Rows: [][]string{
			{"Asha Omari", "255712345678", "150,000", "100,000"},
			{"Juma Hassan", "0765432109", "80000", "60000"},
			{"Broken Row", "0754321098", "not-a-number", "0"},
		},
	}

	report, err := s.Process(ctx, "pledges.xlsx", tab)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.Total != 3 || report.New != 1 || report.Updated != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Errors) != 1 || !strings.HasPrefix(report.Errors[0], "Row 3: ") {
		t.Fatalf("errors = %v", report.Errors)
	}

	// New row: thousands separators stripped, phone canonicalized, pipeline run.
	created, err := repo.GetPledgeByMobile(ctx, s.DB, "0712345678")
	if err != nil {
		t.Fatalf("created row missing: %v", err)
	}
	if !created.Pledge.Equal(dec(150000)) || !created.Remaining.Equal(dec(50000)) || created.CardCapacity != 2 {
		t.Fatalf("created row fields: %+v", created)
	}

	// Updated row: fields overwritten, card code kept.
	updated, err := repo.GetPledge(ctx, s.DB, existing.ID)
	if err != nil {
		t.Fatalf("updated row missing: %v", err)
	}
	if updated.Name != "Juma Hassan" || !updated.Paid.Equal(dec(60000)) || updated.CardCapacity != 1 {
		t.Fatalf("updated row fields: %+v", updated)
	}
	if updated.CardCode != existing.CardCode {
		t.Fatalf("card code changed on upload update: %q -> %q", existing.CardCode, updated.CardCode)
	}

	// One UploadLog written with aggregated counts and joined errors.
	logs, err := repo.ListUploadLogsPage(ctx, s.DB, 0, 10)
	if err != nil || len(logs) != 1 {
		t.Fatalf("upload logs: n=%d err=%v", len(logs), err)
	}
	l := logs[0]
	if l.Filename != "pledges.xlsx" || l.TotalRecords != 3 || l.NewRecords != 1 || l.UpdatedRecords != 1 {
		t.Fatalf("upload log: %+v", l)
	}
	if !strings.Contains(l.Errors, "Row 3:") {
		t.Fatalf("upload log errors: %q", l.Errors)
	}
}

func TestUploadService_Process_DuplicateMobileInOneFile(t *testing.T) {
	s, _ := newUploadService(t)
	ctx := context.Background()

	// Same guest twice, in local and international form. The first row
	// creates, the later one updates, and the last row's values win.
	tab := &upload.Table{
		Headers: []string{"name", "mobile", "pledge", "paid"},
		Rows: [][]string{
			{"Asha", "0712345678", "100000", "0"},
			{"Asha Omari", "255712345678", "100000", "60000"},
		},
	}

	report, err := s.Process(ctx, "dupes.csv", tab)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.Total != 2 || report.New != 1 || report.Updated != 1 || len(report.Errors) != 0 {
		t.Fatalf("report = %+v", report)
	}

	var n int64
	if err := s.DB.Model(&domain.PledgeRecord{}).Count(&n).Error; err != nil || n != 1 {
		t.Fatalf("expected a single record, n=%d err=%v", n, err)
	}

	got, err := repo.GetPledgeByMobile(ctx, s.DB, "0712345678")
	if err != nil {
		t.Fatalf("GetPledgeByMobile: %v", err)
	}
	if got.Name != "Asha Omari" || !got.Paid.Equal(dec(60000)) || !got.Remaining.Equal(dec(40000)) {
		t.Fatalf("last row did not win: %+v", got)
	}
}

func TestUploadService_Process_SkipsNullMobilesSilently(t *testing.T) {
	s, _ := newUploadService(t)

	tab := &upload.Table{
		Headers: []string{"name", "mobile_number", "pledge", "paid"},
		Rows: [][]string{
			{"No Phone", "", "1000", "0"},
			{"Nan Phone", "nan", "1000", "0"},
			{"None Phone", "None", "1000", "0"},
			{"Real", "0712345678", "1000", "0"},
		},
	}

	report, err := s.Process(context.Background(), "guests.csv", tab)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.Total != 4 || report.New != 1 || report.Updated != 0 || len(report.Errors) != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestUploadService_Process_MissingColumnsWritesNothing(t *testing.T) {
	s, _ := newUploadService(t)

	tab := &upload.Table{
		Headers: []string{"name", "phone"},
		Rows:    [][]string{{"Asha", "0712345678"}},
	}

	_, err := s.Process(context.Background(), "bad.csv", tab)
	var mc *MissingColumnsError
	if !errors.As(err, &mc) {
		t.Fatalf("expected MissingColumnsError, got %v", err)
	}

	n, err := repo.CountUploadLogs(context.Background(), s.DB)
	if err != nil || n != 0 {
		t.Fatalf("expected no upload log, n=%d err=%v", n, err)
	}
}

func TestUploadService_Process_RowErrorDoesNotAbortBatch(t *testing.T) {
	s, _ := newUploadService(t)

	tab := &upload.Table{
		Headers: []string{"name", "mobile", "pledge", "paid"},
		Rows: [][]string{
			{"", "0712345678", "1000", "0"},  // validation failure: empty name
			{"Asha", "0765432109", "5", "0"}, // fine
		},
	}

	report, err := s.Process(context.Background(), "mixed.csv", tab)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.New != 1 || len(report.Errors) != 1 {
		t.Fatalf("report = %+v", report)
	}
	if !strings.HasPrefix(report.Errors[0], "Row 1: ") {
		t.Fatalf("errors = %v", report.Errors)
	}
}

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"150,000":    "150000",
		" 1,234.56 ": "1234.56",
		"":           "0",
		"0":          "0",
	}
	for in, want := range cases {
		got, err := parseAmount(in)
		if err != nil {
			t.Errorf("parseAmount(%q): %v", in, err)
			continue
		}
		if got.String() != want {
			t.Errorf("parseAmount(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := parseAmount("12x"); err == nil {
		t.Errorf("expected error for garbage input")
	}
}

func TestIsNullMarker(t *testing.T) {
	for _, v := range []string{"", "nan", "NaN", "none", "NONE"} {
		if !isNullMarker(v) {
			t.Errorf("isNullMarker(%q) = false", v)
		}
	}
	if isNullMarker("0712345678") {
		t.Errorf("real number treated as null")
	}
}
