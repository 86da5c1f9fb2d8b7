// Package services – UploadService
//
// This file implements the spreadsheet reconciliation engine. A parsed table
// is matched against a fixed column-alias map, then every row is upserted by
// canonical mobile number inside one transaction. A malformed row records a
// per-row error without aborting the batch; the UploadLog commits in the same
// transaction as the upserts it describes.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jkimaro/pledges-backend/internal/domain"
	"github.com/jkimaro/pledges-backend/internal/repo"
	"github.com/jkimaro/pledges-backend/internal/upload"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// columnAliases maps each canonical field to the header spellings accepted
// for it. First alias match wins.
var columnAliases = map[string][]string{
	"name":          {"name", "full_name", "person_name"},
	"mobile_number": {"mobile_number", "mobile", "phone", "phone_number", "contact"},
	"pledge":        {"pledge", "pledged", "pledge_amount"},
	"paid":          {"paid", "amount_paid", "paid_amount"},
	"remaining":     {"remaining", "balance", "remaining_amount"},
}

// requiredColumns must all resolve or the upload aborts before touching
// storage. remaining is optional; it is derived when absent.
var requiredColumns = []string{"name", "mobile_number", "pledge", "paid"}

// UploadReport summarizes one processed file.
type UploadReport struct {
	Total   int      `json:"total_records"`
	New     int      `json:"new_records"`
	Updated int      `json:"updated_records"`
	Errors  []string `json:"errors"`
}

// rowOutcome tells the batch loop how to count a processed row.
type rowOutcome int

const (
	rowSkipped rowOutcome = iota
	rowCreated
	rowUpdated
)

// UploadService reconciles uploaded tables against the pledge records.
type UploadService struct {
	// DB is the GORM handle; each Process call opens one transaction on it.
	DB *gorm.DB
	// Pledges runs the save pipeline for every upserted row.
	Pledges *PledgeService
}

// NewUploadService constructs an UploadService.
func NewUploadService(db *gorm.DB, pledges *PledgeService) *UploadService {
	return &UploadService{DB: db, Pledges: pledges}
}

// Process reconciles one parsed table. It returns a MissingColumnsError
// before any storage access when required columns cannot be resolved;
// otherwise all row upserts plus the UploadLog commit or roll back together.
// Per-row failures land in the report's Errors list and never abort the batch.
func (s *UploadService) Process(ctx context.Context, filename string, tab *upload.Table) (*UploadReport, error) {
	tr := otel.Tracer("services/UploadService")
	ctx, span := tr.Start(ctx, "Process",
		trace.WithAttributes(
			attribute.String("upload.filename", filename),
			attribute.Int("upload.rows", len(tab.Rows)),
		),
	)
	defer span.End()

	cols, err := resolveColumns(tab.Headers)
	if err != nil {
		return nil, err
	}

	report := &UploadReport{Total: len(tab.Rows), Errors: []string{}}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, row := range tab.Rows {
			outcome, rowErr := s.upsertRow(ctx, tx, cols, row)
			if rowErr != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("Row %d: %s", i+1, rowErr.Error()))
				continue
			}
			switch outcome {
			case rowCreated:
				report.New++
			case rowUpdated:
				report.Updated++
			}
		}

		_, err := repo.CreateUploadLog(ctx, tx, filename,
			report.Total, report.New, report.Updated, strings.Join(report.Errors, "; "))
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// upsertRow processes one data row: parse, skip null mobiles, normalize, and
// create or overwrite the record keyed by mobile number. The save pipeline
// runs on the batch transaction so conflicts and validation failures surface
// as row errors.
func (s *UploadService) upsertRow(ctx context.Context, tx *gorm.DB, cols map[string]int, row []string) (rowOutcome, error) {
	mobile := cell(row, cols["mobile_number"])
	if isNullMarker(mobile) {
		return rowSkipped, nil
	}

	name := cell(row, cols["name"])
	pledge, err := parseAmount(cell(row, cols["pledge"]))
	if err != nil {
		return rowSkipped, fmt.Errorf("invalid pledge amount: %v", err)
	}
	paid, err := parseAmount(cell(row, cols["paid"]))
	if err != nil {
		return rowSkipped, fmt.Errorf("invalid paid amount: %v", err)
	}
	// A resolved remaining column is validated but not trusted: the save
	// pipeline rederives it from pledge and paid.
	if idx, ok := cols["remaining"]; ok {
		if _, err := parseAmount(cell(row, idx)); err != nil {
			return rowSkipped, fmt.Errorf("invalid remaining amount: %v", err)
		}
	}

	mobile = domain.NormalizePhone(mobile)

	existing, err := repo.GetPledgeByMobile(ctx, tx, mobile)
	switch {
	case err == nil:
		existing.Name = name
		existing.Pledge = pledge
		existing.Paid = paid
		if err := s.Pledges.Save(ctx, tx, existing, false); err != nil {
			return rowSkipped, err
		}
		return rowUpdated, nil

	case errors.Is(err, repo.ErrNotFound):
		rec := &domain.PledgeRecord{
			ID:           uuid.NewString(),
			Name:         name,
			MobileNumber: mobile,
			Pledge:       pledge,
			Paid:         paid,
		}
		if err := s.Pledges.Save(ctx, tx, rec, true); err != nil {
			return rowSkipped, err
		}
		return rowCreated, nil

	default:
		return rowSkipped, err
	}
}

// resolveColumns normalizes headers (trim, lowercase, spaces to underscores)
// and maps each canonical field to its column index.
func resolveColumns(headers []string) (map[string]int, error) {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		if _, seen := index[norm]; !seen {
			index[norm] = i
		}
	}

	cols := make(map[string]int, len(columnAliases))
	for canonical, aliases := range columnAliases {
		for _, alias := range aliases {
			if i, ok := index[alias]; ok {
				cols[canonical] = i
				break
			}
		}
	}

	var missing []string
	for _, req := range requiredColumns {
		if _, ok := cols[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Missing: missing}
	}
	return cols, nil
}

// cell returns the trimmed value at column idx, tolerating short rows.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseAmount parses a decimal cell after stripping thousands separators.
// An empty cell parses as zero.
func parseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(cleaned)
}

// isNullMarker reports whether a mobile cell should be silently skipped.
// Spreadsheet exports render empty cells as "nan" or "none" text.
func isNullMarker(mobile string) bool {
	low := strings.ToLower(mobile)
	return low == "" || low == "nan" || low == "none"
}
