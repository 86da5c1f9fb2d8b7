// Package upload parses uploaded spreadsheet files into a neutral tabular
// form. It understands CSV and XLSX; the reconciliation logic that interprets
// the columns lives in services.UploadService so the two formats share one
// code path once parsed.
package upload

import (
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for file extensions other than .csv and .xlsx.
var ErrUnsupportedFormat = errors.New("unsupported file format, expected .csv or .xlsx")

// ErrEmptyFile is returned when the file has no header row.
var ErrEmptyFile = errors.New("file contains no rows")

// Table is a parsed spreadsheet: one header row plus zero or more data rows.
// Rows may be shorter than Headers when trailing cells are empty (XLSX omits
// them); consumers must bounds-check by column index.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Read parses r according to the extension of filename.
func Read(filename string, r io.Reader) (*Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return ReadCSV(r)
	case ".xlsx":
		return ReadXLSX(r)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// ReadCSV parses a CSV stream. Rows with a differing number of fields are
// accepted; the reconciler treats missing trailing cells as empty.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}
	// Excel-exported CSVs carry a UTF-8 BOM that arrives glued to the first
	// header cell and would defeat column alias resolution.
	if len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	return &Table{Headers: records[0], Rows: records[1:]}, nil
}

// ReadXLSX parses the first sheet of an XLSX workbook.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return &Table{Headers: rows[0], Rows: rows[1:]}, nil
}
