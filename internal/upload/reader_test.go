package upload

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestReadCSV_HeaderAndRows(t *testing.T) {
	in := "name,mobile,pledge\nAsha,0712345678,100000\nJuma,0765432109,50000\n"
	tab, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(tab.Headers) != 3 || tab.Headers[0] != "name" {
		t.Fatalf("unexpected headers: %v", tab.Headers)
	}
	if len(tab.Rows) != 2 || tab.Rows[1][0] != "Juma" {
		t.Fatalf("unexpected rows: %v", tab.Rows)
	}
}

func TestReadCSV_StripsBOM(t *testing.T) {
	in := "\ufeffname,mobile,pledge\nAsha,0712345678,100000\n"
	tab, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if tab.Headers[0] != "name" {
		t.Fatalf("BOM not stripped from first header: %q", tab.Headers[0])
	}
	if len(tab.Rows) != 1 || tab.Rows[0][0] != "Asha" {
		t.Fatalf("unexpected rows: %v", tab.Rows)
	}
}

func TestReadCSV_RaggedRowsAccepted(t *testing.T) {
	in := "name,mobile,pledge\nAsha,0712345678\n"
	tab, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(tab.Rows[0]) != 2 {
		t.Fatalf("expected short row preserved, got %v", tab.Rows[0])
	}
}

func TestReadCSV_Empty(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("")); err != ErrEmptyFile {
		t.Fatalf("expected ErrEmptyFile, got %v", err)
	}
}

func TestReadXLSX_FirstSheet(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range [][]any{
		{"name", "mobile", "pledge"},
		{"Asha", "0712345678", 100000},
	} {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	tab, err := ReadXLSX(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadXLSX: %v", err)
	}
	if len(tab.Headers) != 3 || tab.Headers[1] != "mobile" {
		t.Fatalf("unexpected headers: %v", tab.Headers)
	}
	if len(tab.Rows) != 1 || tab.Rows[0][0] != "Asha" {
		t.Fatalf("unexpected rows: %v", tab.Rows)
	}
}

func TestRead_DispatchByExtension(t *testing.T) {
	tab, err := Read("pledges.CSV", strings.NewReader("name\nAsha\n"))
	if err != nil || len(tab.Rows) != 1 {
		t.Fatalf("csv dispatch: tab=%v err=%v", tab, err)
	}
	if _, err := Read("pledges.pdf", strings.NewReader("x")); err != ErrUnsupportedFormat {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
