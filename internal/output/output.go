// Package output persists extracted holdings, one file per reporting date.
package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/seenimoa/nportp/pkg/models"
)

// Format selects the tabular file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FileSuffix follows the reporting date in every output file name.
const FileSuffix = "_NPORT-P_HOLDINGS"

const sheetName = "Holdings"

// ParseFormat validates a configured format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV, "":
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want csv or xlsx)", s)
	}
}

// Sink writes filings into a directory.
type Sink struct {
	dir    string
	format Format
}

// NewSink creates a sink writing format files into dir.
func NewSink(dir string, format Format) *Sink {
	if format == "" {
		format = FormatCSV
	}
	return &Sink{dir: dir, format: format}
}

// Dir returns the directory files are written to.
func (s *Sink) Dir() string { return s.dir }

// FileName returns the deterministic file name for a reporting date.
// Path separators in the date are replaced so the name stays in dir.
func FileName(reportingDate string, format Format) string {
	safe := strings.NewReplacer("/", "-", `\`, "-").Replace(strings.TrimSpace(reportingDate))
	return safe + FileSuffix + "." + string(format)
}

// Write persists f and returns the file path. An existing file for the same
// reporting date is overwritten.
func (s *Sink) Write(f *models.ExtractedFiling) (string, error) {
	if f == nil || f.ReportingDate == "" {
		return "", fmt.Errorf("write holdings: missing reporting date")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(s.dir, FileName(f.ReportingDate, s.format))
	var err error
	switch s.format {
	case FormatXLSX:
		err = writeXLSX(path, f)
	default:
		err = writeCSV(path, f)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

func header(f *models.ExtractedFiling) []string {
	cols := f.Columns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = string(c)
	}
	return out
}

func writeCSV(path string, f *models.ExtractedFiling) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if cols := header(f); len(cols) > 0 {
		if err := w.Write(cols); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		if err := w.WriteAll(f.Rows()); err != nil {
			return fmt.Errorf("write csv rows: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return file.Close()
}

func writeXLSX(path string, f *models.ExtractedFiling) error {
	book := excelize.NewFile()
	defer book.Close()

	if err := book.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}

	cols := header(f)
	if len(cols) > 0 {
		if err := setRow(book, 1, cols); err != nil {
			return err
		}
		for i, row := range f.Rows() {
			if err := setRow(book, i+2, row); err != nil {
				return err
			}
		}
	}

	if err := book.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func setRow(book *excelize.File, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("xlsx cell: %w", err)
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := book.SetSheetRow(sheetName, cell, &row); err != nil {
		return fmt.Errorf("xlsx row %d: %w", rowNum, err)
	}
	return nil
}
