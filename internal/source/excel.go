package source

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExcelSource implements BatchSource over an uploaded .xlsx file. The first
// sheet is used; its first row is treated as the header row.
type ExcelSource struct {
	data []byte
}

// NewExcelSource wraps raw .xlsx bytes as a batch source.
func NewExcelSource(data []byte) *ExcelSource {
	return &ExcelSource{data: data}
}

// Table decodes the spreadsheet into headers plus data rows.
func (s *ExcelSource) Table(ctx context.Context) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(s.data))
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("spreadsheet has no sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return &Table{}, nil
	}

	return &Table{Headers: rows[0], Rows: rows[1:]}, nil
}

var _ BatchSource = (*ExcelSource)(nil)
