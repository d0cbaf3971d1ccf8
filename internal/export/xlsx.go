package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/tagomatech/ETL/internal/contracts"
)

// Sheet is one named table of a workbook
type Sheet struct {
	Name  string
	Table Table
}

// WriteXLSX writes each sheet in order; numeric cells are stored as numbers
func WriteXLSX(w io.Writer, sheets ...Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("no sheets to write")
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sh.Name); err != nil {
				return fmt.Errorf("failed to name sheet %q: %w", sh.Name, err)
			}
		} else if _, err := f.NewSheet(sh.Name); err != nil {
			return fmt.Errorf("failed to add sheet %q: %w", sh.Name, err)
		}

		if err := writeSheet(f, sh); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sh Sheet) error {
	header := make([]interface{}, len(sh.Table.Header))
	for i, h := range sh.Table.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sh.Name, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header of %q: %w", sh.Name, err)
	}

	for r, rec := range sh.Table.Rows {
		cells := make([]interface{}, len(rec))
		for i, v := range rec {
			cells[i] = cellValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sh.Name, cell, &cells); err != nil {
			return fmt.Errorf("failed to write row %d of %q: %w", r+1, sh.Name, err)
		}
	}
	return nil
}

// cellValue keeps dates and symbols as text and stores numbers as numbers
func cellValue(v string) interface{} {
	if v == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

// ReadXLSX reads the named sheet (or the first one) as a headered table of raw rows
func ReadXLSX(r io.Reader, sheet string) ([]contracts.RawRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return []contracts.RawRow{}, nil
	}
	return toRawRows(rows[0], rows[1:]), nil
}
