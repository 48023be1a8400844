// Package testdata reads and writes single values in CSV and Excel files
// used to parameterise test steps.
package testdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/devicelab-dev/pagekit/pkg/core"
	"github.com/devicelab-dev/pagekit/pkg/logger"
)

// ErrNoValue is returned when a reference resolves to an empty value.
var ErrNoValue = errors.New("no value found")

// ReadCSVCell returns the value of column in the first data row of a CSV
// file whose first row is a header.
func ReadCSVCell(path, column string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return "", fmt.Errorf("%s: reading header: %w", path, err)
	}
	idx := -1
	for i, name := range header {
		if strings.TrimSpace(name) == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", core.ErrInvalidArgument.WithMessagef("%s: no column %q", path, column)
	}

	row, err := r.Read()
	if err != nil {
		return "", fmt.Errorf("%s: reading first row: %w", path, err)
	}
	if idx >= len(row) {
		return "", fmt.Errorf("%s column %q: %w", path, column, ErrNoValue)
	}
	return row[idx], nil
}

// ReadExcelCell returns the formatted value of cell (e.g. "B2") in sheet.
func ReadExcelCell(path, sheet, cell string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return "", core.ErrInvalidArgument.WithMessagef("%s: no sheet %q (have %s)",
			path, sheet, strings.Join(f.GetSheetList(), ", "))
	}
	v, err := f.GetCellValue(sheet, cell)
	if err != nil {
		return "", fmt.Errorf("%s %s!%s: %w", path, sheet, cell, err)
	}
	return v, nil
}

// WriteExcelCell sets cell in sheet and saves the workbook. A missing sheet
// is created; a missing file is not.
func WriteExcelCell(path, sheet, cell string, value interface{}) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		logger.Info("sheet %q not found in %s, creating it", sheet, path)
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("%s: creating sheet %q: %w", path, sheet, err)
		}
	}
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("%s %s!%s: %w", path, sheet, cell, err)
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	logger.Info("wrote %v to %s!%s in %s", value, sheet, cell, path)
	return nil
}

// Lookup reads ref from a data file, dispatching on the extension: a column
// name for .csv, a cell reference in sheet for .xlsx. Blank values are an
// error wrapping ErrNoValue.
func Lookup(path, ref, sheet string) (string, error) {
	var (
		value string
		err   error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		if sheet == "" {
			return "", core.ErrInvalidArgument.WithMessage("sheet name is required for Excel files")
		}
		value, err = ReadExcelCell(path, sheet, ref)
	case ".csv":
		value, err = ReadCSVCell(path, ref)
	default:
		return "", core.ErrInvalidArgument.WithMessagef("unsupported data file extension %q", ext)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%s at %q: %w", filepath.Base(path), ref, ErrNoValue)
	}
	return value, nil
}
