// Package export writes prediction histories as spreadsheet workbooks.
package export

import (
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/okian/iqscore/internal/domain/model"
)

// Workbook layout constants.
const (
	FileName    = "prediction_history.xlsx"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	SheetName   = "Predictions"

	defaultSheet = "Sheet1"
	columnWidth  = 16
)

// ErrSerialization is returned when a history cannot be written as a workbook.
var ErrSerialization = errors.New("serialization error")

// Header is the first row of every export.
var Header = []string{"Name", "Gender", "Date", "RawScore", "DerivedIQ", "Category", "Outcome"}

// Serialize renders records, in order, as an xlsx workbook. An empty slice
// yields a workbook with only the header row. The records are not modified.
func Serialize(records []model.PredictionRecord) ([]byte, error) {
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrSerialization, i+1, err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(defaultSheet, SheetName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if err := sw.SetColWidth(1, len(Header), columnWidth); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	head := make([]any, len(Header))
	for i, h := range Header {
		head[i] = h
	}
	if err := sw.SetRow("A1", head, excelize.RowOpts{StyleID: bold}); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrSerialization, err)
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		if err := sw.SetRow(cell, row(rec)); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrSerialization, i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return buf.Bytes(), nil
}

func row(rec model.PredictionRecord) []any {
	return []any{
		rec.Name,
		rec.Gender.Label(),
		rec.DateString(),
		rec.RawScore,
		rec.DerivedIQ,
		rec.Category.Label(),
		rec.Outcome.Label(),
	}
}
