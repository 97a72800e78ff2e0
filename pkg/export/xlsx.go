package export

import (
	"bytes"

	"loaddash/pkg/result"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding exported results.
const SheetName = "Results"

// XLSX encodes records as a single-sheet workbook with the same columns and cell
// text as the CSV export. It returns false and no blob for an empty record set.
func XLSX(records []result.Record) ([]byte, bool, error) {
	if len(records) == 0 {
		return nil, false, nil
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, false, errors.Wrap(err, "failed to name sheet")
	}

	if err := setRow(f, 1, Header); err != nil {
		return nil, false, err
	}
	for i, r := range records {
		if err := setRow(f, i+2, Row(r)); err != nil {
			return nil, false, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, false, errors.Wrap(err, "failed to encode workbook")
	}
	return buf.Bytes(), true, nil
}

func setRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return errors.Wrap(err, "failed to address row")
	}

	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(SheetName, cell, &cells); err != nil {
		return errors.Wrapf(err, "failed to write row %d", row)
	}
	return nil
}
