package source

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// readXLSXRecords reads the named sheet (first sheet when empty). The
// first row is the header. Short rows are padded with empty cells, since
// trailing blanks are not stored in the workbook.
func readXLSXRecords(p, sheetName string) ([]string, [][]string, error) {
	f, err := xlsx.OpenFile(p)
	if err != nil {
		return nil, nil, eris.Wrapf(ErrParse, "xlsx: open file: %v", err)
	}

	sheet, err := pickSheet(f, sheetName)
	if err != nil {
		return nil, nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, nil, eris.Wrapf(ErrParse, "xlsx: sheet %q is empty", sheet.Name)
	}

	header := rowStrings(sheet.Rows[0])
	for len(header) > 0 && strings.TrimSpace(header[len(header)-1]) == "" {
		header = header[:len(header)-1]
	}
	if len(header) == 0 {
		return nil, nil, eris.Wrap(ErrParse, "xlsx: missing header row")
	}

	records := make([][]string, 0, len(sheet.Rows)-1)
	for i, row := range sheet.Rows[1:] {
		cells := rowStrings(row)
		for len(cells) > len(header) && cells[len(cells)-1] == "" {
			cells = cells[:len(cells)-1]
		}
		if len(cells) > len(header) {
			return nil, nil, eris.Wrapf(ErrParse, "xlsx: row %d has %d cells, header has %d", i+2, len(cells), len(header))
		}
		for len(cells) < len(header) {
			cells = append(cells, "")
		}
		records = append(records, cells)
	}
	return header, records, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Wrapf(ErrParse, "xlsx: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Wrap(ErrParse, "xlsx: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
