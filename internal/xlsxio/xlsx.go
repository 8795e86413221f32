package xlsxio

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"podaudit/internal/annotate"
	"podaudit/internal/sample"
)

// AnnotatedSheet is the sheet name of the single annotated export.
const AnnotatedSheet = "Final Annotated Data"

// ReportSheet is the sheet name inside each per-distributor workbook.
const ReportSheet = "Result"

// recordHeader is the legacy export schema. "Driver id" holds the service
// number, not a driver id; the header is kept so exported files stay drop-in
// compatible with existing downstream consumers.
var recordHeader = []string{"tno", "DSP", "Date", "Quality", "Reason", "Driver id"}

// DecodeTable reads the first sheet of an xlsx stream into a Table. The first
// row is the header; an empty sheet yields a table with no rows.
func DecodeTable(r io.Reader) (*sample.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return &sample.Table{}, nil
	}
	return &sample.Table{Header: rows[0], Rows: rows[1:]}, nil
}

// EncodeTable serializes a table to xlsx bytes under the given sheet name.
func EncodeTable(tbl *sample.Table, sheet string) ([]byte, error) {
	rows := make([][]string, 0, len(tbl.Rows)+1)
	rows = append(rows, tbl.Header)
	rows = append(rows, tbl.Rows...)
	return encodeRows(rows, sheet)
}

// EncodeRecords serializes annotated records in the legacy export schema.
func EncodeRecords(records []annotate.Record, sheet string) ([]byte, error) {
	rows := [][]string{recordHeader}
	for _, r := range records {
		rows = append(rows, []string{r.TNO, r.Distributor, r.Date, r.Quality(), r.Reason, r.ServiceNumber})
	}
	return encodeRows(rows, sheet)
}

// DecodeRecords reads an annotated export back into records.
func DecodeRecords(r io.Reader) ([]annotate.Record, error) {
	tbl, err := DecodeTable(r)
	if err != nil {
		return nil, err
	}

	idx := make([]int, len(recordHeader))
	for i, name := range recordHeader {
		col, err := tbl.RequireColumn(name)
		if err != nil {
			return nil, err
		}
		idx[i] = col
	}

	records := make([]annotate.Record, 0, len(tbl.Rows))
	for i := range tbl.Rows {
		records = append(records, annotate.Record{
			TNO:           tbl.Cell(i, idx[0]),
			Distributor:   tbl.Cell(i, idx[1]),
			Date:          tbl.Cell(i, idx[2]),
			Qualified:     strings.EqualFold(tbl.Cell(i, idx[3]), "Yes"),
			Reason:        tbl.Cell(i, idx[4]),
			ServiceNumber: tbl.Cell(i, idx[5]),
		})
	}
	return records, nil
}

func encodeRows(rows [][]string, sheet string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("name sheet %q: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
