package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rpattn/retaildwh/internal/domain"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// ErrUnsupportedFormat is returned when an input file is not supported.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// ReadFile loads source rows from a CSV or XLSX file, dispatching on the
// extension.
func ReadFile(path string) ([]domain.SourceRow, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv":
		return ParseCSV(bytes.NewReader(payload))
	case ".xlsx":
		return ParseXLSX(bytes.NewReader(payload))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// ParseCSV reads source rows from CSV data. Retail exports predate UTF-8
// discipline, so payloads that do not decode as UTF-8 are retried as
// ISO-8859-1 rather than rejected.
func ParseCSV(r io.Reader) ([]domain.SourceRow, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	payload = bytes.TrimPrefix(payload, byteOrderMark)

	if !utf8.Valid(payload) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode csv as ISO-8859-1: %w", err)
		}
		payload = decoded
	}

	csvReader := csv.NewReader(bufio.NewReader(bytes.NewReader(payload)))
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	return rowsFromRecords(records)
}

// ParseXLSX reads source rows from the first sheet of an XLSX workbook.
func ParseXLSX(r io.Reader) ([]domain.SourceRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("xlsx file has no sheets")
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return rowsFromRecords(records)
}

// columnAliases maps normalized header labels to source fields. Exports name
// the same columns differently across systems.
var columnAliases = map[string]string{
	"invoiceno":   "invoice_no",
	"invoice":     "invoice_no",
	"invoiceid":   "invoice_no",
	"stockcode":   "stock_code",
	"productcode": "stock_code",
	"description": "description",
	"quantity":    "quantity",
	"qty":         "quantity",
	"unitprice":   "unit_price",
	"price":       "unit_price",
	"invoicedate": "timestamp",
	"invoicetime": "timestamp",
	"date":        "timestamp",
	"timestamp":   "timestamp",
	"customerid":  "customer_id",
	"customer":    "customer_id",
	"country":     "country",
}

func rowsFromRecords(records [][]string) ([]domain.SourceRow, error) {
	if len(records) == 0 {
		return nil, errors.New("no rows found in file")
	}

	columns, err := mapHeader(records[0])
	if err != nil {
		return nil, err
	}

	var out []domain.SourceRow
	for idx, record := range records[1:] {
		row := domain.SourceRow{LineNumber: idx + 2}
		for col, field := range columns {
			if col >= len(record) {
				continue
			}
			value := record[col]
			switch field {
			case "invoice_no":
				row.InvoiceNo = value
			case "stock_code":
				row.StockCode = value
			case "description":
				row.Description = value
			case "quantity":
				row.Quantity = value
			case "unit_price":
				row.UnitPrice = value
			case "timestamp":
				row.Timestamp = value
			case "customer_id":
				row.CustomerID = value
			case "country":
				row.Country = value
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func mapHeader(header []string) (map[int]string, error) {
	columns := make(map[int]string, len(header))
	for idx, label := range header {
		key := normalizeLabel(label)
		if field, ok := columnAliases[key]; ok {
			columns[idx] = field
		}
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("no recognizable columns in header %v", header)
	}
	for _, required := range []string{"invoice_no", "stock_code", "timestamp"} {
		if !containsField(columns, required) {
			return nil, fmt.Errorf("source file is missing a %s column", required)
		}
	}
	return columns, nil
}

func normalizeLabel(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func containsField(columns map[int]string, field string) bool {
	for _, f := range columns {
		if f == field {
			return true
		}
	}
	return false
}
