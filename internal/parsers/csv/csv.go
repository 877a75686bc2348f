// Package csv provides delimited-text transaction parsing
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/parser"
)

// Column names recognised in the header row (matched case-insensitively)
const (
	colDate            = "date"
	colDescription     = "description"
	colAmount          = "amount"
	colCategory        = "category"
	colMember          = "member"
	colSource          = "source"
	colReferenceNumber = "reference_number"
)

var requiredColumns = []string{colDate, colDescription, colAmount, colCategory}

// Parser implements header-driven CSV parsing with a stateless design.
// Safe for concurrent use without locking.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared CSV parser instance.
func NewParser() *Parser {
	return parserInstance
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return "csv"
}

// FileType returns the tracker file type for CSV imports
func (p *Parser) FileType() domain.FileType {
	return domain.FileTypeCSV
}

// CanParse accepts .csv files, or any file whose first line names the required columns
func (p *Parser) CanParse(path string, header []byte) bool {
	if strings.ToLower(filepath.Ext(path)) == ".csv" {
		return true
	}

	r := newReader(strings.NewReader(string(header)))
	record, err := r.Read()
	if err != nil {
		return false
	}
	return len(missingColumns(indexHeader(record))) == 0
}

// Parse extracts transactions from CSV content whose first row is a header.
// Header problems fail the whole file; row problems drop only that row.
func (p *Parser) Parse(ctx context.Context, r io.Reader) (*parser.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result := parser.NewResult("Row")
	reader := newReader(parser.DecodeText(r))

	headerRecord, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			result.AddError(0, "CSV file is empty or has no headers")
			return result, nil
		}
		if isReadFailure(err) {
			return nil, fmt.Errorf("failed to read CSV content: %w", err)
		}
		result.AddError(0, "CSV parsing error: %v", err)
		return result, nil
	}

	columns := indexHeader(headerRecord)
	if len(columns) == 0 {
		result.AddError(0, "CSV file is empty or has no headers")
		return result, nil
	}
	if missing := missingColumns(columns); len(missing) > 0 {
		result.AddError(0, "Missing required columns: %s", strings.Join(missing, ", "))
		return result, nil
	}

	for i := 0; ; i++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if isReadFailure(err) {
				return nil, fmt.Errorf("failed to read CSV content: %w", err)
			}
			// Malformed structure invalidates the file as a whole
			result.Transactions = []parser.Transaction{}
			result.AddError(0, "CSV parsing error: %v", err)
			return result, nil
		}

		if i%256 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Row 1 is the header
		p.parseRow(result, i+2, row{record: record, columns: columns})
	}

	return result, nil
}

// row gives named access to one CSV record
type row struct {
	record  []string
	columns map[string]int
}

func (r row) get(name string) string {
	idx, ok := r.columns[name]
	if !ok || idx >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[idx])
}

func (r row) blank() bool {
	for _, v := range r.record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// parseRow validates one record and appends it to result, or records why it was dropped.
// Fields are checked in the order date, description, amount, category and the first
// failure is reported.
func (p *Parser) parseRow(result *parser.Result, rowNum int, r row) {
	if r.blank() {
		return
	}

	dateStr := r.get(colDate)
	if dateStr == "" {
		result.AddError(rowNum, "Date is required")
		return
	}
	date, err := parser.ParseDate(dateStr)
	if err != nil {
		result.AddError(rowNum, "Invalid date format '%s'. Use YYYY-MM-DD or MM/DD/YYYY", dateStr)
		return
	}

	description := r.get(colDescription)
	if description == "" {
		result.AddError(rowNum, "Description is required")
		return
	}

	amountStr := r.get(colAmount)
	if amountStr == "" {
		result.AddError(rowNum, "Amount is required")
		return
	}
	amount, err := parser.ParseAmount(amountStr)
	if err != nil {
		result.AddError(rowNum, "Invalid amount '%s'", parser.CleanAmount(amountStr))
		return
	}

	category := r.get(colCategory)
	if category == "" {
		result.AddError(rowNum, "Category is required")
		return
	}

	result.Add(parser.Transaction{
		Date:            date,
		Description:     description,
		Amount:          amount,
		Category:        category,
		Member:          r.get(colMember),
		Source:          r.get(colSource),
		ReferenceNumber: r.get(colReferenceNumber),
	})
}

func newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	return reader
}

// indexHeader maps normalized column names to their position.
// Blank header cells are ignored; the first occurrence of a name wins.
func indexHeader(record []string) map[string]int {
	columns := make(map[string]int, len(record))
	for i, h := range record {
		name := strings.ToLower(strings.TrimSpace(h))
		if name == "" {
			continue
		}
		if _, seen := columns[name]; !seen {
			columns[name] = i
		}
	}
	return columns
}

// missingColumns returns the sorted required columns absent from the header
func missingColumns(columns map[string]int) []string {
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// isReadFailure distinguishes I/O failures from CSV syntax errors
func isReadFailure(err error) bool {
	var parseErr *csv.ParseError
	return !errors.As(err, &parseErr)
}
