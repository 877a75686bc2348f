package parser

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blaug210/budget-app/internal/domain"
)

// Parser is the strategy interface for all import file formats
type Parser interface {
	// Name returns parser identifier (e.g., "csv", "xml", "ofx")
	Name() string

	// FileType returns the file type recorded on import trackers
	FileType() domain.FileType

	// CanParse checks if parser can handle this file
	// Returns true if this parser should be used for the file
	CanParse(path string, header []byte) bool

	// Parse extracts normalized transactions from the input.
	// Content problems are collected in the Result; the error return is
	// reserved for read failures and context cancellation.
	Parse(ctx context.Context, r io.Reader) (*Result, error)
}

// Transaction is the normalized record shared by all parsers and the importer
type Transaction struct {
	Date            time.Time
	Description     string
	Amount          decimal.Decimal // Positive=income, Negative=expense
	Category        string
	Member          string
	Source          string
	ReferenceNumber string
}

// RowError is an error or warning tied to a 1-based row or element index.
// Row 0 marks a file-level problem.
type RowError struct {
	Row     int
	Message string
}

// Result holds parsed transactions in input order plus collected problems
type Result struct {
	Transactions []Transaction
	Errors       []RowError
	Warnings     []RowError

	rowLabel string
}

// NewResult creates an empty result whose row messages are prefixed with rowLabel
// (e.g., "Row" for delimited text, "Transaction" for element based formats)
func NewResult(rowLabel string) *Result {
	return &Result{
		Transactions: []Transaction{},
		Errors:       []RowError{},
		Warnings:     []RowError{},
		rowLabel:     rowLabel,
	}
}

// AddError records a fatal problem; the offending record is not included
func (r *Result) AddError(row int, format string, args ...any) {
	r.Errors = append(r.Errors, RowError{Row: row, Message: fmt.Sprintf(format, args...)})
}

// AddWarning records a non-fatal problem
func (r *Result) AddWarning(row int, format string, args ...any) {
	r.Warnings = append(r.Warnings, RowError{Row: row, Message: fmt.Sprintf(format, args...)})
}

// Add appends a normalized transaction
func (r *Result) Add(t Transaction) {
	r.Transactions = append(r.Transactions, t)
}

// HasErrors reports whether any error was collected
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// ErrorMessages returns formatted error strings in collection order
func (r *Result) ErrorMessages() []string {
	return r.format(r.Errors)
}

// WarningMessages returns formatted warning strings in collection order
func (r *Result) WarningMessages() []string {
	return r.format(r.Warnings)
}

func (r *Result) format(issues []RowError) []string {
	msgs := make([]string, len(issues))
	for i, issue := range issues {
		msgs[i] = r.formatOne(issue)
	}
	return msgs
}

func (r *Result) formatOne(issue RowError) string {
	if issue.Row == 0 || r.rowLabel == "" {
		return issue.Message
	}
	return fmt.Sprintf("%s %d: %s", r.rowLabel, issue.Row, issue.Message)
}
