package validate

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/parser"
)

// ValidationResult contains all validation errors and warnings for a budget's items
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// ValidationError represents a validation error
type ValidationError struct {
	Entity  string // "item" or "transaction"
	ID      string
	Field   string
	Value   string
	Message string
}

// ValidationWarning represents a non-critical validation issue
type ValidationWarning struct {
	Entity  string
	ID      string
	Field   string
	Value   string
	Message string
}

// Valid reports whether no errors were found
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

func (e ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s: %s", e.Entity, e.Field, e.Message)
	}
	return fmt.Sprintf("%s %s %s: %s", e.Entity, e.ID, e.Field, e.Message)
}

// Transaction checks that a normalized record carries every required field.
// Parsers drop such records already; the import engine calls this as a guard for
// records that come from elsewhere.
func Transaction(txn parser.Transaction) error {
	switch {
	case txn.Date.IsZero():
		return fmt.Errorf("Date is required")
	case strings.TrimSpace(txn.Description) == "":
		return fmt.Errorf("Description is required")
	case strings.TrimSpace(txn.Category) == "":
		return fmt.Errorf("Category is required")
	}
	return nil
}

// ValidateItems checks the stored items of one budget, in ListItems order
// (date, then sequence number). It reports missing fields, sequence numbers used
// twice, unique IDs used twice and running balances that do not equal the sum of
// amounts up to that item. Zero amounts are reported as warnings.
func ValidateItems(items []domain.BudgetItem) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}

	sequenceNumbers := make(map[int64]string)
	uniqueIDs := make(map[string]bool)
	balance := decimal.Zero

	for _, item := range items {
		if item.UniqueID == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "item",
				ID:      item.ID,
				Field:   "UniqueID",
				Message: "item unique ID cannot be empty",
			})
		} else {
			if uniqueIDs[item.UniqueID] {
				result.Errors = append(result.Errors, ValidationError{
					Entity:  "item",
					ID:      item.ID,
					Field:   "UniqueID",
					Value:   item.UniqueID,
					Message: "duplicate unique ID",
				})
			}
			uniqueIDs[item.UniqueID] = true
		}

		if strings.TrimSpace(item.Description) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "item",
				ID:      item.ID,
				Field:   "Description",
				Message: "item description cannot be empty",
			})
		}

		if item.Date.IsZero() {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "item",
				ID:      item.ID,
				Field:   "Date",
				Message: "item date cannot be empty",
			})
		}

		// Check for reused sequence numbers
		if prev, seen := sequenceNumbers[item.SequenceNumber]; seen {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "item",
				ID:      item.ID,
				Field:   "SequenceNumber",
				Value:   fmt.Sprintf("%d", item.SequenceNumber),
				Message: fmt.Sprintf("sequence number already used by item %s", prev),
			})
		}
		sequenceNumbers[item.SequenceNumber] = item.ID

		if item.Amount.IsZero() {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Entity:  "item",
				ID:      item.ID,
				Field:   "Amount",
				Value:   "0",
				Message: "item amount is zero",
			})
		}

		balance = balance.Add(item.Amount)
		if !item.RunningBalance.Equal(balance) {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "item",
				ID:      item.ID,
				Field:   "RunningBalance",
				Value:   item.RunningBalance.StringFixed(2),
				Message: fmt.Sprintf("running balance should be %s", balance.StringFixed(2)),
			})
		}
	}

	return result
}
