// Package dedup provides exact duplicate detection of budget items via SHA256 fingerprinting.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/parser"
)

// AmountScale is the number of decimal places amounts are stored and compared at
const AmountScale = 2

// Fingerprint creates a SHA256 hash of date, amount, and description.
// Format: SHA256("{YYYY-MM-DD}|{amount}|{description}")
// Amount is formatted with 2 decimal places to match storage.
// Description is compared exactly: no case folding or trimming.
func Fingerprint(date time.Time, amount decimal.Decimal, description string) string {
	input := fmt.Sprintf("%s|%s|%s", date.Format(domain.DateLayout), amount.StringFixed(AmountScale), description)

	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// Finder looks up a stored item with identical date, amount and description in a budget
type Finder interface {
	FindDuplicateItem(ctx context.Context, budgetID string, date time.Time, amount decimal.Decimal, description string) (bool, error)
}

// Detector decides whether parsed transactions already exist in a budget
type Detector struct {
	finder Finder
}

// NewDetector returns a detector backed by finder
func NewDetector(finder Finder) *Detector {
	return &Detector{finder: finder}
}

// IsDuplicate reports whether txn matches an item already stored in the budget
func (d *Detector) IsDuplicate(ctx context.Context, budgetID string, txn parser.Transaction) (bool, error) {
	found, err := d.finder.FindDuplicateItem(ctx, budgetID, txn.Date, txn.Amount, txn.Description)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate for %q: %w", txn.Description, err)
	}
	return found, nil
}

// CountDuplicates returns how many of txns match stored items.
// Each transaction is checked against storage only, not against the rest of the batch.
func (d *Detector) CountDuplicates(ctx context.Context, budgetID string, txns []parser.Transaction) (int, error) {
	count := 0
	for _, txn := range txns {
		dup, err := d.IsDuplicate(ctx, budgetID, txn)
		if err != nil {
			return 0, err
		}
		if dup {
			count++
		}
	}
	return count, nil
}
