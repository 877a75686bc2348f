package transform

import (
	"fmt"
	"strings"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/parser"
)

// ItemRefs holds the resolved entity IDs of one record
type ItemRefs struct {
	MemberID *string
	SourceID *string
}

// ToBudgetItem converts a normalized record into the budget item the import engine
// persists. The posted date equals the transaction date and the item is flagged as
// imported from fileName. The description is stored verbatim so that duplicate
// detection on a later run compares the same text.
func ToBudgetItem(txn parser.Transaction, budgetID, trackerID string, sequence int64, fileName string, refs ItemRefs) (*domain.BudgetItem, error) {
	if budgetID == "" {
		return nil, fmt.Errorf("budget ID cannot be empty")
	}
	if trackerID == "" {
		return nil, fmt.Errorf("tracker ID cannot be empty")
	}
	if sequence <= 0 {
		return nil, fmt.Errorf("sequence number must be positive, got %d", sequence)
	}

	if strings.TrimSpace(txn.Description) == "" {
		return nil, fmt.Errorf("transaction description cannot be empty")
	}

	date := parser.CalendarDate(txn.Date)

	return &domain.BudgetItem{
		UniqueID:        UniqueID(trackerID, sequence),
		SequenceNumber:  sequence,
		BudgetID:        budgetID,
		Date:            date,
		PostedDate:      date,
		Description:     txn.Description,
		Amount:          txn.Amount,
		MemberID:        refs.MemberID,
		SourceID:        refs.SourceID,
		Imported:        true,
		ImportSource:    fileName,
		ReferenceNumber: txn.ReferenceNumber,
	}, nil
}
