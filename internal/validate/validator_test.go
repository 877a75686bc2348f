package validate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/parser"
)

func item(id string, seq int64, amount, balance string) domain.BudgetItem {
	return domain.BudgetItem{
		ID:             id,
		UniqueID:       "IMP-t-" + id,
		SequenceNumber: seq,
		Date:           time.Date(2024, 1, int(seq), 0, 0, 0, 0, time.UTC),
		Description:    "Item " + id,
		Amount:         decimal.RequireFromString(amount),
		RunningBalance: decimal.RequireFromString(balance),
	}
}

func TestValidateItems_Empty(t *testing.T) {
	result := ValidateItems(nil)

	if len(result.Errors) != 0 {
		t.Errorf("empty budget should have no errors, got %d", len(result.Errors))
	}
	if !result.Valid() {
		t.Error("empty budget should be valid")
	}
}

func TestValidateItems_ConsistentBalances(t *testing.T) {
	items := []domain.BudgetItem{
		item("a", 1, "100.00", "100.00"),
		item("b", 2, "-25.50", "74.50"),
		item("c", 3, "-74.50", "0.00"),
	}

	result := ValidateItems(items)

	if len(result.Errors) != 0 {
		t.Errorf("valid items should have no errors, got %d:", len(result.Errors))
		for _, e := range result.Errors {
			t.Errorf("  - %s", e.Error())
		}
	}
}

func TestValidateItems_Errors(t *testing.T) {
	tests := []struct {
		name      string
		items     []domain.BudgetItem
		wantField string
	}{
		{
			name:      "stale running balance",
			items:     []domain.BudgetItem{item("a", 1, "10", "10"), item("b", 2, "5", "10")},
			wantField: "RunningBalance",
		},
		{
			name: "reused sequence number",
			items: func() []domain.BudgetItem {
				a, b := item("a", 1, "10", "10"), item("b", 2, "5", "15")
				b.SequenceNumber = 1
				return []domain.BudgetItem{a, b}
			}(),
			wantField: "SequenceNumber",
		},
		{
			name: "reused unique ID",
			items: func() []domain.BudgetItem {
				a, b := item("a", 1, "10", "10"), item("b", 2, "5", "15")
				b.UniqueID = a.UniqueID
				return []domain.BudgetItem{a, b}
			}(),
			wantField: "UniqueID",
		},
		{
			name: "empty description",
			items: func() []domain.BudgetItem {
				a := item("a", 1, "10", "10")
				a.Description = "  "
				return []domain.BudgetItem{a}
			}(),
			wantField: "Description",
		},
		{
			name: "missing date",
			items: func() []domain.BudgetItem {
				a := item("a", 1, "10", "10")
				a.Date = time.Time{}
				return []domain.BudgetItem{a}
			}(),
			wantField: "Date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateItems(tt.items)
			if len(result.Errors) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(result.Errors), result.Errors)
			}
			if result.Errors[0].Field != tt.wantField {
				t.Errorf("error field = %q, want %q", result.Errors[0].Field, tt.wantField)
			}
		})
	}
}

func TestValidateItems_ZeroAmountWarning(t *testing.T) {
	result := ValidateItems([]domain.BudgetItem{item("a", 1, "0", "0")})

	if len(result.Errors) != 0 {
		t.Errorf("expected no errors, got %v", result.Errors)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Field != "Amount" {
		t.Errorf("expected one Amount warning, got %v", result.Warnings)
	}
}

func TestTransaction(t *testing.T) {
	valid := parser.Transaction{
		Date:        time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Description: "Lunch",
		Amount:      decimal.RequireFromString("-12.00"),
		Category:    "Food",
	}

	tests := []struct {
		name    string
		mutate  func(*parser.Transaction)
		wantErr string
	}{
		{name: "valid", mutate: func(*parser.Transaction) {}},
		{name: "zero amount is allowed", mutate: func(txn *parser.Transaction) { txn.Amount = decimal.Zero }},
		{name: "missing date", mutate: func(txn *parser.Transaction) { txn.Date = time.Time{} }, wantErr: "Date is required"},
		{name: "blank description", mutate: func(txn *parser.Transaction) { txn.Description = " " }, wantErr: "Description is required"},
		{name: "missing category", mutate: func(txn *parser.Transaction) { txn.Category = "" }, wantErr: "Category is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := valid
			tt.mutate(&txn)
			err := Transaction(txn)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("Transaction() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
