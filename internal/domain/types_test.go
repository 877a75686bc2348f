package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateFileType(t *testing.T) {
	t.Run("valid file types", func(t *testing.T) {
		validTypes := []FileType{
			FileTypeCSV,
			FileTypeXML,
			FileTypeOFX,
			FileTypeQuicken,
			FileTypeExcel,
			FileTypeJSON,
		}

		for _, typ := range validTypes {
			if !ValidateFileType(typ) {
				t.Errorf("Expected %s to be valid", typ)
			}
		}
	})

	t.Run("invalid file types", func(t *testing.T) {
		invalidCases := []FileType{
			"",     // empty
			"CSV",  // wrong case
			"qfx",  // alias, not a stored type
			"csv ", // trailing space
			"pdf",  // unsupported
		}

		for _, typ := range invalidCases {
			if ValidateFileType(typ) {
				t.Errorf("Expected %s to be invalid", typ)
			}
		}
	})
}

func TestValidateSourceType(t *testing.T) {
	for _, typ := range []SourceType{SourceTypeIncome, SourceTypeTransfer, SourceTypeOther} {
		if !ValidateSourceType(typ) {
			t.Errorf("Expected %s to be valid", typ)
		}
	}
	for _, typ := range []SourceType{"", "Income", "expense"} {
		if ValidateSourceType(typ) {
			t.Errorf("Expected %s to be invalid", typ)
		}
	}
}

func TestNewBudgetGroup(t *testing.T) {
	parent := "grp-1"
	self := "grp-2"

	tests := []struct {
		name     string
		id       string
		title    string
		parentID *string
		wantErr  bool
	}{
		{name: "root group", id: "grp-1", title: "Household"},
		{name: "child group", id: "grp-2", title: "  Kids ", parentID: &parent},
		{name: "empty id", id: "", title: "Household", wantErr: true},
		{name: "blank name", id: "grp-1", title: "   ", wantErr: true},
		{name: "own parent", id: "grp-2", title: "Loop", parentID: &self, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewBudgetGroup(tt.id, tt.title, tt.parentID)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got group %+v", g)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if g.Name != "Household" && g.Name != "Kids" {
				t.Errorf("name was not trimmed: %q", g.Name)
			}
		})
	}
}

func TestNewBudget(t *testing.T) {
	b, err := NewBudget("b-1", "grp-1", "Groceries 2024")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.CurrentSequenceNumber != 0 {
		t.Errorf("expected zero sequence counter, got %d", b.CurrentSequenceNumber)
	}

	if _, err := NewBudget("b-1", "", "x"); err == nil {
		t.Error("expected error for missing group")
	}
	if _, err := NewBudget("", "grp-1", "x"); err == nil {
		t.Error("expected error for missing id")
	}
}

func TestNewImportTracker(t *testing.T) {
	tr, err := NewImportTracker("t-1", "b-1", "bank.csv", FileTypeCSV, "Bulk Upload: bank.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.ItemsImported != 0 || tr.DuplicatesFound != 0 {
		t.Errorf("expected zero counts, got %d/%d", tr.ItemsImported, tr.DuplicatesFound)
	}

	if _, err := NewImportTracker("t-1", "b-1", "bank.pdf", "pdf", ""); err == nil {
		t.Error("expected error for invalid file type")
	}
	if _, err := NewImportTracker("t-1", "b-1", "", FileTypeCSV, ""); err == nil {
		t.Error("expected error for empty file name")
	}
}

func TestImportTracker_SuccessRate(t *testing.T) {
	tests := []struct {
		name       string
		imported   int
		duplicates int
		want       float64
	}{
		{name: "empty", want: 0},
		{name: "all imported", imported: 4, want: 100},
		{name: "half duplicates", imported: 2, duplicates: 2, want: 50},
		{name: "all duplicates", duplicates: 3, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := ImportTracker{ItemsImported: tt.imported, DuplicatesFound: tt.duplicates}
			if got := tr.SuccessRate(); got != tt.want {
				t.Errorf("SuccessRate() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestBudgetItem_Direction(t *testing.T) {
	income := BudgetItem{Amount: decimal.RequireFromString("10.00")}
	expense := BudgetItem{Amount: decimal.RequireFromString("-3.50")}
	zero := BudgetItem{Amount: decimal.Zero}

	if !income.IsIncome() || income.IsExpense() {
		t.Error("positive amount should be income")
	}
	if !expense.IsExpense() || expense.IsIncome() {
		t.Error("negative amount should be expense")
	}
	if zero.IsIncome() || zero.IsExpense() {
		t.Error("zero amount is neither income nor expense")
	}
}

func TestBudgetItem_IsBeginningBalance(t *testing.T) {
	if !(&BudgetItem{Description: "Beginning Balance"}).IsBeginningBalance() {
		t.Error("expected beginning balance item to be detected")
	}
	if (&BudgetItem{Description: "Paycheck"}).IsBeginningBalance() {
		t.Error("paycheck is not a beginning balance")
	}
}
