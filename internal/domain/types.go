package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned by lookups that match no row
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a uniquely named entity is created twice
	ErrAlreadyExists = errors.New("already exists")
)

// DateLayout is the calendar date format used for storage and display
const DateLayout = "2006-01-02"

// FileType identifies the format of an imported file.
// Use ValidateFileType to ensure validity before use.
type FileType string

const (
	FileTypeCSV     FileType = "csv"
	FileTypeXML     FileType = "xml"
	FileTypeOFX     FileType = "ofx"
	FileTypeQuicken FileType = "quicken"
	FileTypeExcel   FileType = "excel"
	FileTypeJSON    FileType = "json"
)

// SourceType classifies a funding source.
// Use ValidateSourceType to ensure validity before use.
type SourceType string

const (
	SourceTypeIncome   SourceType = "income"
	SourceTypeTransfer SourceType = "transfer"
	SourceTypeOther    SourceType = "other"
)

var (
	validFileTypes = map[FileType]struct{}{
		FileTypeCSV: {}, FileTypeXML: {}, FileTypeOFX: {},
		FileTypeQuicken: {}, FileTypeExcel: {}, FileTypeJSON: {},
	}

	validSourceTypes = map[SourceType]struct{}{
		SourceTypeIncome: {}, SourceTypeTransfer: {}, SourceTypeOther: {},
	}
)

// BudgetGroup organizes budgets into a hierarchy
type BudgetGroup struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parentId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Budget is a named container of items with its own sequence counter and tag sets
type Budget struct {
	ID                    string    `json:"id"`
	GroupID               string    `json:"groupId"`
	Name                  string    `json:"name"`
	Notes                 string    `json:"notes,omitempty"`
	CurrentSequenceNumber int64     `json:"currentSequenceNumber"`
	IsCopy                bool      `json:"isCopy"`
	IsWhatIf              bool      `json:"isWhatIf"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// Category is a shared reference entity, unique by name
type Category struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	ParentID    *string `json:"parentId,omitempty"`
}

// Member is a person associated with transactions, unique by name
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Source is a funding origin, unique by name
type Source struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type SourceType `json:"type"`
}

// BudgetItem is one income or expense record within a budget.
//
// Sign convention:
//
//	Positive = income/inflow
//	Negative = expense/outflow
type BudgetItem struct {
	ID              string          `json:"id"`
	UniqueID        string          `json:"uniqueId"`
	SequenceNumber  int64           `json:"sequenceNumber"`
	BudgetID        string          `json:"budgetId"`
	Date            time.Time       `json:"date"`
	PostedDate      time.Time       `json:"postedDate"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	RunningBalance  decimal.Decimal `json:"runningBalance"`
	MemberID        *string         `json:"memberId,omitempty"`
	SourceID        *string         `json:"sourceId,omitempty"`
	CategoryIDs     []string        `json:"categoryIds,omitempty"`
	Imported        bool            `json:"imported"`
	ImportSource    string          `json:"importSource,omitempty"`
	ReferenceNumber string          `json:"referenceNumber,omitempty"`
	Fingerprint     string          `json:"-"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// IsIncome reports whether the item is an inflow
func (i *BudgetItem) IsIncome() bool { return i.Amount.IsPositive() }

// IsExpense reports whether the item is an outflow
func (i *BudgetItem) IsExpense() bool { return i.Amount.IsNegative() }

// IsBeginningBalance reports whether the item seeds the budget's opening balance.
// Such items are excluded from income and expense totals.
func (i *BudgetItem) IsBeginningBalance() bool {
	return strings.Contains(strings.ToLower(i.Description), "beginning balance")
}

// ImportTracker is the audit record of one bulk import run
type ImportTracker struct {
	ID              string    `json:"id"`
	BudgetID        string    `json:"budgetId"`
	ImportDate      time.Time `json:"importDate"`
	FileName        string    `json:"fileName"`
	FileType        FileType  `json:"fileType"`
	ItemsImported   int       `json:"itemsImported"`
	DuplicatesFound int       `json:"duplicatesFound"`
	SourceName      string    `json:"sourceName"`
	Notes           string    `json:"notes,omitempty"`
}

// SuccessRate returns the share of non-duplicate rows, as a percentage
func (t *ImportTracker) SuccessRate() float64 {
	total := t.ItemsImported + t.DuplicatesFound
	if total == 0 {
		return 0
	}
	return float64(t.ItemsImported) / float64(total) * 100
}

// BudgetTotals summarizes the items of one budget
type BudgetTotals struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Balance  decimal.Decimal `json:"balance"`
	Items    int             `json:"items"`
}

// NewBudgetGroup creates a validated budget group
func NewBudgetGroup(id, name string, parentID *string) (*BudgetGroup, error) {
	if id == "" {
		return nil, fmt.Errorf("group ID cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("group name cannot be empty")
	}
	if parentID != nil && *parentID == id {
		return nil, fmt.Errorf("group %s cannot be its own parent", id)
	}

	return &BudgetGroup{
		ID:       id,
		Name:     strings.TrimSpace(name),
		ParentID: parentID,
	}, nil
}

// NewBudget creates a validated budget with a zero sequence counter
func NewBudget(id, groupID, name string) (*Budget, error) {
	if id == "" {
		return nil, fmt.Errorf("budget ID cannot be empty")
	}
	if groupID == "" {
		return nil, fmt.Errorf("group ID cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("budget name cannot be empty")
	}

	return &Budget{
		ID:      id,
		GroupID: groupID,
		Name:    strings.TrimSpace(name),
	}, nil
}

// CopyKind tells a plain budget copy from a what-if scenario
type CopyKind string

const (
	CopyKindCopy   CopyKind = "copy"
	CopyKindWhatIf CopyKind = "whatif"
)

// CopyName is the name a copy of the budget named name gets when none is given
func (k CopyKind) CopyName(name string) string {
	if k == CopyKindWhatIf {
		return name + " - What-If"
	}
	return name + " - Copy"
}

// NewImportTracker creates a tracker with zero counts
func NewImportTracker(id, budgetID, fileName string, fileType FileType, sourceName string) (*ImportTracker, error) {
	if id == "" {
		return nil, fmt.Errorf("tracker ID cannot be empty")
	}
	if budgetID == "" {
		return nil, fmt.Errorf("budget ID cannot be empty")
	}
	if fileName == "" {
		return nil, fmt.Errorf("file name cannot be empty")
	}
	if !ValidateFileType(fileType) {
		return nil, fmt.Errorf("invalid file type: %s", fileType)
	}

	return &ImportTracker{
		ID:         id,
		BudgetID:   budgetID,
		FileName:   fileName,
		FileType:   fileType,
		SourceName: sourceName,
	}, nil
}

// ValidateFileType checks if file type is valid
func ValidateFileType(t FileType) bool {
	_, ok := validFileTypes[t]
	return ok
}

// ValidateSourceType checks if source type is valid
func ValidateSourceType(t SourceType) bool {
	_, ok := validSourceTypes[t]
	return ok
}
