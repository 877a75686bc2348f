package importer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/parser"
)

// Message types of preview advisories
const (
	MessageInfo    = "info"
	MessageWarning = "warning"
)

// PreviewItem is one record as it would be imported
type PreviewItem struct {
	Row                   int             `json:"row"`
	Date                  string          `json:"date"`
	Description           string          `json:"description"`
	Amount                decimal.Decimal `json:"amount"`
	Category              string          `json:"category"`
	Member                string          `json:"member"`
	Source                string          `json:"source"`
	ReferenceNumber       string          `json:"reference_number"`
	IsDuplicate           bool            `json:"is_duplicate"`
	CategoryWillBeCreated bool            `json:"category_will_be_created"`
}

// Message is an advisory shown with a preview
type Message struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PreviewResult describes what importing a record set would do
type PreviewResult struct {
	TotalCount        int           `json:"total_count"`
	PreviewCount      int           `json:"preview_count"`
	PreviewItems      []PreviewItem `json:"preview_items"`
	Warnings          []Message     `json:"warnings"`
	Duplicates        []Duplicate   `json:"duplicates"`
	TotalDuplicates   int           `json:"total_duplicates"`
	WillImport        int           `json:"will_import"`
	MissingCategories []string      `json:"missing_categories"`
}

// Preview reports what Import would do with records without writing anything.
//
// Only the first limit records (the engine's preview limit when limit <= 0) are listed
// with their duplicate flag and whether their category would be created. The duplicate
// total and WillImport cover the full record set.
func (e *Engine) Preview(ctx context.Context, budgetID string, records []parser.Transaction, limit int) (*PreviewResult, error) {
	if limit <= 0 {
		limit = e.previewLimit
	}
	window := records[:min(limit, len(records))]

	result := &PreviewResult{
		TotalCount:        len(records),
		PreviewItems:      make([]PreviewItem, 0, len(window)),
		Warnings:          []Message{},
		Duplicates:        []Duplicate{},
		MissingCategories: []string{},
	}

	missing := map[string]bool{}
	for i, txn := range window {
		row := i + 1

		duplicate, err := e.detector.IsDuplicate(ctx, budgetID, txn)
		if err != nil {
			return nil, err
		}
		date := txn.Date.Format(domain.DateLayout)
		if duplicate {
			result.Duplicates = append(result.Duplicates, Duplicate{
				Row:         row,
				Description: txn.Description,
				Date:        date,
				Amount:      txn.Amount,
			})
		}

		exists, err := e.categoryExists(ctx, txn.Category)
		if err != nil {
			return nil, err
		}
		willCreate := txn.Category != "" && !exists
		if willCreate {
			missing[txn.Category] = true
		}

		result.PreviewItems = append(result.PreviewItems, PreviewItem{
			Row:                   row,
			Date:                  date,
			Description:           txn.Description,
			Amount:                txn.Amount,
			Category:              txn.Category,
			Member:                txn.Member,
			Source:                txn.Source,
			ReferenceNumber:       txn.ReferenceNumber,
			IsDuplicate:           duplicate,
			CategoryWillBeCreated: willCreate,
		})
	}
	result.PreviewCount = len(result.PreviewItems)

	for name := range missing {
		result.MissingCategories = append(result.MissingCategories, name)
	}
	sort.Strings(result.MissingCategories)

	if len(result.MissingCategories) > 0 {
		result.Warnings = append(result.Warnings, Message{
			Type:    MessageInfo,
			Message: "New categories will be created: " + strings.Join(result.MissingCategories, ", "),
		})
	}
	if len(result.Duplicates) > 0 {
		result.Warnings = append(result.Warnings, Message{
			Type:    MessageWarning,
			Message: fmt.Sprintf("%d potential duplicate(s) found (will be skipped)", len(result.Duplicates)),
		})
	}

	total, err := e.detector.CountDuplicates(ctx, budgetID, records)
	if err != nil {
		return nil, err
	}
	result.TotalDuplicates = total
	result.WillImport = result.TotalCount - total

	return result, nil
}

func (e *Engine) categoryExists(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	_, err := e.repo.FindCategoryByName(ctx, name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to look up category %q: %w", name, err)
	}
}
