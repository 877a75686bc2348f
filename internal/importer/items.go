package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/parser"
	"github.com/blaug210/budget-app/internal/store"
)

// ItemInput is an item entered by hand. Categories, Member and Source are names and are
// created on first use like imported ones.
type ItemInput struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Categories  []string
	Member      string
	Source      string
}

func (in ItemInput) validate() error {
	if in.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return fmt.Errorf("description is required")
	}
	return nil
}

// AddItem stores a manual item. Its sequence number comes from the budget's counter and
// its unique ID is "{budgetID}-{sequence}". Running balances are recomputed.
func (e *Engine) AddItem(ctx context.Context, budgetID string, in ItemInput) (*domain.BudgetItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var item *domain.BudgetItem
	err := e.repo.Atomic(ctx, func(ctx context.Context) error {
		seq, err := e.repo.NextSequenceNumber(ctx, budgetID)
		if err != nil {
			return err
		}

		date := parser.CalendarDate(in.Date)
		item = &domain.BudgetItem{
			UniqueID:       store.ItemUniqueID(budgetID, seq),
			SequenceNumber: seq,
			BudgetID:       budgetID,
			Date:           date,
			PostedDate:     date,
			Description:    strings.TrimSpace(in.Description),
			Amount:         in.Amount,
		}
		if err := e.resolveRefs(ctx, item, in); err != nil {
			return err
		}
		if err := e.repo.CreateItem(ctx, item); err != nil {
			return err
		}

		categoryIDs, err := e.resolveCategories(ctx, budgetID, in.Categories)
		if err != nil {
			return err
		}
		if err := e.repo.SetItemCategories(ctx, item.ID, categoryIDs); err != nil {
			return err
		}
		item.CategoryIDs = categoryIDs

		_, err = e.RecalculateRunningBalances(ctx, budgetID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add item %q: %w", in.Description, err)
	}
	e.logger.Info("item added", "budget", budgetID, "item", item.UniqueID)
	return item, nil
}

// UpdateItem replaces an item's date, description, amount, member and source. Categories
// are replaced only when in.Categories is non-empty; an empty member or source clears it.
func (e *Engine) UpdateItem(ctx context.Context, itemID string, in ItemInput) (*domain.BudgetItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var item *domain.BudgetItem
	err := e.repo.Atomic(ctx, func(ctx context.Context) error {
		var err error
		if item, err = e.repo.GetItem(ctx, itemID); err != nil {
			return err
		}

		item.Date = parser.CalendarDate(in.Date)
		item.PostedDate = item.Date
		item.Description = strings.TrimSpace(in.Description)
		item.Amount = in.Amount
		item.MemberID, item.SourceID = nil, nil
		if err := e.resolveRefs(ctx, item, in); err != nil {
			return err
		}
		if err := e.repo.UpdateItem(ctx, item); err != nil {
			return err
		}

		if len(in.Categories) > 0 {
			categoryIDs, err := e.resolveCategories(ctx, item.BudgetID, in.Categories)
			if err != nil {
				return err
			}
			if err := e.repo.SetItemCategories(ctx, item.ID, categoryIDs); err != nil {
				return err
			}
			item.CategoryIDs = categoryIDs
		}

		_, err = e.RecalculateRunningBalances(ctx, item.BudgetID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update item %s: %w", itemID, err)
	}
	return item, nil
}

// DeleteItem removes an item and recomputes the running balances of its budget
func (e *Engine) DeleteItem(ctx context.Context, itemID string) error {
	err := e.repo.Atomic(ctx, func(ctx context.Context) error {
		item, err := e.repo.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := e.repo.DeleteItem(ctx, itemID); err != nil {
			return err
		}
		_, err = e.RecalculateRunningBalances(ctx, item.BudgetID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete item %s: %w", itemID, err)
	}
	return nil
}

func (e *Engine) resolveRefs(ctx context.Context, item *domain.BudgetItem, in ItemInput) error {
	member, err := e.resolver.Member(ctx, item.BudgetID, strings.TrimSpace(in.Member))
	if err != nil {
		return err
	}
	if member != nil {
		item.MemberID = &member.ID
	}
	source, err := e.resolver.Source(ctx, item.BudgetID, strings.TrimSpace(in.Source), in.Amount)
	if err != nil {
		return err
	}
	if source != nil {
		item.SourceID = &source.ID
	}
	return nil
}

func (e *Engine) resolveCategories(ctx context.Context, budgetID string, names []string) ([]string, error) {
	var ids []string
	seen := map[string]bool{}
	for _, name := range names {
		category, err := e.resolver.Category(ctx, budgetID, strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		if category == nil || seen[category.ID] {
			continue
		}
		seen[category.ID] = true
		ids = append(ids, category.ID)
	}
	return ids, nil
}
