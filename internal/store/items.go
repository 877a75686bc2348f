package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blaug210/budget-app/internal/dedup"
	"github.com/blaug210/budget-app/internal/domain"
)

// ItemUniqueID is the unique ID of an item entered or copied into a budget rather than
// imported. Format: "{budgetID}-{sequence}"
func ItemUniqueID(budgetID string, sequence int64) string {
	return fmt.Sprintf("%s-%d", budgetID, sequence)
}

// FindDuplicateItem reports whether the budget holds an item with the same date, amount
// (at storage scale) and description. The fingerprint index narrows the search and the
// column comparison rules out hash collisions.
func (s *Store) FindDuplicateItem(ctx context.Context, budgetID string, date time.Time, amount decimal.Decimal, description string) (bool, error) {
	var exists bool
	err := s.conn(ctx).QueryRowContext(ctx, `
	SELECT EXISTS(
		SELECT 1 FROM budget_items
		WHERE budget_id = ? AND fingerprint = ? AND date = ? AND amount = ? AND description = ?
	)`,
		budgetID,
		dedup.Fingerprint(date, amount, description),
		date.Format(domain.DateLayout),
		amount.StringFixed(dedup.AmountScale),
		description,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up duplicate item: %w", err)
	}
	return exists, nil
}

// CreateItem inserts an item. Amounts are stored rounded to two decimal places and the
// fingerprint is derived from date, amount and description when not already set.
func (s *Store) CreateItem(ctx context.Context, item *domain.BudgetItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.Amount = item.Amount.Round(dedup.AmountScale)
	item.RunningBalance = item.RunningBalance.Round(dedup.AmountScale)
	if item.PostedDate.IsZero() {
		item.PostedDate = item.Date
	}
	if item.Fingerprint == "" {
		item.Fingerprint = dedup.Fingerprint(item.Date, item.Amount, item.Description)
	}

	now := s.timestamp()
	_, err := s.conn(ctx).ExecContext(ctx, `
	INSERT INTO budget_items(
		id, unique_id, sequence_number, budget_id, date, posted_date, description, amount,
		running_balance, member_id, source_id, imported, import_source, reference_number,
		fingerprint, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.UniqueID, item.SequenceNumber, item.BudgetID,
		item.Date.Format(domain.DateLayout), item.PostedDate.Format(domain.DateLayout),
		item.Description, item.Amount.StringFixed(dedup.AmountScale),
		item.RunningBalance.StringFixed(dedup.AmountScale),
		nullString(item.MemberID), nullString(item.SourceID),
		item.Imported, item.ImportSource, item.ReferenceNumber,
		item.Fingerprint, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("item %s: %w", item.UniqueID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create item %q: %w", item.Description, err)
	}
	item.CreatedAt, _ = parseTimestamp(now)
	item.UpdatedAt = item.CreatedAt
	return nil
}

// AddItemCategory links a category to an item
func (s *Store) AddItemCategory(ctx context.Context, itemID, categoryID string) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
	INSERT OR IGNORE INTO budget_item_categories(item_id, category_id) VALUES (?, ?)`, itemID, categoryID)
	if err != nil {
		return fmt.Errorf("failed to link category %s to item %s: %w", categoryID, itemID, err)
	}
	return nil
}

const itemColumns = `id, unique_id, sequence_number, budget_id, date, posted_date, description, amount,
	running_balance, member_id, source_id, imported, import_source, reference_number, fingerprint,
	created_at, updated_at`

// ListItems returns the budget's items ordered by date, then sequence number, with their
// category IDs
func (s *Store) ListItems(ctx context.Context, budgetID string) ([]domain.BudgetItem, error) {
	q := s.conn(ctx)
	rows, err := q.QueryContext(ctx, `SELECT `+itemColumns+` FROM budget_items
	WHERE budget_id = ?
	ORDER BY date ASC, sequence_number ASC`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items of budget %s: %w", budgetID, err)
	}
	defer rows.Close()

	var items []domain.BudgetItem
	index := map[string]int{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		index[item.ID] = len(items)
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	catRows, err := q.QueryContext(ctx, `
	SELECT ic.item_id, ic.category_id
	FROM budget_item_categories ic JOIN budget_items i ON i.id = ic.item_id
	WHERE i.budget_id = ?
	ORDER BY ic.item_id, ic.category_id`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list item categories of budget %s: %w", budgetID, err)
	}
	defer catRows.Close()

	for catRows.Next() {
		var itemID, categoryID string
		if err := catRows.Scan(&itemID, &categoryID); err != nil {
			return nil, err
		}
		if i, ok := index[itemID]; ok {
			items[i].CategoryIDs = append(items[i].CategoryIDs, categoryID)
		}
	}
	return items, catRows.Err()
}

// GetItem returns the item with id and its category IDs, or domain.ErrNotFound
func (s *Store) GetItem(ctx context.Context, id string) (*domain.BudgetItem, error) {
	q := s.conn(ctx)
	item, err := scanItem(q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM budget_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
	SELECT category_id FROM budget_item_categories WHERE item_id = ? ORDER BY category_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories of item %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var categoryID string
		if err := rows.Scan(&categoryID); err != nil {
			return nil, err
		}
		item.CategoryIDs = append(item.CategoryIDs, categoryID)
	}
	return item, rows.Err()
}

// UpdateItem rewrites the editable fields of an item: dates, description, amount, member
// and source. The fingerprint follows the new date, amount and description.
func (s *Store) UpdateItem(ctx context.Context, item *domain.BudgetItem) error {
	item.Amount = item.Amount.Round(dedup.AmountScale)
	if item.PostedDate.IsZero() {
		item.PostedDate = item.Date
	}
	item.Fingerprint = dedup.Fingerprint(item.Date, item.Amount, item.Description)

	now := s.timestamp()
	res, err := s.conn(ctx).ExecContext(ctx, `
	UPDATE budget_items
	SET date = ?, posted_date = ?, description = ?, amount = ?, member_id = ?, source_id = ?,
		fingerprint = ?, updated_at = ?
	WHERE id = ?`,
		item.Date.Format(domain.DateLayout), item.PostedDate.Format(domain.DateLayout),
		item.Description, item.Amount.StringFixed(dedup.AmountScale),
		nullString(item.MemberID), nullString(item.SourceID),
		item.Fingerprint, now, item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update item %s: %w", item.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("item %s: %w", item.ID, domain.ErrNotFound)
	}
	item.UpdatedAt, _ = parseTimestamp(now)
	return nil
}

// SetItemCategories replaces the item's categories with categoryIDs
func (s *Store) SetItemCategories(ctx context.Context, itemID string, categoryIDs []string) error {
	return s.Atomic(ctx, func(ctx context.Context) error {
		if _, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM budget_item_categories WHERE item_id = ?`, itemID); err != nil {
			return fmt.Errorf("failed to clear categories of item %s: %w", itemID, err)
		}
		for _, id := range categoryIDs {
			if err := s.AddItemCategory(ctx, itemID, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteItem removes an item with its category links
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM budget_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// UpdateRunningBalance sets the running balance of one item
func (s *Store) UpdateRunningBalance(ctx context.Context, itemID string, balance decimal.Decimal) error {
	res, err := s.conn(ctx).ExecContext(ctx, `
	UPDATE budget_items SET running_balance = ?, updated_at = ? WHERE id = ?`,
		balance.StringFixed(dedup.AmountScale), s.timestamp(), itemID)
	if err != nil {
		return fmt.Errorf("failed to update running balance of item %s: %w", itemID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("item %s: %w", itemID, domain.ErrNotFound)
	}
	return nil
}

func scanItem(row scanner) (*domain.BudgetItem, error) {
	var (
		item                   domain.BudgetItem
		date, postedDate       string
		amount, runningBalance string
		memberID, sourceID     sql.NullString
		createdAt, updatedAt   string
	)
	if err := row.Scan(
		&item.ID, &item.UniqueID, &item.SequenceNumber, &item.BudgetID, &date, &postedDate,
		&item.Description, &amount, &runningBalance, &memberID, &sourceID, &item.Imported,
		&item.ImportSource, &item.ReferenceNumber, &item.Fingerprint, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if item.Date, err = time.Parse(domain.DateLayout, date); err != nil {
		return nil, fmt.Errorf("item %s has invalid date %q: %w", item.ID, date, err)
	}
	if item.PostedDate, err = time.Parse(domain.DateLayout, postedDate); err != nil {
		return nil, fmt.Errorf("item %s has invalid posted date %q: %w", item.ID, postedDate, err)
	}
	if item.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("item %s has invalid amount %q: %w", item.ID, amount, err)
	}
	if item.RunningBalance, err = decimal.NewFromString(runningBalance); err != nil {
		return nil, fmt.Errorf("item %s has invalid running balance %q: %w", item.ID, runningBalance, err)
	}
	if memberID.Valid {
		item.MemberID = &memberID.String
	}
	if sourceID.Valid {
		item.SourceID = &sourceID.String
	}
	if item.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if item.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &item, nil
}
