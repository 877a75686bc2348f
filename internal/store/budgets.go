package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blaug210/budget-app/internal/domain"
)

// CreateGroup inserts a budget group, assigning an ID when none is set
func (s *Store) CreateGroup(ctx context.Context, g *domain.BudgetGroup) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	now := s.timestamp()
	_, err := s.conn(ctx).ExecContext(ctx, `
	INSERT INTO budget_groups(id, name, parent_id, created_at)
	VALUES (?, ?, ?, ?)`, g.ID, g.Name, nullString(g.ParentID), now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("group %q: %w", g.Name, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create group %q: %w", g.Name, err)
	}
	g.CreatedAt, _ = parseTimestamp(now)
	return nil
}

// GetGroup returns the group with id or domain.ErrNotFound
func (s *Store) GetGroup(ctx context.Context, id string) (*domain.BudgetGroup, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `SELECT id, name, parent_id, created_at FROM budget_groups WHERE id = ?`, id)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", id, domain.ErrNotFound)
	}
	return g, err
}

// ListGroups returns all groups ordered by name
func (s *Store) ListGroups(ctx context.Context) ([]domain.BudgetGroup, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `SELECT id, name, parent_id, created_at FROM budget_groups ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var out []domain.BudgetGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// GroupPath returns the names from the root group down to id, joined by " > "
func (s *Store) GroupPath(ctx context.Context, id string) (string, error) {
	path := ""
	seen := map[string]bool{}
	for cur := id; cur != ""; {
		if seen[cur] {
			return "", fmt.Errorf("group %s has a parent cycle", id)
		}
		seen[cur] = true

		g, err := s.GetGroup(ctx, cur)
		if err != nil {
			return "", err
		}
		if path == "" {
			path = g.Name
		} else {
			path = g.Name + " > " + path
		}
		cur = ""
		if g.ParentID != nil {
			cur = *g.ParentID
		}
	}
	return path, nil
}

// CreateBudget inserts a budget with a zero sequence counter
func (s *Store) CreateBudget(ctx context.Context, b *domain.Budget) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := s.timestamp()
	_, err := s.conn(ctx).ExecContext(ctx, `
	INSERT INTO budgets(id, group_id, name, notes, current_sequence_number, is_copy, is_whatif, created_at, updated_at)
	VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`, b.ID, b.GroupID, b.Name, b.Notes, b.IsCopy, b.IsWhatIf, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("budget %q in group %s: %w", b.Name, b.GroupID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create budget %q: %w", b.Name, err)
	}
	b.CurrentSequenceNumber = 0
	b.CreatedAt, _ = parseTimestamp(now)
	b.UpdatedAt = b.CreatedAt
	return nil
}

const budgetColumns = `id, group_id, name, notes, current_sequence_number, is_copy, is_whatif, created_at, updated_at`

// GetBudget returns the budget with id or domain.ErrNotFound
func (s *Store) GetBudget(ctx context.Context, id string) (*domain.Budget, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id)
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("budget %s: %w", id, domain.ErrNotFound)
	}
	return b, err
}

// ListBudgets returns budgets ordered by name; a non-empty groupID filters to that group
func (s *Store) ListBudgets(ctx context.Context, groupID string) ([]domain.Budget, error) {
	query := `SELECT ` + budgetColumns + ` FROM budgets`
	var args []any
	if groupID != "" {
		query += ` WHERE group_id = ?`
		args = append(args, groupID)
	}
	query += ` ORDER BY name, id`

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}
	defer rows.Close()

	var out []domain.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// DeleteBudget removes a budget with its items, trackers and tag links
func (s *Store) DeleteBudget(ctx context.Context, id string) error {
	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete budget %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete budget %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("budget %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// CopyBudget creates a budget in the source budget's group holding a copy of every item,
// with the items' categories and the budget's tag sets. Copied items get fresh IDs and
// sequence numbers from the new budget's counter, in the source's date order, so running
// balances carry over unchanged. An empty name defaults to the kind's copy name.
func (s *Store) CopyBudget(ctx context.Context, srcID, name string, kind domain.CopyKind) (*domain.Budget, error) {
	var dst *domain.Budget
	err := s.Atomic(ctx, func(ctx context.Context) error {
		src, err := s.GetBudget(ctx, srcID)
		if err != nil {
			return err
		}
		if name == "" {
			name = kind.CopyName(src.Name)
		}

		dst, err = domain.NewBudget(uuid.NewString(), src.GroupID, name)
		if err != nil {
			return err
		}
		dst.Notes = src.Notes
		dst.IsCopy = kind == domain.CopyKindCopy
		dst.IsWhatIf = kind == domain.CopyKindWhatIf
		if err := s.CreateBudget(ctx, dst); err != nil {
			return err
		}

		for _, tags := range [][2]string{
			{"budget_categories", "category_id"},
			{"budget_members", "member_id"},
			{"budget_sources", "source_id"},
		} {
			query := fmt.Sprintf(`INSERT INTO %[1]s(budget_id, %[2]s) SELECT ?, %[2]s FROM %[1]s WHERE budget_id = ?`, tags[0], tags[1])
			if _, err := s.conn(ctx).ExecContext(ctx, query, dst.ID, src.ID); err != nil {
				return fmt.Errorf("failed to copy %s of budget %s: %w", tags[0], src.ID, err)
			}
		}

		items, err := s.ListItems(ctx, src.ID)
		if err != nil {
			return err
		}
		for _, item := range items {
			seq, err := s.NextSequenceNumber(ctx, dst.ID)
			if err != nil {
				return err
			}
			cp := item
			cp.ID = ""
			cp.BudgetID = dst.ID
			cp.SequenceNumber = seq
			cp.UniqueID = ItemUniqueID(dst.ID, seq)
			if err := s.CreateItem(ctx, &cp); err != nil {
				return err
			}
			for _, categoryID := range item.CategoryIDs {
				if err := s.AddItemCategory(ctx, cp.ID, categoryID); err != nil {
					return err
				}
			}
		}
		dst.CurrentSequenceNumber = int64(len(items))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dst, nil
}

// NextSequenceNumber atomically increments and returns the budget's sequence counter
func (s *Store) NextSequenceNumber(ctx context.Context, budgetID string) (int64, error) {
	var seq int64
	err := s.conn(ctx).QueryRowContext(ctx, `
	UPDATE budgets SET current_sequence_number = current_sequence_number + 1, updated_at = ?
	WHERE id = ?
	RETURNING current_sequence_number`, s.timestamp(), budgetID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("budget %s: %w", budgetID, domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence number for budget %s: %w", budgetID, err)
	}
	return seq, nil
}

// BudgetTotals sums the budget's items. Beginning balance items count toward the balance
// but not toward income or expenses.
func (s *Store) BudgetTotals(ctx context.Context, budgetID string) (*domain.BudgetTotals, error) {
	items, err := s.ListItems(ctx, budgetID)
	if err != nil {
		return nil, err
	}

	totals := &domain.BudgetTotals{
		Income:   decimal.Zero,
		Expenses: decimal.Zero,
		Balance:  decimal.Zero,
		Items:    len(items),
	}
	for i := range items {
		item := &items[i]
		totals.Balance = totals.Balance.Add(item.Amount)
		if item.IsBeginningBalance() {
			continue
		}
		if item.IsIncome() {
			totals.Income = totals.Income.Add(item.Amount)
		} else if item.IsExpense() {
			totals.Expenses = totals.Expenses.Add(item.Amount.Abs())
		}
	}
	return totals, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanGroup(row scanner) (*domain.BudgetGroup, error) {
	var (
		g         domain.BudgetGroup
		parentID  sql.NullString
		createdAt string
	)
	if err := row.Scan(&g.ID, &g.Name, &parentID, &createdAt); err != nil {
		return nil, err
	}
	if parentID.Valid {
		g.ParentID = &parentID.String
	}
	var err error
	if g.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	return &g, nil
}

func scanBudget(row scanner) (*domain.Budget, error) {
	var (
		b                    domain.Budget
		createdAt, updatedAt string
	)
	if err := row.Scan(&b.ID, &b.GroupID, &b.Name, &b.Notes, &b.CurrentSequenceNumber, &b.IsCopy, &b.IsWhatIf, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if b.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
