package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/blaug210/budget-app/internal/domain"
)

// FindCategoryByName returns the category with exactly this name or domain.ErrNotFound
func (s *Store) FindCategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	var (
		c        domain.Category
		parentID sql.NullString
	)
	err := s.conn(ctx).QueryRowContext(ctx, `
	SELECT id, name, description, parent_id FROM categories WHERE name = ?`, name).
		Scan(&c.ID, &c.Name, &c.Description, &parentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find category %q: %w", name, err)
	}
	if parentID.Valid {
		c.ParentID = &parentID.String
	}
	return &c, nil
}

// CreateCategory inserts a category; names are unique
func (s *Store) CreateCategory(ctx context.Context, c *domain.Category) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
	INSERT INTO categories(id, name, description, parent_id) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, nullString(c.ParentID))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("category %q: %w", c.Name, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create category %q: %w", c.Name, err)
	}
	return nil
}

// FindOrCreateMember returns the member named name, creating it on first use
func (s *Store) FindOrCreateMember(ctx context.Context, name string) (*domain.Member, error) {
	q := s.conn(ctx)
	if _, err := q.ExecContext(ctx, `
	INSERT INTO members(id, name) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`, uuid.NewString(), name); err != nil {
		return nil, fmt.Errorf("failed to create member %q: %w", name, err)
	}

	var m domain.Member
	if err := q.QueryRowContext(ctx, `SELECT id, name FROM members WHERE name = ?`, name).Scan(&m.ID, &m.Name); err != nil {
		return nil, fmt.Errorf("failed to load member %q: %w", name, err)
	}
	return &m, nil
}

// FindOrCreateSource returns the source named name, creating it with sourceType on first use.
// An existing source keeps its original type.
func (s *Store) FindOrCreateSource(ctx context.Context, name string, sourceType domain.SourceType) (*domain.Source, error) {
	if !domain.ValidateSourceType(sourceType) {
		return nil, fmt.Errorf("invalid source type: %s", sourceType)
	}

	q := s.conn(ctx)
	if _, err := q.ExecContext(ctx, `
	INSERT INTO sources(id, name, type) VALUES (?, ?, ?) ON CONFLICT(name) DO NOTHING`,
		uuid.NewString(), name, string(sourceType)); err != nil {
		return nil, fmt.Errorf("failed to create source %q: %w", name, err)
	}

	var (
		src     domain.Source
		srcType string
	)
	if err := q.QueryRowContext(ctx, `SELECT id, name, type FROM sources WHERE name = ?`, name).Scan(&src.ID, &src.Name, &srcType); err != nil {
		return nil, fmt.Errorf("failed to load source %q: %w", name, err)
	}
	src.Type = domain.SourceType(srcType)
	return &src, nil
}

// LinkBudgetCategory adds the category to the budget's category set; repeated links are ignored
func (s *Store) LinkBudgetCategory(ctx context.Context, budgetID, categoryID string) error {
	return s.link(ctx, "budget_categories", "category_id", budgetID, categoryID)
}

// LinkBudgetMember adds the member to the budget's member set; repeated links are ignored
func (s *Store) LinkBudgetMember(ctx context.Context, budgetID, memberID string) error {
	return s.link(ctx, "budget_members", "member_id", budgetID, memberID)
}

// LinkBudgetSource adds the source to the budget's source set; repeated links are ignored
func (s *Store) LinkBudgetSource(ctx context.Context, budgetID, sourceID string) error {
	return s.link(ctx, "budget_sources", "source_id", budgetID, sourceID)
}

// link inserts into one of the fixed budget tag tables named by the callers above
func (s *Store) link(ctx context.Context, table, column, budgetID, id string) error {
	query := fmt.Sprintf(`INSERT OR IGNORE INTO %s(budget_id, %s) VALUES (?, ?)`, table, column)
	if _, err := s.conn(ctx).ExecContext(ctx, query, budgetID, id); err != nil {
		return fmt.Errorf("failed to link %s %s to budget %s: %w", column, id, budgetID, err)
	}
	return nil
}

// ListBudgetCategories returns the budget's category set ordered by name
func (s *Store) ListBudgetCategories(ctx context.Context, budgetID string) ([]domain.Category, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
	SELECT c.id, c.name, c.description, c.parent_id
	FROM categories c JOIN budget_categories bc ON bc.category_id = c.id
	WHERE bc.budget_id = ?
	ORDER BY c.name`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories of budget %s: %w", budgetID, err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var (
			c        domain.Category
			parentID sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &parentID); err != nil {
			return nil, err
		}
		if parentID.Valid {
			c.ParentID = &parentID.String
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListBudgetMembers returns the budget's member set ordered by name
func (s *Store) ListBudgetMembers(ctx context.Context, budgetID string) ([]domain.Member, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
	SELECT m.id, m.name
	FROM members m JOIN budget_members bm ON bm.member_id = m.id
	WHERE bm.budget_id = ?
	ORDER BY m.name`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of budget %s: %w", budgetID, err)
	}
	defer rows.Close()

	var out []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListBudgetSources returns the budget's source set ordered by name
func (s *Store) ListBudgetSources(ctx context.Context, budgetID string) ([]domain.Source, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
	SELECT s.id, s.name, s.type
	FROM sources s JOIN budget_sources bs ON bs.source_id = s.id
	WHERE bs.budget_id = ?
	ORDER BY s.name`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources of budget %s: %w", budgetID, err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		var (
			src     domain.Source
			srcType string
		)
		if err := rows.Scan(&src.ID, &src.Name, &srcType); err != nil {
			return nil, err
		}
		src.Type = domain.SourceType(srcType)
		out = append(out, src)
	}
	return out, rows.Err()
}
