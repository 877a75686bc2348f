package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/blaug210/budget-app/internal/domain"
)

// CreateImportTracker inserts a tracker, stamping its import date when unset
func (s *Store) CreateImportTracker(ctx context.Context, t *domain.ImportTracker) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.ImportDate.IsZero() {
		t.ImportDate = s.now().UTC()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
	INSERT INTO import_trackers(id, budget_id, import_date, file_name, file_type,
		items_imported, duplicates_found, source_name, notes)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.BudgetID, t.ImportDate.UTC().Format(timestampLayout), t.FileName, string(t.FileType),
		t.ItemsImported, t.DuplicatesFound, t.SourceName, t.Notes)
	if err != nil {
		return fmt.Errorf("failed to create import tracker for %s: %w", t.FileName, err)
	}
	return nil
}

// UpdateImportTracker stores the final counts and notes of a tracker.
// The import date and file details are immutable.
func (s *Store) UpdateImportTracker(ctx context.Context, t *domain.ImportTracker) error {
	res, err := s.conn(ctx).ExecContext(ctx, `
	UPDATE import_trackers SET items_imported = ?, duplicates_found = ?, notes = ? WHERE id = ?`,
		t.ItemsImported, t.DuplicatesFound, t.Notes, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update import tracker %s: %w", t.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("import tracker %s: %w", t.ID, domain.ErrNotFound)
	}
	return nil
}

const trackerColumns = `id, budget_id, import_date, file_name, file_type, items_imported, duplicates_found, source_name, notes`

// GetImportTracker returns the tracker with id or domain.ErrNotFound
func (s *Store) GetImportTracker(ctx context.Context, id string) (*domain.ImportTracker, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `SELECT `+trackerColumns+` FROM import_trackers WHERE id = ?`, id)
	t, err := scanTracker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("import tracker %s: %w", id, domain.ErrNotFound)
	}
	return t, err
}

// ListImportTrackers returns the budget's trackers, newest first
func (s *Store) ListImportTrackers(ctx context.Context, budgetID string) ([]domain.ImportTracker, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `SELECT `+trackerColumns+` FROM import_trackers
	WHERE budget_id = ?
	ORDER BY import_date DESC, rowid DESC`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list import trackers of budget %s: %w", budgetID, err)
	}
	defer rows.Close()

	var out []domain.ImportTracker
	for rows.Next() {
		t, err := scanTracker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTracker(row scanner) (*domain.ImportTracker, error) {
	var (
		t                    domain.ImportTracker
		importDate, fileType string
	)
	if err := row.Scan(&t.ID, &t.BudgetID, &importDate, &t.FileName, &fileType,
		&t.ItemsImported, &t.DuplicatesFound, &t.SourceName, &t.Notes); err != nil {
		return nil, err
	}
	t.FileType = domain.FileType(fileType)

	var err error
	if t.ImportDate, err = parseTimestamp(importDate); err != nil {
		return nil, err
	}
	return &t, nil
}
