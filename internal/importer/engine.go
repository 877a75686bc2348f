package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blaug210/budget-app/internal/dedup"
	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/parser"
	"github.com/blaug210/budget-app/internal/store"
	"github.com/blaug210/budget-app/internal/transform"
	"github.com/blaug210/budget-app/internal/validate"
)

// DefaultPreviewLimit is the number of records Preview inspects when no limit is given
const DefaultPreviewLimit = 20

// Stats counts the outcome of every record of an import
type Stats struct {
	Total      int `json:"total"`
	Imported   int `json:"imported"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

// Duplicate describes a record skipped because the budget already holds it
type Duplicate struct {
	Row         int             `json:"row"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
}

// Result is the outcome of one import run
type Result struct {
	Success    bool        `json:"success"`
	Stats      Stats       `json:"stats"`
	Errors     []string    `json:"errors"`
	Duplicates []Duplicate `json:"duplicates"`
	TrackerID  string      `json:"importTrackerId"`
}

// ProgressFunc is called after each record with the number processed so far
type ProgressFunc func(processed, total int)

// Engine imports normalized records into budgets
type Engine struct {
	repo         Repository
	detector     *dedup.Detector
	resolver     *Resolver
	logger       *log.Logger
	progress     ProgressFunc
	policy       SourceTypePolicy
	previewLimit int
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger for import summaries and row failures
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithProgress registers a callback invoked after each record
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// WithSourceTypePolicy sets the type given to sources created by an import
func WithSourceTypePolicy(policy SourceTypePolicy) Option {
	return func(e *Engine) {
		e.policy = policy
	}
}

// WithPreviewLimit changes the default preview window
func WithPreviewLimit(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.previewLimit = limit
		}
	}
}

// NewEngine creates an import engine backed by repo
func NewEngine(repo Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:         repo,
		logger:       log.New(io.Discard),
		policy:       SourceTypeIncome,
		previewLimit: DefaultPreviewLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.detector = dedup.NewDetector(repo)
	e.resolver = NewResolver(repo, e.policy)
	return e
}

// With returns a copy of the engine with opts applied, sharing its repository.
// It is meant for per-run settings such as a progress callback.
func (e *Engine) With(opts ...Option) *Engine {
	clone := *e
	for _, opt := range opts {
		opt(&clone)
	}
	clone.resolver = NewResolver(clone.repo, clone.policy)
	return &clone
}

// Import persists records into the budget as one unit of work.
//
// Each record runs in its own savepoint: a record that fails is rolled back, reported as
// "Row N: <reason>" and counted, and the remaining records continue. Records already in
// the budget are counted as duplicates and skipped. Storage faults and context
// cancellation abort the whole import and nothing is persisted. After the records, the
// tracker is updated and the budget's running balances are recomputed.
func (e *Engine) Import(ctx context.Context, budgetID string, records []parser.Transaction, fileName string, fileType domain.FileType) (*Result, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, fmt.Errorf("file name cannot be empty")
	}
	name := filepath.Base(fileName)

	tracker, err := domain.NewImportTracker(uuid.NewString(), budgetID, name, fileType, transform.SourceName(name))
	if err != nil {
		return nil, fmt.Errorf("failed to start import of %s: %w", name, err)
	}

	result := &Result{
		Stats:      Stats{Total: len(records)},
		Errors:     []string{},
		Duplicates: []Duplicate{},
		TrackerID:  tracker.ID,
	}

	start := time.Now()
	err = e.repo.Atomic(ctx, func(ctx context.Context) error {
		if err := e.repo.CreateImportTracker(ctx, tracker); err != nil {
			return fmt.Errorf("failed to create import tracker: %w", err)
		}

		for i, txn := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			row := i + 1

			var duplicate bool
			err := e.repo.Atomic(ctx, func(ctx context.Context) error {
				var err error
				duplicate, err = e.importRecord(ctx, budgetID, tracker.ID, name, txn)
				return err
			})

			switch {
			case err != nil && aborts(ctx, err):
				return err
			case err != nil:
				result.Stats.Errors++
				result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", row, err))
				e.logger.Debug("row failed", "file", name, "row", row, "err", err)
			case duplicate:
				result.Stats.Duplicates++
				result.Duplicates = append(result.Duplicates, Duplicate{
					Row:         row,
					Description: txn.Description,
					Date:        txn.Date.Format(domain.DateLayout),
					Amount:      txn.Amount,
				})
			default:
				result.Stats.Imported++
			}

			if e.progress != nil {
				e.progress(row, len(records))
			}
		}

		tracker.ItemsImported = result.Stats.Imported
		tracker.DuplicatesFound = result.Stats.Duplicates
		if err := e.repo.UpdateImportTracker(ctx, tracker); err != nil {
			return fmt.Errorf("failed to update import tracker: %w", err)
		}

		_, err := e.RecalculateRunningBalances(ctx, budgetID)
		return err
	})
	if err != nil {
		e.logger.Error("import aborted", "budget", budgetID, "file", name, "err", err)
		return nil, fmt.Errorf("import of %s aborted: %w", name, err)
	}

	result.Success = result.Stats.Errors == 0 || result.Stats.Imported > 0
	e.logger.Info("import finished",
		"budget", budgetID,
		"file", name,
		"tracker", tracker.ID,
		"total", result.Stats.Total,
		"imported", result.Stats.Imported,
		"duplicates", result.Stats.Duplicates,
		"errors", result.Stats.Errors,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return result, nil
}

// importRecord stores one record, reporting true when it was skipped as a duplicate.
// A record already in the budget is a duplicate even when it would fail validation.
func (e *Engine) importRecord(ctx context.Context, budgetID, trackerID, fileName string, txn parser.Transaction) (bool, error) {
	duplicate, err := e.detector.IsDuplicate(ctx, budgetID, txn)
	if err != nil || duplicate {
		return duplicate, err
	}

	if err := validate.Transaction(txn); err != nil {
		return false, err
	}

	category, err := e.resolver.Category(ctx, budgetID, txn.Category)
	if err != nil {
		return false, err
	}
	if category == nil {
		return false, fmt.Errorf("Could not create category '%s'", txn.Category)
	}

	var refs transform.ItemRefs
	member, err := e.resolver.Member(ctx, budgetID, txn.Member)
	if err != nil {
		return false, err
	}
	if member != nil {
		refs.MemberID = &member.ID
	}
	source, err := e.resolver.Source(ctx, budgetID, txn.Source, txn.Amount)
	if err != nil {
		return false, err
	}
	if source != nil {
		refs.SourceID = &source.ID
	}

	sequence, err := e.repo.NextSequenceNumber(ctx, budgetID)
	if err != nil {
		return false, err
	}

	item, err := transform.ToBudgetItem(txn, budgetID, trackerID, sequence, fileName, refs)
	if err != nil {
		return false, err
	}
	if err := e.repo.CreateItem(ctx, item); err != nil {
		return false, err
	}
	return false, e.repo.AddItemCategory(ctx, item.ID, category.ID)
}

// RecalculateRunningBalances rewrites the running balance of every item in the budget,
// walking items by date and then sequence number from a zero balance. It returns the
// final balance.
func (e *Engine) RecalculateRunningBalances(ctx context.Context, budgetID string) (decimal.Decimal, error) {
	balance := decimal.Zero
	err := e.repo.Atomic(ctx, func(ctx context.Context) error {
		items, err := e.repo.ListItems(ctx, budgetID)
		if err != nil {
			return fmt.Errorf("failed to load items for balance recompute: %w", err)
		}
		for _, item := range items {
			balance = balance.Add(item.Amount)
			if err := e.repo.UpdateRunningBalance(ctx, item.ID, balance); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// aborts reports whether err must end the whole import instead of a single record
func aborts(ctx context.Context, err error) bool {
	return errors.Is(err, store.ErrStorageFault) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		ctx.Err() != nil
}
