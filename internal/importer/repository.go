// Package importer persists parsed transactions into a budget and previews what an import
// would do.
package importer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blaug210/budget-app/internal/domain"
)

// Repository is the storage the import engine works against.
//
// Atomic runs fn as a unit of work: a transaction when ctx carries none, a savepoint when
// ctx comes from an enclosing unit. Every other method must participate in the unit bound
// to the ctx it receives.
type Repository interface {
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error

	FindCategoryByName(ctx context.Context, name string) (*domain.Category, error)
	CreateCategory(ctx context.Context, c *domain.Category) error
	FindOrCreateMember(ctx context.Context, name string) (*domain.Member, error)
	FindOrCreateSource(ctx context.Context, name string, sourceType domain.SourceType) (*domain.Source, error)
	LinkBudgetCategory(ctx context.Context, budgetID, categoryID string) error
	LinkBudgetMember(ctx context.Context, budgetID, memberID string) error
	LinkBudgetSource(ctx context.Context, budgetID, sourceID string) error

	FindDuplicateItem(ctx context.Context, budgetID string, date time.Time, amount decimal.Decimal, description string) (bool, error)
	NextSequenceNumber(ctx context.Context, budgetID string) (int64, error)
	CreateItem(ctx context.Context, item *domain.BudgetItem) error
	AddItemCategory(ctx context.Context, itemID, categoryID string) error
	ListItems(ctx context.Context, budgetID string) ([]domain.BudgetItem, error)
	GetItem(ctx context.Context, id string) (*domain.BudgetItem, error)
	UpdateItem(ctx context.Context, item *domain.BudgetItem) error
	SetItemCategories(ctx context.Context, itemID string, categoryIDs []string) error
	DeleteItem(ctx context.Context, id string) error
	UpdateRunningBalance(ctx context.Context, itemID string, balance decimal.Decimal) error

	CreateImportTracker(ctx context.Context, t *domain.ImportTracker) error
	UpdateImportTracker(ctx context.Context, t *domain.ImportTracker) error
}
