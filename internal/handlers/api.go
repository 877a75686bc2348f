package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/blaug210/budget-app/internal/domain"
)

// BudgetReader is the read side of the budget store
type BudgetReader interface {
	ListBudgets(ctx context.Context, groupID string) ([]domain.Budget, error)
	GetBudget(ctx context.Context, id string) (*domain.Budget, error)
	BudgetTotals(ctx context.Context, budgetID string) (*domain.BudgetTotals, error)
	ListItems(ctx context.Context, budgetID string) ([]domain.BudgetItem, error)
	ListImportTrackers(ctx context.Context, budgetID string) ([]domain.ImportTracker, error)
	ListBudgetCategories(ctx context.Context, budgetID string) ([]domain.Category, error)
	ListBudgetMembers(ctx context.Context, budgetID string) ([]domain.Member, error)
	ListBudgetSources(ctx context.Context, budgetID string) ([]domain.Source, error)
}

// APIHandler serves read-only budget data
type APIHandler struct {
	store  BudgetReader
	logger *log.Logger
}

// NewAPIHandler creates a new API handler; a nil logger discards output
func NewAPIHandler(store BudgetReader, logger *log.Logger) *APIHandler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &APIHandler{store: store, logger: logger}
}

type budgetView struct {
	domain.Budget
	Totals *domain.BudgetTotals `json:"totals"`
}

// budgetDetail adds the budget's tag sets
type budgetDetail struct {
	budgetView
	Categories []domain.Category `json:"categories"`
	Members    []domain.Member   `json:"members"`
	Sources    []domain.Source   `json:"sources"`
}

// GetBudgets handles GET /api/budgets, optionally filtered by ?group=
func (h *APIHandler) GetBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := h.store.ListBudgets(r.Context(), r.URL.Query().Get("group"))
	if err != nil {
		writeFailure(w, h.logger, err)
		return
	}

	views := make([]budgetView, 0, len(budgets))
	for _, b := range budgets {
		totals, err := h.store.BudgetTotals(r.Context(), b.ID)
		if err != nil {
			writeFailure(w, h.logger, err)
			return
		}
		views = append(views, budgetView{Budget: b, Totals: totals})
	}
	writeJSON(w, h.logger, http.StatusOK, views)
}

// GetBudget handles GET /api/budgets/{id}, returning totals and tag sets
func (h *APIHandler) GetBudget(w http.ResponseWriter, r *http.Request) {
	budget, err := h.store.GetBudget(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, h.logger, err)
		return
	}
	detail := budgetDetail{budgetView: budgetView{Budget: *budget}}
	if detail.Totals, err = h.store.BudgetTotals(r.Context(), budget.ID); err != nil {
		writeFailure(w, h.logger, err)
		return
	}
	if detail.Categories, err = h.store.ListBudgetCategories(r.Context(), budget.ID); err != nil {
		writeFailure(w, h.logger, err)
		return
	}
	if detail.Members, err = h.store.ListBudgetMembers(r.Context(), budget.ID); err != nil {
		writeFailure(w, h.logger, err)
		return
	}
	if detail.Sources, err = h.store.ListBudgetSources(r.Context(), budget.ID); err != nil {
		writeFailure(w, h.logger, err)
		return
	}

	if detail.Categories == nil {
		detail.Categories = []domain.Category{}
	}
	if detail.Members == nil {
		detail.Members = []domain.Member{}
	}
	if detail.Sources == nil {
		detail.Sources = []domain.Source{}
	}
	writeJSON(w, h.logger, http.StatusOK, detail)
}

// GetItems handles GET /api/budgets/{id}/items
func (h *APIHandler) GetItems(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.store.GetBudget(r.Context(), id); err != nil {
		writeFailure(w, h.logger, err)
		return
	}
	items, err := h.store.ListItems(r.Context(), id)
	if err != nil {
		writeFailure(w, h.logger, err)
		return
	}
	if items == nil {
		items = []domain.BudgetItem{}
	}
	writeJSON(w, h.logger, http.StatusOK, items)
}

// GetImports handles GET /api/budgets/{id}/imports
func (h *APIHandler) GetImports(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.store.GetBudget(r.Context(), id); err != nil {
		writeFailure(w, h.logger, err)
		return
	}
	trackers, err := h.store.ListImportTrackers(r.Context(), id)
	if err != nil {
		writeFailure(w, h.logger, err)
		return
	}
	if trackers == nil {
		trackers = []domain.ImportTracker{}
	}
	writeJSON(w, h.logger, http.StatusOK, trackers)
}
