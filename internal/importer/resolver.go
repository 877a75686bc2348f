package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/blaug210/budget-app/internal/domain"
)

// CategoryDescription is the description given to categories created by an import
const CategoryDescription = "Auto-created from import"

// SourceTypePolicy picks the type of a source created by an import
type SourceTypePolicy string

const (
	// SourceTypeIncome creates every new source as an income source
	SourceTypeIncome SourceTypePolicy = "income"
	// SourceTypeSign creates income sources for inflows and other sources for outflows
	SourceTypeSign SourceTypePolicy = "sign"
)

// ParseSourceTypePolicy validates a policy name; empty means SourceTypeIncome
func ParseSourceTypePolicy(s string) (SourceTypePolicy, error) {
	switch p := SourceTypePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return SourceTypeIncome, nil
	case SourceTypeIncome, SourceTypeSign:
		return p, nil
	default:
		return "", fmt.Errorf("unknown source type policy %q (want income or sign)", s)
	}
}

// SourceType returns the type a new source triggered by amount should get
func (p SourceTypePolicy) SourceType(amount decimal.Decimal) domain.SourceType {
	if p == SourceTypeSign && !amount.IsPositive() {
		return domain.SourceTypeOther
	}
	return domain.SourceTypeIncome
}

// Resolver looks up category, member and source entities by exact name, creating missing
// ones and adding them to the budget's tag sets.
type Resolver struct {
	repo   Repository
	policy SourceTypePolicy
}

// NewResolver creates a resolver
func NewResolver(repo Repository, policy SourceTypePolicy) *Resolver {
	if policy == "" {
		policy = SourceTypeIncome
	}
	return &Resolver{repo: repo, policy: policy}
}

// Category returns the category named name, creating it when missing.
// An empty name resolves to nil.
func (r *Resolver) Category(ctx context.Context, budgetID, name string) (*domain.Category, error) {
	if name == "" {
		return nil, nil
	}

	category, err := r.repo.FindCategoryByName(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		category = &domain.Category{Name: name, Description: CategoryDescription}
		err = r.repo.CreateCategory(ctx, category)
	}
	if err != nil {
		return nil, err
	}

	if err := r.repo.LinkBudgetCategory(ctx, budgetID, category.ID); err != nil {
		return nil, err
	}
	return category, nil
}

// Member returns the member named name, creating it when missing.
// An empty name resolves to nil.
func (r *Resolver) Member(ctx context.Context, budgetID, name string) (*domain.Member, error) {
	if name == "" {
		return nil, nil
	}

	member, err := r.repo.FindOrCreateMember(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := r.repo.LinkBudgetMember(ctx, budgetID, member.ID); err != nil {
		return nil, err
	}
	return member, nil
}

// Source returns the source named name, creating it with the policy's type for amount
// when missing. An empty name resolves to nil.
func (r *Resolver) Source(ctx context.Context, budgetID, name string, amount decimal.Decimal) (*domain.Source, error) {
	if name == "" {
		return nil, nil
	}

	source, err := r.repo.FindOrCreateSource(ctx, name, r.policy.SourceType(amount))
	if err != nil {
		return nil, err
	}
	if err := r.repo.LinkBudgetSource(ctx, budgetID, source.ID); err != nil {
		return nil, err
	}
	return source, nil
}
