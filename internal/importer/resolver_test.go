package importer

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/parser"
)

func TestParseSourceTypePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    SourceTypePolicy
		wantErr bool
	}{
		{"", SourceTypeIncome, false},
		{"income", SourceTypeIncome, false},
		{" Sign ", SourceTypeSign, false},
		{"transfer", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSourceTypePolicy(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSourceTypePolicy_SourceType(t *testing.T) {
	tests := []struct {
		name   string
		policy SourceTypePolicy
		amount string
		want   domain.SourceType
	}{
		{"income policy inflow", SourceTypeIncome, "10", domain.SourceTypeIncome},
		{"income policy outflow", SourceTypeIncome, "-10", domain.SourceTypeIncome},
		{"sign policy inflow", SourceTypeSign, "10", domain.SourceTypeIncome},
		{"sign policy outflow", SourceTypeSign, "-10", domain.SourceTypeOther},
		{"sign policy zero", SourceTypeSign, "0", domain.SourceTypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.SourceType(decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestResolver_Category(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	budget := seedBudget(t, s, "2024")
	other := seedBudget(t, s, "2025")
	r := NewResolver(s, SourceTypeIncome)

	created, err := r.Category(ctx, budget.ID, "Travel")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, CategoryDescription, created.Description)

	// Second budget reuses the same category and gets its own link
	again, err := r.Category(ctx, other.ID, "Travel")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	// Repeated resolution in one budget does not duplicate the link
	_, err = r.Category(ctx, budget.ID, "Travel")
	require.NoError(t, err)

	for _, id := range []string{budget.ID, other.ID} {
		categories, err := s.ListBudgetCategories(ctx, id)
		require.NoError(t, err)
		require.Len(t, categories, 1)
		assert.Equal(t, "Travel", categories[0].Name)
	}

	// Names are matched exactly
	lower, err := r.Category(ctx, budget.ID, "travel")
	require.NoError(t, err)
	assert.NotEqual(t, created.ID, lower.ID)

	empty, err := r.Category(ctx, budget.ID, "")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestResolver_MemberAndSource(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	budget := seedBudget(t, s, "2024")
	r := NewResolver(s, SourceTypeSign)

	member, err := r.Member(ctx, budget.ID, "Dana")
	require.NoError(t, err)
	same, err := r.Member(ctx, budget.ID, "Dana")
	require.NoError(t, err)
	assert.Equal(t, member.ID, same.ID)

	card, err := r.Source(ctx, budget.ID, "Credit Card", decimal.NewFromInt(-40))
	require.NoError(t, err)
	assert.Equal(t, domain.SourceTypeOther, card.Type)

	// An existing source keeps the type it was created with
	again, err := r.Source(ctx, budget.ID, "Credit Card", decimal.NewFromInt(40))
	require.NoError(t, err)
	assert.Equal(t, card.ID, again.ID)
	assert.Equal(t, domain.SourceTypeOther, again.Type)

	salary, err := r.Source(ctx, budget.ID, "Salary", decimal.NewFromInt(2000))
	require.NoError(t, err)
	assert.Equal(t, domain.SourceTypeIncome, salary.Type)

	members, err := s.ListBudgetMembers(ctx, budget.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
	sources, err := s.ListBudgetSources(ctx, budget.ID)
	require.NoError(t, err)
	assert.Len(t, sources, 2)

	none, err := r.Member(ctx, budget.ID, "")
	require.NoError(t, err)
	assert.Nil(t, none)
	noSource, err := r.Source(ctx, budget.ID, "", decimal.Zero)
	require.NoError(t, err)
	assert.Nil(t, noSource)
}

func TestImport_SignPolicyCreatesOtherSourceForExpense(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	budget := seedBudget(t, s, "2024")

	r := rec("2024-01-02", "Card payment", "-80.00", "Bills")
	r.Source = "Visa"
	_, err := NewEngine(s, WithSourceTypePolicy(SourceTypeSign)).Import(ctx, budget.ID, []parser.Transaction{r}, "visa.csv", domain.FileTypeCSV)
	require.NoError(t, err)

	sources, err := s.ListBudgetSources(ctx, budget.ID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, domain.SourceTypeOther, sources[0].Type)
}
