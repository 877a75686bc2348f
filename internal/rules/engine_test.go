package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLoadEmbedded(t *testing.T) {
	engine, err := LoadEmbedded()
	require.NoError(t, err)

	rules := engine.GetRules()
	require.NotEmpty(t, rules)
	assert.Equal(t, "checks", rules[0].Name, "highest priority rule first")
	assert.Equal(t, "payments", rules[len(rules)-1].Name, "lowest priority rule last")
}

func TestCategorize_Embedded(t *testing.T) {
	engine, err := LoadEmbedded()
	require.NoError(t, err)

	tests := []struct {
		name     string
		txnType  string
		amount   string
		text     string
		expected string
	}{
		{name: "check type wins over keywords", txnType: "CHECK", amount: "-120.00", text: "KROGER", expected: "Check"},
		{name: "debit kroger", txnType: "DEBIT", amount: "-54.20", text: "KROGER #123", expected: "Groceries"},
		{name: "negative amount without debit type", txnType: "POS", amount: "-9.99", text: "Pizza Palace", expected: "Food & Dining"},
		{name: "case-insensitive keywords", txnType: "DEBIT", amount: "-40", text: "shell oil 5544", expected: "Gas & Fuel"},
		{name: "gas matches fuel before utilities", txnType: "DEBIT", amount: "-80", text: "CITY GAS COMPANY", expected: "Gas & Fuel"},
		{name: "healthcare", txnType: "DEBIT", amount: "-15", text: "CVS/PHARMACY", expected: "Healthcare"},
		{name: "utilities", txnType: "DEBIT", amount: "-60", text: "COMCAST CABLE", expected: "Utilities"},
		{name: "shopping", txnType: "DEBIT", amount: "-25", text: "AMAZON MKTPLACE", expected: "Shopping"},
		{name: "debit fallback", txnType: "DEBIT", amount: "-5", text: "MYSTERY MERCHANT", expected: "Expenses"},
		{name: "debit type with positive amount", txnType: "DEBIT", amount: "5", text: "REFUND", expected: "Expenses"},
		{name: "credit paycheck memo", txnType: "CREDIT", amount: "1500", text: "ACME CORP PAYCHECK DEPOSIT", expected: "Income"},
		{name: "credit autopay", txnType: "CREDIT", amount: "200", text: "AUTOPAY THANK YOU", expected: "Payment"},
		{name: "credit fallback", txnType: "CREDIT", amount: "3", text: "INTEREST", expected: "Income"},
		{name: "positive amount without type", txnType: "", amount: "10", text: "VENMO PAYMENT", expected: "Payment"},
		{name: "zero amount no type", txnType: "OTHER", amount: "0", text: "", expected: "Income"},
		{name: "credit type negative amount is a debit", txnType: "CREDIT", amount: "-10", text: "TARGET", expected: "Groceries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Categorize(tt.txnType, amt(tt.amount), tt.text)
			assert.Equal(t, tt.expected, got.Category)
		})
	}
}

func TestCategorize_ReportsRuleName(t *testing.T) {
	engine, err := LoadEmbedded()
	require.NoError(t, err)

	match := engine.Categorize("DEBIT", amt("-1"), "WALMART")
	assert.Equal(t, "groceries", match.RuleName)

	fallback := engine.Categorize("DEBIT", amt("-1"), "NOTHING")
	assert.Empty(t, fallback.RuleName)
}

func TestDirectionOf(t *testing.T) {
	assert.Equal(t, DirectionDebit, DirectionOf("debit", amt("1")))
	assert.Equal(t, DirectionDebit, DirectionOf("CREDIT", amt("-1")))
	assert.Equal(t, DirectionCredit, DirectionOf("credit", amt("0")))
	assert.Equal(t, DirectionCredit, DirectionOf("", amt("0.01")))
	assert.Equal(t, DirectionNone, DirectionOf("XFER", amt("0")))
}

func TestNewEngine_StablePriorityOrder(t *testing.T) {
	rulesYAML := `
fallbacks: {debit: Out, credit: In}
rules:
  - {name: first, keywords: [SHARED], category: A, priority: 10}
  - {name: urgent, keywords: [SHARED], category: B, priority: 20}
  - {name: second, keywords: [SHARED], category: C, priority: 10}
`
	engine, err := NewEngine([]byte(rulesYAML))
	require.NoError(t, err)

	names := []string{}
	for _, r := range engine.GetRules() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"urgent", "first", "second"}, names)
	assert.Equal(t, "B", engine.Categorize("", amt("-1"), "shared").Category)
}

func TestNewEngine_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad yaml", yaml: "rules: [:"},
		{name: "missing fallbacks", yaml: "rules: []"},
		{name: "empty category", yaml: "fallbacks: {debit: a, credit: b}\nrules:\n  - {name: x, keywords: [A], category: '', priority: 1}"},
		{name: "priority too high", yaml: "fallbacks: {debit: a, credit: b}\nrules:\n  - {name: x, keywords: [A], category: c, priority: 1000}"},
		{name: "negative priority", yaml: "fallbacks: {debit: a, credit: b}\nrules:\n  - {name: x, keywords: [A], category: c, priority: -1}"},
		{name: "bad direction", yaml: "fallbacks: {debit: a, credit: b}\nrules:\n  - {name: x, direction: sideways, keywords: [A], category: c}"},
		{name: "no conditions", yaml: "fallbacks: {debit: a, credit: b}\nrules:\n  - {name: x, category: c}"},
		{name: "blank keyword", yaml: "fallbacks: {debit: a, credit: b}\nrules:\n  - {name: x, keywords: ['  '], category: c}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestGetRules_ReturnsCopy(t *testing.T) {
	engine, err := LoadEmbedded()
	require.NoError(t, err)

	rules := engine.GetRules()
	rules[1].Keywords[0] = "CHANGED"
	rules[0].Category = "Changed"

	fresh := engine.GetRules()
	assert.NotEqual(t, "CHANGED", fresh[1].Keywords[0])
	assert.Equal(t, "Check", fresh[0].Category)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
fallbacks: {debit: Spending, credit: Earnings}
rules:
  - {name: coffee, direction: debit, keywords: [starbucks], category: Coffee, priority: 5}
`), 0644))

	engine, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Coffee", engine.Categorize("DEBIT", amt("-4"), "STARBUCKS 42").Category)
	assert.Equal(t, "Spending", engine.Categorize("DEBIT", amt("-4"), "TEA").Category)
	assert.Equal(t, "Earnings", engine.Categorize("CREDIT", amt("4"), "STARBUCKS REFUND").Category)
	assert.Equal(t, Fallbacks{Debit: "Spending", Credit: "Earnings"}, engine.Fallbacks())

	_, err = LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_EmptyPathUsesEmbedded(t *testing.T) {
	engine, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "Groceries", engine.Categorize("DEBIT", amt("-1"), "KROGER").Category)
}
