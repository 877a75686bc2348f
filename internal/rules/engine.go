// Package rules provides a YAML-based keyword engine for inferring transaction categories.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var embeddedRules []byte

// Direction is the flow of money a rule applies to
type Direction string

const (
	// DirectionDebit is money leaving the account
	DirectionDebit Direction = "debit"
	// DirectionCredit is money entering the account
	DirectionCredit Direction = "credit"
	// DirectionNone is a zero amount with no debit/credit type
	DirectionNone Direction = ""
)

// Rule represents a single categorization rule.
//
// Rules should be created via NewEngine, LoadEmbedded or LoadFromFile, which
// validate every rule:
//   - Priority in range [0, 999]
//   - Category must not be empty
//   - Direction must be empty, "debit" or "credit"
//   - At least one of Types or Keywords must be set
//   - Keywords must not be blank
type Rule struct {
	Name      string    `yaml:"name" json:"name"`
	Types     []string  `yaml:"types" json:"types,omitempty"`
	Direction Direction `yaml:"direction" json:"direction,omitempty"`
	Keywords  []string  `yaml:"keywords" json:"keywords,omitempty"`
	Category  string    `yaml:"category" json:"category"`
	Priority  int       `yaml:"priority" json:"priority"`
}

// Fallbacks name the category used when no rule matches
type Fallbacks struct {
	Debit  string `yaml:"debit" json:"debit"`
	Credit string `yaml:"credit" json:"credit"`
}

// RuleSet represents the top-level YAML structure
type RuleSet struct {
	Fallbacks Fallbacks `yaml:"fallbacks"`
	Rules     []Rule    `yaml:"rules"`
}

// Engine infers categories from transaction type, amount sign and description text
type Engine struct {
	rules     []Rule // Sorted by priority (highest first)
	fallbacks Fallbacks
}

// MatchResult contains the outcome of categorizing one transaction
type MatchResult struct {
	Category string
	RuleName string // Empty when a fallback was used
}

// NewEngine creates a rules engine from YAML data
func NewEngine(rulesData []byte) (*Engine, error) {
	var ruleSet RuleSet
	if err := yaml.Unmarshal(rulesData, &ruleSet); err != nil {
		return nil, fmt.Errorf("failed to parse YAML rules (check syntax, indentation, and field names): %w", err)
	}

	if strings.TrimSpace(ruleSet.Fallbacks.Debit) == "" || strings.TrimSpace(ruleSet.Fallbacks.Credit) == "" {
		return nil, fmt.Errorf("fallbacks.debit and fallbacks.credit are required")
	}

	for i, rule := range ruleSet.Rules {
		if err := validateRule(rule); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Name, err)
		}
		// Normalize once so matching can compare directly
		for k, kw := range rule.Keywords {
			ruleSet.Rules[i].Keywords[k] = strings.ToUpper(strings.TrimSpace(kw))
		}
		for k, typ := range rule.Types {
			ruleSet.Rules[i].Types[k] = strings.ToUpper(strings.TrimSpace(typ))
		}
	}

	// Sort rules by priority (highest first). Use SliceStable to preserve YAML file
	// order for rules with equal priority (guarantees deterministic matching).
	sortedRules := make([]Rule, len(ruleSet.Rules))
	copy(sortedRules, ruleSet.Rules)
	sort.SliceStable(sortedRules, func(i, j int) bool {
		return sortedRules[i].Priority > sortedRules[j].Priority
	})

	return &Engine{
		rules:     sortedRules,
		fallbacks: ruleSet.Fallbacks,
	}, nil
}

func validateRule(rule Rule) error {
	if strings.TrimSpace(rule.Category) == "" {
		return fmt.Errorf("category cannot be empty")
	}
	if rule.Priority < 0 || rule.Priority > 999 {
		return fmt.Errorf("priority must be in [0,999], got %d", rule.Priority)
	}
	switch rule.Direction {
	case DirectionNone, DirectionDebit, DirectionCredit:
	default:
		return fmt.Errorf("invalid direction %q (must be 'debit' or 'credit')", rule.Direction)
	}
	if len(rule.Types) == 0 && len(rule.Keywords) == 0 {
		return fmt.Errorf("rule needs types or keywords")
	}
	for _, kw := range rule.Keywords {
		if strings.TrimSpace(kw) == "" {
			return fmt.Errorf("keywords cannot be blank")
		}
	}
	return nil
}

// LoadEmbedded loads the embedded rules.yaml file
func LoadEmbedded() (*Engine, error) {
	engine, err := NewEngine(embeddedRules)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded rules (possible binary corruption): %w", err)
	}
	return engine, nil
}

// LoadFromFile loads rules from a filesystem path
func LoadFromFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	engine, err := NewEngine(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %q: %w", path, err)
	}
	return engine, nil
}

// Load returns the rules at path, or the embedded rules when path is empty
func Load(path string) (*Engine, error) {
	if path == "" {
		return LoadEmbedded()
	}
	return LoadFromFile(path)
}

// DirectionOf classifies a transaction. An explicit DEBIT type or a negative
// amount is a debit; otherwise an explicit CREDIT type or a positive amount
// is a credit.
func DirectionOf(txnType string, amount decimal.Decimal) Direction {
	txnType = strings.ToUpper(txnType)
	switch {
	case txnType == "DEBIT" || amount.IsNegative():
		return DirectionDebit
	case txnType == "CREDIT" || amount.IsPositive():
		return DirectionCredit
	default:
		return DirectionNone
	}
}

// Categorize infers a category for a transaction of the given OFX type, amount and
// description text (payee and memo). Rules are evaluated in priority order and the
// first match wins; otherwise the fallback for the transaction's direction is used.
// A zero amount with no direction falls back to the credit category.
func (e *Engine) Categorize(txnType string, amount decimal.Decimal, text string) MatchResult {
	txnType = strings.ToUpper(strings.TrimSpace(txnType))
	dir := DirectionOf(txnType, amount)
	upper := strings.ToUpper(text)

	for _, rule := range e.rules {
		if rule.matches(txnType, dir, upper) {
			return MatchResult{Category: rule.Category, RuleName: rule.Name}
		}
	}

	if dir == DirectionDebit {
		return MatchResult{Category: e.fallbacks.Debit}
	}
	return MatchResult{Category: e.fallbacks.Credit}
}

func (r *Rule) matches(txnType string, dir Direction, text string) bool {
	if len(r.Types) > 0 && !contains(r.Types, txnType) {
		return false
	}
	if r.Direction != DirectionNone && r.Direction != dir {
		return false
	}
	if len(r.Keywords) == 0 {
		return true
	}
	for _, kw := range r.Keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// Fallbacks returns the categories used when no rule matches
func (e *Engine) Fallbacks() Fallbacks {
	return e.fallbacks
}

// GetRules returns a copy of the rules for inspection/debugging.
// Rules are returned in priority order (highest first). For equal priorities,
// rules appear in YAML file order (stable sort).
func (e *Engine) GetRules() []Rule {
	result := make([]Rule, len(e.rules))
	for i, r := range e.rules {
		r.Types = append([]string(nil), r.Types...)
		r.Keywords = append([]string(nil), r.Keywords...)
		result[i] = r
	}
	return result
}
