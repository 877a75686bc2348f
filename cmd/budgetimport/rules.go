package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blaug210/budget-app/internal/rules"
	"github.com/blaug210/budget-app/internal/ui"
)

type rulesReport struct {
	Fallbacks rules.Fallbacks `json:"fallbacks"`
	Rules     []rules.Rule    `json:"rules"`
}

func newRulesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Show the OFX categorization rules in match order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}

			report := rulesReport{Fallbacks: a.rules.Fallbacks(), Rules: a.rules.GetRules()}
			if a.json() {
				return a.writeJSON(cmd, report)
			}

			w := cmd.OutOrStdout()
			for _, r := range report.Rules {
				direction := string(r.Direction)
				if direction == "" {
					direction = "any"
				}
				fmt.Fprintf(w, "%3d  %-24s -> %-16s %-6s types=%s keywords=%s\n",
					r.Priority, r.Name, r.Category, direction,
					strings.Join(r.Types, ","), strings.Join(r.Keywords, ","))
			}
			ui.Field("Debit fallback", report.Fallbacks.Debit)
			ui.Field("Credit fallback", report.Fallbacks.Credit)
			return nil
		},
	}
}
