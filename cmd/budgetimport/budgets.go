package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/ui"
)

func newGroupCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage budget groups",
	}

	var parent string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a budget group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				var parentID *string
				if parent != "" {
					if _, err := a.store.GetGroup(ctx, parent); err != nil {
						return fmt.Errorf("parent group: %w", err)
					}
					parentID = &parent
				}

				group, err := domain.NewBudgetGroup(uuid.NewString(), args[0], parentID)
				if err != nil {
					return err
				}
				if err := a.store.CreateGroup(ctx, group); err != nil {
					return err
				}

				if a.json() {
					return a.writeJSON(cmd, group)
				}
				ui.Success(fmt.Sprintf("Created group %q", group.Name))
				ui.Field("ID", group.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&parent, "parent", "", "Parent group ID")

	list := &cobra.Command{
		Use:   "list",
		Short: "List budget groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				groups, err := a.store.ListGroups(ctx)
				if err != nil {
					return err
				}

				type groupView struct {
					domain.BudgetGroup
					Path string `json:"path"`
				}
				views := make([]groupView, 0, len(groups))
				for _, g := range groups {
					path, err := a.store.GroupPath(ctx, g.ID)
					if err != nil {
						return err
					}
					views = append(views, groupView{BudgetGroup: g, Path: path})
				}

				if a.json() {
					return a.writeJSON(cmd, views)
				}
				if len(views) == 0 {
					ui.Info("No groups")
					return nil
				}
				for _, v := range views {
					ui.Field(v.ID, v.Path)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}

func newBudgetCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Manage budgets",
	}

	var (
		groupID string
		notes   string
	)
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a budget in a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				budget, err := domain.NewBudget(uuid.NewString(), groupID, args[0])
				if err != nil {
					return err
				}
				budget.Notes = notes
				if err := a.store.CreateBudget(ctx, budget); err != nil {
					return err
				}

				if a.json() {
					return a.writeJSON(cmd, budget)
				}
				ui.Success(fmt.Sprintf("Created budget %q", budget.Name))
				ui.Field("ID", budget.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&groupID, "group", "", "Group ID (required)")
	create.Flags().StringVar(&notes, "notes", "", "Budget notes")
	_ = create.MarkFlagRequired("group")

	var filterGroup string
	list := &cobra.Command{
		Use:   "list",
		Short: "List budgets with their totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				budgets, err := a.store.ListBudgets(ctx, filterGroup)
				if err != nil {
					return err
				}

				type budgetView struct {
					domain.Budget
					Totals *domain.BudgetTotals `json:"totals"`
				}
				views := make([]budgetView, 0, len(budgets))
				for _, b := range budgets {
					totals, err := a.store.BudgetTotals(ctx, b.ID)
					if err != nil {
						return err
					}
					views = append(views, budgetView{Budget: b, Totals: totals})
				}

				if a.json() {
					return a.writeJSON(cmd, views)
				}
				if len(views) == 0 {
					ui.Info("No budgets")
					return nil
				}
				for _, v := range views {
					label := fmt.Sprintf("%s (%s)", v.Name, v.ID)
					switch {
					case v.IsWhatIf:
						label += " [what-if]"
					case v.IsCopy:
						label += " [copy]"
					}
					ui.BlueText(label)
					ui.Field("Items", v.Totals.Items)
					ui.Field("Income", v.Totals.Income.StringFixed(2))
					ui.Field("Expenses", v.Totals.Expenses.StringFixed(2))
					ui.Field("Balance", v.Totals.Balance.StringFixed(2))
				}
				return nil
			})
		},
	}
	list.Flags().StringVar(&filterGroup, "group", "", "Only budgets of this group")

	remove := &cobra.Command{
		Use:   "delete <budget-id>",
		Short: "Delete a budget with its items and import history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.store.DeleteBudget(ctx, args[0]); err != nil {
					return err
				}
				if a.json() {
					return a.writeJSON(cmd, map[string]string{"deleted": args[0]})
				}
				ui.Success(fmt.Sprintf("Deleted budget %s", args[0]))
				return nil
			})
		},
	}

	cmd.AddCommand(create, list, remove,
		newBudgetCopyCmd(opts, domain.CopyKindCopy),
		newBudgetCopyCmd(opts, domain.CopyKindWhatIf),
	)
	return cmd
}

func newBudgetCopyCmd(opts *rootOptions, kind domain.CopyKind) *cobra.Command {
	short := "Copy a budget with all of its items"
	if kind == domain.CopyKindWhatIf {
		short = "Copy a budget into a what-if scenario"
	}

	var name string
	cmd := &cobra.Command{
		Use:   string(kind) + " <budget-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				budget, err := a.store.CopyBudget(ctx, args[0], name, kind)
				if err != nil {
					return err
				}
				a.logger.Info("budget copied", "source", args[0], "budget", budget.ID, "kind", kind)

				if a.json() {
					return a.writeJSON(cmd, budget)
				}
				ui.Success(fmt.Sprintf("Created budget %q from %s", budget.Name, args[0]))
				ui.Field("ID", budget.ID)
				ui.Field("Items", budget.CurrentSequenceNumber)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Name of the new budget (default: source name with a suffix)")
	return cmd
}
