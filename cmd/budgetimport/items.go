package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/importer"
	"github.com/blaug210/budget-app/internal/parser"
	"github.com/blaug210/budget-app/internal/ui"
	"github.com/blaug210/budget-app/internal/validate"
)

func newItemsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Inspect and maintain budget items",
	}

	var budgetID string
	cmd.PersistentFlags().StringVar(&budgetID, "budget", "", "Budget ID (required)")
	_ = cmd.MarkPersistentFlagRequired("budget")

	list := &cobra.Command{
		Use:   "list",
		Short: "List items in date order with running balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if _, err := a.store.GetBudget(ctx, budgetID); err != nil {
					return err
				}
				items, err := a.store.ListItems(ctx, budgetID)
				if err != nil {
					return err
				}

				if a.json() {
					return a.writeJSON(cmd, items)
				}
				if len(items) == 0 {
					ui.Info("No items")
					return nil
				}
				w := cmd.OutOrStdout()
				for _, item := range items {
					fmt.Fprintf(w, "%5d  %s  %12s  %12s  %s\n",
						item.SequenceNumber,
						item.Date.Format(domain.DateLayout),
						item.Amount.StringFixed(2),
						item.RunningBalance.StringFixed(2),
						item.Description)
				}
				return nil
			})
		},
	}

	var check bool
	rebalance := &cobra.Command{
		Use:   "rebalance",
		Short: "Recompute running balances for the whole budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if _, err := a.store.GetBudget(ctx, budgetID); err != nil {
					return err
				}

				if check {
					items, err := a.store.ListItems(ctx, budgetID)
					if err != nil {
						return err
					}
					result := validate.ValidateItems(items)
					if a.json() {
						return a.writeJSON(cmd, result)
					}
					reportValidation(result)
					if !result.Valid() {
						return fmt.Errorf("budget %s failed validation with %d error(s)", budgetID, len(result.Errors))
					}
					return nil
				}

				final, err := a.engine.RecalculateRunningBalances(ctx, budgetID)
				if err != nil {
					return err
				}
				if a.json() {
					return a.writeJSON(cmd, map[string]string{"budget": budgetID, "balance": final.StringFixed(2)})
				}
				ui.Success(fmt.Sprintf("Running balances recomputed, final balance %s", final.StringFixed(2)))
				return nil
			})
		},
	}
	rebalance.Flags().BoolVar(&check, "check", false, "Only verify stored balances and item integrity")

	cmd.AddCommand(list, rebalance,
		newItemAddCmd(opts, &budgetID),
		newItemEditCmd(opts, &budgetID),
		newItemDeleteCmd(opts, &budgetID),
	)
	return cmd
}

// itemFlags are the fields of a hand-entered item
type itemFlags struct {
	date        string
	description string
	amount      string
	categories  []string
	member      string
	source      string
}

func (f *itemFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.date, "date", "", "Item date, e.g. 2024-01-31 (required)")
	cmd.Flags().StringVar(&f.description, "description", "", "Item description (required)")
	cmd.Flags().StringVar(&f.amount, "amount", "", "Amount; negative for expenses (required)")
	cmd.Flags().StringArrayVar(&f.categories, "category", nil, "Category name (repeatable)")
	cmd.Flags().StringVar(&f.member, "member", "", "Member name")
	cmd.Flags().StringVar(&f.source, "source", "", "Source name")
	for _, name := range []string{"date", "description", "amount"} {
		_ = cmd.MarkFlagRequired(name)
	}
}

func (f *itemFlags) input() (importer.ItemInput, error) {
	date, err := parser.ParseDate(f.date)
	if err != nil {
		return importer.ItemInput{}, fmt.Errorf("--date: %w", err)
	}
	amount, err := parser.ParseAmount(f.amount)
	if err != nil {
		return importer.ItemInput{}, fmt.Errorf("--amount: %w", err)
	}
	return importer.ItemInput{
		Date:        date,
		Description: f.description,
		Amount:      amount,
		Categories:  f.categories,
		Member:      f.member,
		Source:      f.source,
	}, nil
}

func newItemAddCmd(opts *rootOptions, budgetID *string) *cobra.Command {
	var flags itemFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an item by hand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := flags.input()
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				item, err := a.engine.AddItem(ctx, *budgetID, in)
				if err != nil {
					return err
				}
				if a.json() {
					return a.writeJSON(cmd, item)
				}
				ui.Success(fmt.Sprintf("Added %q", item.Description))
				ui.Field("ID", item.ID)
				ui.Field("Unique ID", item.UniqueID)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newItemEditCmd(opts *rootOptions, budgetID *string) *cobra.Command {
	var flags itemFlags
	cmd := &cobra.Command{
		Use:   "edit <item-id>",
		Short: "Replace the fields of an item; categories are kept unless --category is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := flags.input()
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := itemInBudget(ctx, a, *budgetID, args[0]); err != nil {
					return err
				}
				item, err := a.engine.UpdateItem(ctx, args[0], in)
				if err != nil {
					return err
				}
				if a.json() {
					return a.writeJSON(cmd, item)
				}
				ui.Success(fmt.Sprintf("Updated %s", item.UniqueID))
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newItemDeleteCmd(opts *rootOptions, budgetID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <item-id>",
		Short: "Delete an item and recompute running balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := itemInBudget(ctx, a, *budgetID, args[0]); err != nil {
					return err
				}
				if err := a.engine.DeleteItem(ctx, args[0]); err != nil {
					return err
				}
				if a.json() {
					return a.writeJSON(cmd, map[string]string{"deleted": args[0]})
				}
				ui.Success(fmt.Sprintf("Deleted item %s", args[0]))
				return nil
			})
		},
	}
}

func itemInBudget(ctx context.Context, a *app, budgetID, itemID string) error {
	item, err := a.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.BudgetID != budgetID {
		return fmt.Errorf("item %s belongs to budget %s, not %s", itemID, item.BudgetID, budgetID)
	}
	return nil
}

func reportValidation(result *validate.ValidationResult) {
	for _, w := range result.Warnings {
		ui.Warning(fmt.Sprintf("%s %s: %s", w.Entity, w.ID, w.Message))
	}
	if result.Valid() {
		ui.Success("All items valid")
		return
	}
	messages := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		messages[i] = e.Error()
	}
	ui.ErrorList(messages)
}
