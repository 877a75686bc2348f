package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/importer"
	"github.com/blaug210/budget-app/internal/output"
	"github.com/blaug210/budget-app/internal/pipeline"
	"github.com/blaug210/budget-app/internal/ui"
)

// parseReport is the JSON shape of the parse command
type parseReport struct {
	File         string        `json:"file"`
	Parser       string        `json:"parser"`
	FileType     string        `json:"file_type"`
	Transactions int           `json:"transactions"`
	Errors       []string      `json:"errors"`
	Warnings     []string      `json:"warnings"`
	Records      []recordEntry `json:"records,omitempty"`
}

type recordEntry struct {
	Date            string `json:"date"`
	Description     string `json:"description"`
	Amount          string `json:"amount"`
	Category        string `json:"category"`
	Member          string `json:"member,omitempty"`
	Source          string `json:"source,omitempty"`
	ReferenceNumber string `json:"reference_number,omitempty"`
}

func newParseCmd(opts *rootOptions) *cobra.Command {
	var (
		fileType string
		dump     bool
	)
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a file and report records, errors and warnings without importing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			ft, err := parseFileType(fileType)
			if err != nil {
				return err
			}
			parsed, err := pipeline.New(a.registry, nil, nil, pipeline.WithLogger(a.logger)).ParseFile(ctx, args[0], ft)
			if err != nil {
				return err
			}

			res := parsed.Result
			report := parseReport{
				File:         parsed.FileName,
				Parser:       parsed.Parser,
				FileType:     string(parsed.FileType),
				Transactions: len(res.Transactions),
				Errors:       res.ErrorMessages(),
				Warnings:     res.WarningMessages(),
			}
			if a.json() {
				for _, t := range res.Transactions {
					report.Records = append(report.Records, recordEntry{
						Date:            t.Date.Format(domain.DateLayout),
						Description:     t.Description,
						Amount:          t.Amount.StringFixed(2),
						Category:        t.Category,
						Member:          t.Member,
						Source:          t.Source,
						ReferenceNumber: t.ReferenceNumber,
					})
				}
				return a.writeJSON(cmd, report)
			}

			ui.Header("Parse " + parsed.FileName)
			ui.Field("Parser", parsed.Parser)
			ui.Field("Transactions", report.Transactions)
			if len(report.Warnings) > 0 {
				ui.Warning(fmt.Sprintf("%d warning(s)", len(report.Warnings)))
				for _, w := range report.Warnings {
					ui.Info(w)
				}
			}
			if res.HasErrors() {
				ui.Warning(fmt.Sprintf("%d error(s)", len(report.Errors)))
				a.errorList(report.Errors)
			}

			if dump {
				printer := pp.New()
				printer.SetOutput(cmd.OutOrStdout())
				printer.SetColoringEnabled(!color.NoColor)
				printer.Println(res.Transactions)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fileType, "type", "", "File type: csv, xml or ofx (default: detect)")
	cmd.Flags().BoolVar(&dump, "dump", false, "Pretty-print every parsed record")
	return cmd
}

func newPreviewCmd(opts *rootOptions) *cobra.Command {
	var (
		budgetID string
		fileType string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Show what importing a file would do, without writing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ft, err := parseFileType(fileType)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				parsed, preview, err := a.pipeline.PreviewFile(ctx, budgetID, args[0], ft, limit)
				if err != nil {
					return a.explainParseFailure(err)
				}

				if a.json() {
					return a.writeJSON(cmd, preview)
				}

				ui.Header("Preview " + parsed.FileName)
				ui.Field("Records", preview.TotalCount)
				ui.Field("Shown", preview.PreviewCount)
				ui.Field("Duplicates", preview.TotalDuplicates)
				ui.Field("Will import", preview.WillImport)
				for _, m := range preview.Warnings {
					if m.Type == importer.MessageWarning {
						ui.Warning(m.Message)
					} else {
						ui.Info(m.Message)
					}
				}

				fmt.Fprintln(cmd.OutOrStdout())
				for _, item := range preview.PreviewItems {
					marker := " "
					if item.IsDuplicate {
						marker = "D"
					} else if item.CategoryWillBeCreated {
						marker = "+"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %4d  %s  %12s  %-20s %s\n",
						marker, item.Row, item.Date, item.Amount.StringFixed(2), item.Category, item.Description)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&budgetID, "budget", "", "Budget ID (required)")
	cmd.Flags().StringVar(&fileType, "type", "", "File type: csv, xml or ofx (default: detect)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Number of records to show (default: import.preview_limit)")
	_ = cmd.MarkFlagRequired("budget")
	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var (
		budgetID   string
		fileType   string
		reportFile string
	)
	cmd := &cobra.Command{
		Use:   "import <file|dir>",
		Short: "Import a file, or every importable file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ft, err := parseFileType(fileType)
			if err != nil {
				return err
			}
			info, err := os.Stat(args[0])
			if err != nil {
				return fmt.Errorf("failed to stat %s: %w", args[0], err)
			}

			if info.IsDir() && ft != "" {
				return fmt.Errorf("--type cannot be used with a directory")
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				var results []pipeline.FileResult
				if info.IsDir() {
					dirResults, err := a.pipeline.ImportDir(ctx, budgetID, args[0])
					if err != nil {
						return err
					}
					results = dirResults
				} else {
					_, res, err := a.pipeline.ImportFile(ctx, budgetID, args[0], ft)
					if err != nil {
						return a.explainParseFailure(err)
					}
					results = []pipeline.FileResult{{FilePath: args[0], Import: res}}
				}

				if reportFile != "" {
					if err := output.WriteJSONToFile(importReport(results), output.WriteOptions{FilePath: reportFile}); err != nil {
						return err
					}
				}
				if a.json() {
					if err := a.writeJSON(cmd, importReport(results)); err != nil {
						return err
					}
				} else {
					a.printImportResults(results)
				}

				for _, r := range results {
					if r.Err != nil || !r.Import.Success {
						return fmt.Errorf("import completed with errors")
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&budgetID, "budget", "", "Budget ID (required)")
	cmd.Flags().StringVar(&fileType, "type", "", "File type: csv, xml or ofx (default: detect)")
	cmd.Flags().StringVarP(&reportFile, "output", "o", "", "Also write the JSON report to this file")
	cmd.Flags().String("source-type", "", "Source type for new sources: income or sign")
	_ = cmd.MarkFlagRequired("budget")
	return cmd
}

// fileReport is the JSON shape of one imported file
type fileReport struct {
	File   string           `json:"file"`
	Error  string           `json:"error,omitempty"`
	Result *importer.Result `json:"result,omitempty"`
}

func importReport(results []pipeline.FileResult) []fileReport {
	out := make([]fileReport, len(results))
	for i, r := range results {
		out[i] = fileReport{File: r.FilePath, Result: r.Import}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return out
}

func (a *app) printImportResults(results []pipeline.FileResult) {
	ui.Header("Import")
	for i, r := range results {
		ui.Step(i+1, len(results), r.FilePath)
		if r.Err != nil {
			ui.Error(r.Err.Error())
			var parseErr *pipeline.ParseError
			if errors.As(r.Err, &parseErr) {
				a.errorList(parseErr.Messages)
			}
			continue
		}

		res := r.Import
		if res.Success {
			ui.Success(fmt.Sprintf("Imported %d of %d records", res.Stats.Imported, res.Stats.Total))
		} else {
			ui.Warning(fmt.Sprintf("Imported %d of %d records", res.Stats.Imported, res.Stats.Total))
		}
		ui.Field("Duplicates", res.Stats.Duplicates)
		ui.Field("Errors", res.Stats.Errors)
		ui.Field("Tracker", res.TrackerID)
		if len(res.Errors) > 0 {
			a.errorList(res.Errors)
		}
	}
}

// explainParseFailure prints the parser's messages before returning a parse rejection
func (a *app) explainParseFailure(err error) error {
	var parseErr *pipeline.ParseError
	if errors.As(err, &parseErr) && !a.json() {
		ui.Error("File parsing errors:")
		a.errorList(parseErr.Messages)
	}
	return err
}

func newImportsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imports",
		Short: "Inspect import history",
	}

	var (
		budgetID string
		remote   bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List import runs of a budget, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if remote {
					if a.firestore == nil {
						return fmt.Errorf("--remote needs firestore.project_id to be configured")
					}
					records, err := a.firestore.ListImports(ctx, budgetID)
					if err != nil {
						return err
					}
					if a.json() {
						return a.writeJSON(cmd, records)
					}
					for _, r := range records {
						ui.BlueText(fmt.Sprintf("%s  %s", r.ImportedAt.Format(domain.DateLayout), r.FileName))
						ui.Field("Imported", r.ItemsImported)
						ui.Field("Duplicates", r.DuplicatesFound)
						ui.Field("Success", fmt.Sprintf("%.1f%%", r.SuccessRate))
					}
					return nil
				}

				trackers, err := a.store.ListImportTrackers(ctx, budgetID)
				if err != nil {
					return err
				}
				if a.json() {
					return a.writeJSON(cmd, trackers)
				}
				if len(trackers) == 0 {
					ui.Info("No imports")
					return nil
				}
				for _, t := range trackers {
					ui.BlueText(fmt.Sprintf("%s  %s (%s)", t.ImportDate.Format(domain.DateLayout), t.FileName, t.ID))
					ui.Field("Imported", t.ItemsImported)
					ui.Field("Duplicates", t.DuplicatesFound)
					ui.Field("Success", fmt.Sprintf("%.1f%%", t.SuccessRate()))
				}
				return nil
			})
		},
	}
	list.Flags().StringVar(&budgetID, "budget", "", "Budget ID (required)")
	list.Flags().BoolVar(&remote, "remote", false, "Read the Firestore mirror instead of the database")
	_ = list.MarkFlagRequired("budget")

	var showRemote bool
	show := &cobra.Command{
		Use:   "show <tracker-id>",
		Short: "Show one import run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				var v any
				if showRemote {
					if a.firestore == nil {
						return fmt.Errorf("--remote needs firestore.project_id to be configured")
					}
					rec, err := a.firestore.GetImport(ctx, args[0])
					if err != nil {
						return err
					}
					v = rec
				} else {
					t, err := a.store.GetImportTracker(ctx, args[0])
					if err != nil {
						return err
					}
					v = t
				}

				if a.json() {
					return a.writeJSON(cmd, v)
				}
				printer := pp.New()
				printer.SetOutput(cmd.OutOrStdout())
				printer.SetColoringEnabled(!color.NoColor)
				printer.Println(v)
				return nil
			})
		},
	}
	show.Flags().BoolVar(&showRemote, "remote", false, "Read the Firestore mirror instead of the database")

	cmd.AddCommand(list, show)
	return cmd
}

// parseFileType maps the --type flag onto a parser file type
func parseFileType(s string) (domain.FileType, error) {
	switch ft := domain.FileType(s); ft {
	case "", domain.FileTypeCSV, domain.FileTypeXML, domain.FileTypeOFX:
		return ft, nil
	default:
		return "", fmt.Errorf("unsupported file type: %s", s)
	}
}
