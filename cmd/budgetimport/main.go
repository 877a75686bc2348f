package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/blaug210/budget-app/internal/config"
	"github.com/blaug210/budget-app/internal/firestore"
	"github.com/blaug210/budget-app/internal/importer"
	"github.com/blaug210/budget-app/internal/logging"
	"github.com/blaug210/budget-app/internal/output"
	"github.com/blaug210/budget-app/internal/pipeline"
	"github.com/blaug210/budget-app/internal/registry"
	"github.com/blaug210/budget-app/internal/rules"
	"github.com/blaug210/budget-app/internal/store"
	"github.com/blaug210/budget-app/internal/ui"
)

const (
	version = "0.1.0"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// rootOptions holds the persistent flags shared by every command
type rootOptions struct {
	cfgFile string
	verbose bool
	timeout time.Duration
	format  string
	stderr  io.Writer
}

func main() {
	if err := newRootCmd(os.Stderr).ExecuteContext(context.Background()); err != nil {
		ui.Error(err.Error())
		os.Exit(1)
	}
}

func newRootCmd(stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stderr: stderr}

	root := &cobra.Command{
		Use:   "budgetimport",
		Short: "Import bank and budget exports into budgets",
		Long: `budgetimport - transaction import pipeline for household budgets

Parses CSV, XML and OFX/QFX exports, previews what an import would do,
and imports new transactions while skipping exact duplicates.`,
		Example: `  # Preview a bank export before importing it
  budgetimport preview statement.ofx --budget <budget-id>

  # Import every export under a directory
  budgetimport import ~/statements --budget <budget-id>`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.cfgFile, "config", "c", "", "Config file (default $HOME/.config/budgetimport/config.yaml)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging and full error lists")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Abort the command after this long (0 = no limit)")
	flags.StringVar(&opts.format, "format", formatText, "Output format: text or json")
	flags.String("db", "", "SQLite database path")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("rules", "", "OFX categorization rules file (YAML)")

	root.AddCommand(
		newGroupCmd(opts),
		newBudgetCmd(opts),
		newParseCmd(opts),
		newPreviewCmd(opts),
		newImportCmd(opts),
		newItemsCmd(opts),
		newImportsCmd(opts),
		newServeCmd(opts),
		newRulesCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "budgetimport version %s\n", version)
		},
	}
}

// app carries everything a command needs once configuration is loaded
type app struct {
	opts     *rootOptions
	cfg      config.Config
	logger   *log.Logger
	rules    *rules.Engine
	registry *registry.Registry

	store     *store.Store
	engine    *importer.Engine
	pipeline  *pipeline.Pipeline
	firestore *firestore.Client
}

// loadApp reads configuration and builds the logger and parser registry
func loadApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	if opts.format != formatText && opts.format != formatJSON {
		return nil, fmt.Errorf("invalid --format %q: must be %s or %s", opts.format, formatText, formatJSON)
	}

	cfg, err := config.Load(opts.cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if opts.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, opts.stderr)
	if err != nil {
		return nil, err
	}

	categories, err := rules.Load(cfg.Rules.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	reg, err := registry.New(categories)
	if err != nil {
		return nil, fmt.Errorf("failed to create parser registry: %w", err)
	}
	logger.Debug("registered parsers", "parsers", reg.ListParsers())

	return &app{opts: opts, cfg: cfg, logger: logger, rules: categories, registry: reg}, nil
}

// openApp is loadApp plus the database, import engine, pipeline and optional mirror
func openApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	a, err := loadApp(cmd, opts)
	if err != nil {
		return nil, err
	}

	policy, err := importer.ParseSourceTypePolicy(a.cfg.Import.SourceType)
	if err != nil {
		return nil, err
	}

	a.store, err = store.Open(cmd.Context(), a.cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("opened database", "path", a.cfg.Database.Path)

	a.engine = importer.NewEngine(a.store,
		importer.WithLogger(a.logger),
		importer.WithSourceTypePolicy(policy),
		importer.WithPreviewLimit(a.cfg.Import.PreviewLimit),
	)

	pipelineOpts := []pipeline.Option{pipeline.WithLogger(a.logger)}
	if a.cfg.Firestore.ProjectID != "" {
		a.firestore, err = firestore.NewClient(cmd.Context(), a.cfg.Firestore.ProjectID, a.cfg.Firestore.CredentialsFile)
		if err != nil {
			a.store.Close()
			return nil, err
		}
		pipelineOpts = append(pipelineOpts, pipeline.WithPublisher(a.firestore))
	}
	a.pipeline = pipeline.New(a.registry, a.engine, a.store, pipelineOpts...)

	return a, nil
}

func (a *app) Close() error {
	var errs []error
	if a.firestore != nil {
		errs = append(errs, a.firestore.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// context applies Ctrl+C/SIGTERM cancellation and the --timeout flag
func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	if a.opts.timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, a.opts.timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func (a *app) json() bool {
	return a.opts.format == formatJSON
}

// writeJSON prints v to the command's stdout
func (a *app) writeJSON(cmd *cobra.Command, v any) error {
	return output.WriteJSON(v, cmd.OutOrStdout())
}

// errorList prints messages bounded to the first few unless --verbose is set
func (a *app) errorList(messages []string) {
	if a.opts.verbose {
		ui.ErrorList(messages)
		return
	}
	ui.ErrorList(output.Summarize(messages, output.DefaultErrorLimit))
}

// withApp opens the app for the duration of run
func withApp(cmd *cobra.Command, opts *rootOptions, run func(ctx context.Context, a *app) error) (err error) {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	ctx, cancel := a.context(cmd)
	defer cancel()
	return run(ctx, a)
}
