// Package pipeline wires file detection, parsing and the import engine together.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/firestore"
	"github.com/blaug210/budget-app/internal/importer"
	"github.com/blaug210/budget-app/internal/parser"
	"github.com/blaug210/budget-app/internal/registry"
	"github.com/blaug210/budget-app/internal/scanner"
	"github.com/blaug210/budget-app/internal/store"
)

// ErrNoTransactions is returned when a file parses cleanly but yields no records
var ErrNoTransactions = errors.New("no valid transactions found in the file")

// ParseError reports a file that was rejected because its parser collected errors
type ParseError struct {
	FileName string
	Messages []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("file parsing errors in %s: %d error(s)", e.FileName, len(e.Messages))
}

// Publisher mirrors finished imports to an external audit store
type Publisher interface {
	PublishImport(ctx context.Context, rec *firestore.ImportRecord) error
}

// TrackerSource looks up persisted import trackers
type TrackerSource interface {
	GetImportTracker(ctx context.Context, id string) (*domain.ImportTracker, error)
}

// ParseResult is one parsed file
type ParseResult struct {
	FilePath string
	FileName string
	FileType domain.FileType
	Parser   string
	Result   *parser.Result
}

// FileResult is the outcome of importing one file of a batch
type FileResult struct {
	FilePath string
	Import   *importer.Result
	Err      error
}

// Pipeline orchestrates parsing files and importing them into budgets
type Pipeline struct {
	registry  *registry.Registry
	engine    *importer.Engine
	trackers  TrackerSource
	publisher Publisher
	logger    *log.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithPublisher mirrors every completed import through pub
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) {
		p.publisher = pub
	}
}

// WithLogger sets the pipeline logger
func WithLogger(logger *log.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a pipeline. trackers is only consulted when a publisher is set.
func New(reg *registry.Registry, engine *importer.Engine, trackers TrackerSource, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry: reg,
		engine:   engine,
		trackers: trackers,
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFile parses a single file. An empty fileType detects the format from the
// extension and header; otherwise the parser for that type is used.
func (p *Pipeline) ParseFile(ctx context.Context, filePath string, fileType domain.FileType) (*ParseResult, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	parsed, err := p.ParseReader(ctx, filepath.Base(filePath), f, fileType)
	if err != nil {
		return nil, err
	}
	parsed.FilePath = filePath
	return parsed, nil
}

// ParseReader parses content named name, e.g. an uploaded file. Format detection uses
// the name's extension and the first registry.HeaderSize bytes.
func (p *Pipeline) ParseReader(ctx context.Context, name string, r io.Reader, fileType domain.FileType) (*ParseResult, error) {
	br := bufio.NewReaderSize(r, registry.HeaderSize)

	var (
		selected parser.Parser
		err      error
	)
	if fileType == "" {
		header, peekErr := br.Peek(registry.HeaderSize)
		if peekErr != nil && !errors.Is(peekErr, io.EOF) && !errors.Is(peekErr, bufio.ErrBufferFull) {
			return nil, fmt.Errorf("failed to read header: %w", peekErr)
		}
		selected, err = p.registry.Detect(name, header)
	} else {
		selected, err = p.registry.ForFileType(fileType)
	}
	if err != nil {
		return nil, err
	}

	result, err := selected.Parse(ctx, br)
	if err != nil {
		return nil, fmt.Errorf("parsing failed: %w", err)
	}

	p.logger.Debug("parsed file",
		"file", name,
		"parser", selected.Name(),
		"transactions", len(result.Transactions),
		"errors", len(result.Errors),
		"warnings", len(result.Warnings))

	return &ParseResult{
		FileName: name,
		FileType: selected.FileType(),
		Parser:   selected.Name(),
		Result:   result,
	}, nil
}

// PreviewFile parses a file and previews its import into a budget without writing
func (p *Pipeline) PreviewFile(ctx context.Context, budgetID, filePath string, fileType domain.FileType, limit int) (*ParseResult, *importer.PreviewResult, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return p.PreviewReader(ctx, budgetID, filepath.Base(filePath), f, fileType, limit)
}

// PreviewReader is PreviewFile for content that is not on disk
func (p *Pipeline) PreviewReader(ctx context.Context, budgetID, name string, r io.Reader, fileType domain.FileType, limit int) (*ParseResult, *importer.PreviewResult, error) {
	parsed, err := p.parseForImport(ctx, name, r, fileType)
	if err != nil {
		return parsed, nil, err
	}

	preview, err := p.engine.Preview(ctx, budgetID, parsed.Result.Transactions, limit)
	if err != nil {
		return parsed, nil, err
	}
	return parsed, preview, nil
}

// ImportFile parses a file and imports it into a budget as one import run.
// Files with parse errors or without records are rejected before anything is written.
func (p *Pipeline) ImportFile(ctx context.Context, budgetID, filePath string, fileType domain.FileType) (*ParseResult, *importer.Result, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	parsed, res, err := p.ImportReader(ctx, budgetID, filepath.Base(filePath), f, fileType, nil)
	if parsed != nil {
		parsed.FilePath = filePath
	}
	return parsed, res, err
}

// ImportReader is ImportFile for content that is not on disk. A non-nil progress is
// called after each record of this run.
func (p *Pipeline) ImportReader(ctx context.Context, budgetID, name string, r io.Reader, fileType domain.FileType, progress importer.ProgressFunc) (*ParseResult, *importer.Result, error) {
	parsed, err := p.parseForImport(ctx, name, r, fileType)
	if err != nil {
		return parsed, nil, err
	}

	engine := p.engine
	if progress != nil {
		engine = engine.With(importer.WithProgress(progress))
	}

	res, err := engine.Import(ctx, budgetID, parsed.Result.Transactions, parsed.FileName, parsed.FileType)
	if err != nil {
		return parsed, nil, err
	}

	p.publish(ctx, res)
	return parsed, res, nil
}

// ImportDir imports every importable file under dir, each as its own import run.
// Per-file failures are collected; storage faults and cancellation stop the batch.
func (p *Pipeline) ImportDir(ctx context.Context, budgetID, dir string) ([]FileResult, error) {
	files, err := scanner.New(dir).Scan()
	if err != nil {
		return nil, err
	}

	results := make([]FileResult, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		_, res, err := p.ImportFile(ctx, budgetID, file.Path, "")
		results = append(results, FileResult{FilePath: file.Path, Import: res, Err: err})
		if err == nil {
			continue
		}

		if errors.Is(err, store.ErrStorageFault) || ctx.Err() != nil {
			return results, err
		}
		p.logger.Warn("skipping file", "file", file.Metadata.FileName(), "error", err)
	}

	return results, nil
}

func (p *Pipeline) parseForImport(ctx context.Context, name string, r io.Reader, fileType domain.FileType) (*ParseResult, error) {
	parsed, err := p.ParseReader(ctx, name, r, fileType)
	if err != nil {
		return nil, err
	}
	if parsed.Result.HasErrors() {
		return parsed, &ParseError{FileName: parsed.FileName, Messages: parsed.Result.ErrorMessages()}
	}
	if len(parsed.Result.Transactions) == 0 {
		return parsed, ErrNoTransactions
	}
	return parsed, nil
}

// publish mirrors a committed import; failures are logged since the import itself succeeded
func (p *Pipeline) publish(ctx context.Context, res *importer.Result) {
	if p.publisher == nil || p.trackers == nil {
		return
	}

	tracker, err := p.trackers.GetImportTracker(ctx, res.TrackerID)
	if err != nil {
		p.logger.Warn("failed to load import tracker for mirroring", "tracker", res.TrackerID, "error", err)
		return
	}

	rec, err := firestore.NewImportRecord(tracker, res.Stats.Errors, res.Success)
	if err != nil {
		p.logger.Warn("invalid import record", "tracker", res.TrackerID, "error", err)
		return
	}

	if err := p.publisher.PublishImport(ctx, rec); err != nil {
		p.logger.Warn("failed to mirror import", "tracker", res.TrackerID, "error", err)
		return
	}
	p.logger.Debug("mirrored import", "tracker", res.TrackerID, "collection", firestore.ImportsCollection)
}
