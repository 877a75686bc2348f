package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blaug210/budget-app/internal/parser"
)

// Scanner walks a directory tree and finds importable transaction files
type Scanner struct {
	rootDir string
	now     func() time.Time
}

// New creates a new scanner for the given root directory
func New(rootDir string) *Scanner {
	return &Scanner{rootDir: rootDir, now: time.Now}
}

// ScanResult represents a found file with metadata
type ScanResult struct {
	Path     string
	Metadata *parser.Metadata
}

// Scan walks the directory tree and returns every CSV, XML, OFX and QFX file in
// lexical path order. Hidden directories are skipped.
func (s *Scanner) Scan() ([]ScanResult, error) {
	var results []ScanResult

	rootDir := s.expandHome(s.rootDir)

	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if path != rootDir && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if !s.isImportFile(path) {
			return nil
		}

		meta, err := parser.NewMetadata(path, s.now())
		if err != nil {
			return fmt.Errorf("invalid metadata for %s: %w", path, err)
		}
		meta.SetSize(info.Size())

		results = append(results, ScanResult{
			Path:     path,
			Metadata: meta,
		})

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	return results, nil
}

// isImportFile checks if file has an importable extension
func (s *Scanner) isImportFile(path string) bool {
	return parser.FileTypeForPath(path) != ""
}

// expandHome expands ~ to home directory
func (s *Scanner) expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
