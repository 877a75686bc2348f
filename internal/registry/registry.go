package registry

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/parser"
	"github.com/blaug210/budget-app/internal/parsers/csv"
	"github.com/blaug210/budget-app/internal/parsers/ofx"
	"github.com/blaug210/budget-app/internal/parsers/xml"
	"github.com/blaug210/budget-app/internal/rules"
)

// ErrUnsupported is returned when no registered parser accepts a file
var ErrUnsupported = errors.New("unsupported file format")

// HeaderSize is how much of a file is inspected for format detection
const HeaderSize = 512

// Registry holds all registered parsers
type Registry struct {
	parsers []parser.Parser
}

// New creates a registry with the built-in OFX, XML and CSV parsers.
// OFX comes first so OFX 2.x files with an .xml extension are not taken by the XML parser.
// A nil rules engine makes the OFX parser use the embedded categorization rules.
func New(categories *rules.Engine) (*Registry, error) {
	ofxParser, err := ofx.NewParser(categories)
	if err != nil {
		return nil, fmt.Errorf("failed to create OFX parser: %w", err)
	}

	r := &Registry{}
	for _, p := range []parser.Parser{ofxParser, xml.NewParser(), csv.NewParser()} {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustNew is New with the embedded rules; it panics if they fail to load
func MustNew() *Registry {
	r, err := New(nil)
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds a parser; names must be unique
func (r *Registry) Register(p parser.Parser) error {
	if p == nil {
		return fmt.Errorf("cannot register nil parser")
	}
	for _, existing := range r.parsers {
		if existing.Name() == p.Name() {
			return fmt.Errorf("parser %q already registered", p.Name())
		}
	}
	r.parsers = append(r.parsers, p)
	return nil
}

// ForFileType returns the first parser producing the given file type
func (r *Registry) ForFileType(t domain.FileType) (parser.Parser, error) {
	for _, p := range r.parsers {
		if p.FileType() == t {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no parser for file type %q: %w", t, ErrUnsupported)
}

// FindParser returns the best parser for this file.
// Reads the first 512 bytes for format detection via header inspection.
func (r *Registry) FindParser(path string) (parser.Parser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}
	// Short files are fine; parsers get whatever was read
	return r.Detect(path, header[:n])
}

// Detect returns the first parser accepting a file with this name and leading bytes
func (r *Registry) Detect(name string, header []byte) (parser.Parser, error) {
	for _, p := range r.parsers {
		if p.CanParse(name, header) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no parser found for file: %s: %w", name, ErrUnsupported)
}

// ListParsers returns the names of all registered parsers in registration order
func (r *Registry) ListParsers() []string {
	names := make([]string, len(r.parsers))
	for i, p := range r.parsers {
		names[i] = p.Name()
	}
	return names
}
