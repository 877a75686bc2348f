package registry

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/parser"
)

// mockParser implements parser.Parser for testing
type mockParser struct {
	name         string
	fileType     domain.FileType
	canParseFunc func(string, []byte) bool
}

func (m *mockParser) Name() string {
	return m.name
}

func (m *mockParser) FileType() domain.FileType {
	return m.fileType
}

func (m *mockParser) CanParse(path string, header []byte) bool {
	if m.canParseFunc != nil {
		return m.canParseFunc(path, header)
	}
	return false
}

func (m *mockParser) Parse(ctx context.Context, r io.Reader) (*parser.Result, error) {
	return parser.NewResult("Row"), nil
}

var builtIn = []string{"ofx", "xml", "csv"}

func assertNames(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected parsers %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Parser %d: expected '%s', got '%s'", i, want[i], got[i])
		}
	}
}

func createTempFileWithExt(t *testing.T, content, ext string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statement"+ext)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

func TestRegistry_New(t *testing.T) {
	reg, err := New(nil)
	if err != nil {
		t.Fatalf("New() returned unexpected error: %v", err)
	}
	if reg == nil {
		t.Fatal("New() returned nil registry")
	}
	assertNames(t, reg.ListParsers(), builtIn)
}

func TestRegistry_MustNew(t *testing.T) {
	reg := MustNew()
	if reg == nil {
		t.Fatal("MustNew() returned nil registry")
	}
	assertNames(t, reg.ListParsers(), builtIn)
}

func TestRegistry_Register(t *testing.T) {
	reg := MustNew()

	if err := reg.Register(&mockParser{name: "json"}); err != nil {
		t.Fatalf("Failed to register parser: %v", err)
	}
	assertNames(t, reg.ListParsers(), append(append([]string{}, builtIn...), "json"))
}

func TestRegistry_Register_NilParser(t *testing.T) {
	reg := MustNew()
	err := reg.Register(nil)
	if err == nil {
		t.Fatal("Expected error when registering nil parser")
	}
	if !strings.Contains(err.Error(), "cannot register nil parser") {
		t.Errorf("Expected 'cannot register nil parser' error, got: %v", err)
	}
}

func TestRegistry_Register_DuplicateName(t *testing.T) {
	reg := MustNew()

	err := reg.Register(&mockParser{name: "csv"})
	if err == nil {
		t.Fatal("Expected error when registering duplicate parser name")
	}
	if !strings.Contains(err.Error(), "already registered") || !strings.Contains(err.Error(), "csv") {
		t.Errorf("Expected 'already registered' error naming csv, got: %v", err)
	}
	assertNames(t, reg.ListParsers(), builtIn)
}

func TestRegistry_ForFileType(t *testing.T) {
	reg := MustNew()

	tests := []struct {
		fileType     domain.FileType
		expectParser string
		expectError  bool
	}{
		{domain.FileTypeCSV, "csv", false},
		{domain.FileTypeXML, "xml", false},
		{domain.FileTypeOFX, "ofx", false},
		{domain.FileTypeExcel, "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.fileType), func(t *testing.T) {
			p, err := reg.ForFileType(tt.fileType)
			if tt.expectError {
				if err == nil {
					t.Fatalf("Expected error, got parser %s", p.Name())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if p.Name() != tt.expectParser {
				t.Errorf("Expected parser '%s', got '%s'", tt.expectParser, p.Name())
			}
		})
	}
}

func TestRegistry_FindParser(t *testing.T) {
	tests := []struct {
		name          string
		fileContent   string
		fileExt       string
		expectParser  string
		expectError   bool
		errorContains string
	}{
		{
			name:         "OFX 1.x file",
			fileContent:  "OFXHEADER:100\nDATA:OFXSGML\n<OFX><SIGNONMSGSRSV1></SIGNONMSGSRSV1></OFX>",
			fileExt:      ".ofx",
			expectParser: "ofx",
		},
		{
			name:         "QFX file",
			fileContent:  "OFXHEADER:100\nDATA:OFXSGML\n<OFX></OFX>",
			fileExt:      ".qfx",
			expectParser: "ofx",
		},
		{
			name:         "OFX 2.x file with xml extension",
			fileContent:  `<?xml version="1.0"?><?OFX OFXHEADER="200" VERSION="211"?><OFX></OFX>`,
			fileExt:      ".xml",
			expectParser: "ofx",
		},
		{
			name:         "XML transactions",
			fileContent:  `<?xml version="1.0"?><transactions><transaction></transaction></transactions>`,
			fileExt:      ".xml",
			expectParser: "xml",
		},
		{
			name:         "CSV by extension",
			fileContent:  "Date,Description,Amount,Category\n2024-01-01,Test,100.00,Misc",
			fileExt:      ".csv",
			expectParser: "csv",
		},
		{
			name:         "CSV by header",
			fileContent:  "date,description,amount,category\n2024-01-01,Test,100.00,Misc",
			fileExt:      ".txt",
			expectParser: "csv",
		},
		{
			name:          "No parser matches",
			fileContent:   "Some unknown format",
			fileExt:       ".txt",
			expectError:   true,
			errorContains: "no parser found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := createTempFileWithExt(t, tt.fileContent, tt.fileExt)

			found, err := MustNew().FindParser(path)

			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errorContains, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if found.Name() != tt.expectParser {
				t.Errorf("Expected parser '%s', got '%s'", tt.expectParser, found.Name())
			}
		})
	}
}

func TestRegistry_FindParser_FileErrors(t *testing.T) {
	tests := []struct {
		name          string
		filePath      string
		errorContains string
	}{
		{
			name:          "Missing file",
			filePath:      "/nonexistent/file.ofx",
			errorContains: "failed to open file",
		},
		{
			name:          "Directory instead of file",
			filePath:      os.TempDir(),
			errorContains: "failed to read header",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MustNew().FindParser(tt.filePath)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("Expected error containing '%s', got '%s'", tt.errorContains, err.Error())
			}
		})
	}
}

func TestRegistry_FindParser_HeaderReading(t *testing.T) {
	tests := []struct {
		name       string
		fileSize   int
		expectRead int
	}{
		{"Small file (< 512 bytes)", 100, 100},
		{"Large file (> 512 bytes)", 1024, 512},
		{"Exactly 512 bytes", 512, 512},
		{"Empty file", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := createTempFileWithExt(t, strings.Repeat("x", tt.fileSize), ".dat")

			var seen int
			reg := &Registry{}
			if err := reg.Register(&mockParser{
				name: "probe",
				canParseFunc: func(path string, header []byte) bool {
					seen = len(header)
					return true
				},
			}); err != nil {
				t.Fatalf("Failed to register parser: %v", err)
			}

			if _, err := reg.FindParser(path); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if seen != tt.expectRead {
				t.Errorf("Expected header of %d bytes, got %d", tt.expectRead, seen)
			}
		})
	}
}

func TestRegistry_Detect(t *testing.T) {
	reg := MustNew()

	tests := []struct {
		name     string
		file     string
		header   string
		expected string
		wantErr  bool
	}{
		{"OFX SGML", "bank.qfx", "OFXHEADER:100\nDATA:OFXSGML", "ofx", false},
		{"OFX v2 with xml extension", "bank.xml", `<?xml version="1.0"?><?OFX OFXHEADER="200"?>`, "ofx", false},
		{"Plain XML", "export.xml", `<?xml version="1.0"?><transactions>`, "xml", false},
		{"CSV by header", "upload.txt", "Date,Description,Amount,Category\n", "csv", false},
		{"Unknown", "notes.txt", "hello", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := reg.Detect(tt.file, []byte(tt.header))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got parser %s", p.Name())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if p.Name() != tt.expected {
				t.Errorf("Expected parser '%s', got '%s'", tt.expected, p.Name())
			}
		})
	}
}
