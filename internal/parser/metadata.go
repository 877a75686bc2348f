package parser

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/blaug210/budget-app/internal/domain"
)

// Metadata contains context about a file discovered for import.
//
// Create instances using NewMetadata(filePath, detectedAt). The file type is
// inferred from the extension and is empty when the extension is not one of
// the importable formats; callers may still set it explicitly.
type Metadata struct {
	filePath   string
	fileType   domain.FileType
	size       int64
	detectedAt time.Time
}

// extensionTypes maps lower-case file extensions to import file types
var extensionTypes = map[string]domain.FileType{
	".csv": domain.FileTypeCSV,
	".xml": domain.FileTypeXML,
	".ofx": domain.FileTypeOFX,
	".qfx": domain.FileTypeOFX,
}

// NewMetadata creates a new Metadata instance with validated required fields.
// Returns an error if filePath is empty or detectedAt is zero.
func NewMetadata(filePath string, detectedAt time.Time) (*Metadata, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if detectedAt.IsZero() {
		return nil, fmt.Errorf("detected time cannot be zero")
	}
	return &Metadata{
		filePath:   filePath,
		fileType:   FileTypeForPath(filePath),
		detectedAt: detectedAt,
	}, nil
}

// FileTypeForPath infers the import file type from a path's extension
func FileTypeForPath(path string) domain.FileType {
	return extensionTypes[strings.ToLower(filepath.Ext(path))]
}

// FilePath returns the file path
func (m *Metadata) FilePath() string {
	return m.filePath
}

// FileName returns the base name used for import trackers
func (m *Metadata) FileName() string {
	return filepath.Base(m.filePath)
}

// FileType returns the inferred or explicitly set file type
func (m *Metadata) FileType() domain.FileType {
	return m.fileType
}

// Size returns the file size in bytes, if known
func (m *Metadata) Size() int64 {
	return m.size
}

// DetectedAt returns the timestamp when the file was detected
func (m *Metadata) DetectedAt() time.Time {
	return m.detectedAt
}

// SetFileType overrides the inferred file type
func (m *Metadata) SetFileType(t domain.FileType) {
	m.fileType = t
}

// SetSize sets the file size
func (m *Metadata) SetSize(size int64) {
	m.size = size
}
