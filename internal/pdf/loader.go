package pdf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrFileTooLarge is returned when a report exceeds the configured size limit
var ErrFileTooLarge = errors.New("file too large")

// Document is a loaded report, held fully in memory
type Document struct {
	Name string
	Data []byte
}

// Size returns the document size in bytes
func (d *Document) Size() int64 {
	return int64(len(d.Data))
}

// Loader reads user-selected reports with a bounded memory footprint
type Loader struct {
	maxFileSize int64
}

// NewLoader creates a loader that refuses files larger than maxFileSize
func NewLoader(maxFileSize int64) *Loader {
	return &Loader{
		maxFileSize: maxFileSize,
	}
}

// LoadFile reads a PDF report from disk
func (l *Loader) LoadFile(path string) (*Document, error) {
	if path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}

	fileInfo, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot access file: %w", err)
	}

	if err := l.ValidateFileInfo(path, fileInfo); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open file: %w", err)
	}
	defer f.Close()

	return l.Load(path, f)
}

// Load reads a report from r. At most maxFileSize+1 bytes are consumed.
func (l *Loader) Load(name string, r io.Reader) (*Document, error) {
	if !hasPDFExtension(name) {
		return nil, fmt.Errorf("file is not a PDF: %s", name)
	}

	data, err := io.ReadAll(io.LimitReader(r, l.maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("file is empty: %s", name)
	}
	if int64(len(data)) > l.maxFileSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, l.maxFileSize)
	}

	return &Document{Name: name, Data: data}, nil
}

// ValidateFileInfo performs basic validation on file info without reading the file
func (l *Loader) ValidateFileInfo(filePath string, fileInfo os.FileInfo) error {
	if fileInfo.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	if !hasPDFExtension(filePath) {
		return fmt.Errorf("file is not a PDF: %s", filePath)
	}

	if fileInfo.Size() == 0 {
		return fmt.Errorf("file is empty: %s", filePath)
	}

	if fileInfo.Size() > l.maxFileSize {
		return fmt.Errorf("%w: %d bytes (max: %d bytes)", ErrFileTooLarge, fileInfo.Size(), l.maxFileSize)
	}

	return nil
}

// MaxFileSize returns the configured size limit
func (l *Loader) MaxFileSize() int64 {
	return l.maxFileSize
}

func hasPDFExtension(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".pdf")
}
