package pdf

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/a3tai/cardiopredict/internal/pdf/pdftest"
)

func TestLoader_LoadFile(t *testing.T) {
	tempDir := t.TempDir()

	validPath := pdftest.WriteFile(t, tempDir, "report.pdf", "Age: 45")
	txtPath := filepath.Join(tempDir, "report.txt")
	emptyPath := filepath.Join(tempDir, "empty.pdf")
	largePath := filepath.Join(tempDir, "large.pdf")
	dirPath := filepath.Join(tempDir, "dir.pdf")

	if err := os.WriteFile(txtPath, []byte("This is not a PDF"), 0o644); err != nil {
		t.Fatalf("failed to create txt file: %v", err)
	}
	if err := os.WriteFile(emptyPath, nil, 0o644); err != nil {
		t.Fatalf("failed to create empty file: %v", err)
	}
	if err := os.WriteFile(largePath, make([]byte, 64*1024+1), 0o644); err != nil {
		t.Fatalf("failed to create large file: %v", err)
	}
	if err := os.Mkdir(dirPath, 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}

	loader := NewLoader(64 * 1024)

	tests := []struct {
		name    string
		path    string
		wantErr bool
		errMsg  string
	}{
		{name: "valid pdf", path: validPath},
		{name: "empty path", path: "", wantErr: true, errMsg: "path cannot be empty"},
		{name: "non-existent file", path: filepath.Join(tempDir, "nope.pdf"), wantErr: true, errMsg: "file does not exist"},
		{name: "directory", path: dirPath, wantErr: true, errMsg: "path is a directory"},
		{name: "non-PDF extension", path: txtPath, wantErr: true, errMsg: "file is not a PDF"},
		{name: "empty file", path: emptyPath, wantErr: true, errMsg: "file is empty"},
		{name: "file too large", path: largePath, wantErr: true, errMsg: "file too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := loader.LoadFile(tt.path)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("LoadFile() expected error containing %q, got nil", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("LoadFile() error = %v, want containing %q", err, tt.errMsg)
				}
				return
			}

			if err != nil {
				t.Fatalf("LoadFile() unexpected error: %v", err)
			}
			if doc.Name != tt.path {
				t.Errorf("LoadFile() Name = %s, want %s", doc.Name, tt.path)
			}
			if doc.Size() == 0 {
				t.Error("LoadFile() returned empty document")
			}
		})
	}
}

func TestLoader_LoadBoundsReader(t *testing.T) {
	loader := NewLoader(10)

	_, err := loader.Load("big.pdf", strings.NewReader(strings.Repeat("x", 1000)))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("Load() error = %v, want ErrFileTooLarge", err)
	}

	doc, err := loader.Load("Small.PDF", strings.NewReader("0123456789"))
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if doc.Size() != 10 {
		t.Errorf("Load() size = %d, want 10", doc.Size())
	}

	if loader.MaxFileSize() != 10 {
		t.Errorf("MaxFileSize() = %d, want 10", loader.MaxFileSize())
	}
}
