package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/spritepal/internal/config"
)

func TestNewAppendsToProjectLog(t *testing.T) {
	projectDir := t.TempDir()
	logger, err := New(projectDir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Printf("derived %d palettes\n", 3)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(projectDir, config.ProjectDirName, "logs", FileName))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	if !strings.HasSuffix(text, "] derived 3 palettes\n") || strings.Count(text, "\n") != 1 {
		t.Fatalf("unexpected log contents %q", text)
	}
}

func TestNilLoggerIsSilent(t *testing.T) {
	var logger *Logger
	logger.Printf("ignored")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close on nil: %v", err)
	}
	var buf bytes.Buffer
	NewWriter(&buf).Printf("hello")
	if !strings.Contains(buf.String(), "] hello") {
		t.Fatalf("writer logger output %q", buf.String())
	}
}
