package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingWriterRequiresFilename(t *testing.T) {
	if _, err := NewRotatingWriter(RotationConfig{}); err == nil {
		t.Fatal("expected error for empty filename")
	}
}

func TestRotatingWriterWritesAndTracksSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relaytune.log")

	w, err := NewRotatingWriter(RotationConfig{Filename: path})
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	msg := []byte("autotune session started\n")
	n, err := w.Write(msg)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(msg) {
		t.Errorf("Write returned %d, want %d", n, len(msg))
	}
	if w.Size() != int64(len(msg)) {
		t.Errorf("Size() = %d, want %d", w.Size(), len(msg))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != string(msg) {
		t.Errorf("file content = %q, want %q", data, msg)
	}
}

func TestRotatingWriterAppendsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relaytune.log")
	if err := os.WriteFile(path, []byte("old line\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := NewRotatingWriter(RotationConfig{Filename: path})
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	if _, err := w.Write([]byte("new line\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "old line\nnew line\n" {
		t.Errorf("unexpected content: %q", data)
	}
}

func TestIsRotatedName(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{"relaytune.20260115-120000.log", true},
		{"relaytune.log", false},
		{"relaytune.backup.log", false},
		{"relaytune.2026011-120000.log", false},
		{"other.20260115-120000.log", false},
	}
	for _, tt := range tests {
		if got := isRotatedName(tt.name, "relaytune", ".log"); got != tt.expected {
			t.Errorf("isRotatedName(%q) = %v, want %v", tt.name, got, tt.expected)
		}
	}
}

func TestNewFileLogger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "relaytune.log")

	logger, w, err := NewFileLogger("daemon", RotationConfig{Filename: path})
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	defer w.Close()

	logger.Info("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "daemon: hello") {
		t.Errorf("log line missing: %q", data)
	}
	if strings.Contains(string(data), "\x1b[") {
		t.Errorf("file output should not be colorized: %q", data)
	}
}
