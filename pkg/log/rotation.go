// Log file rotation for the relaytune daemon
//
// Size-based rotation with a bounded number of timestamped backups.
//
// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	// Filename is the path to the log file.
	Filename string

	// MaxSizeMB is the maximum size in megabytes before rotation.
	// Default is 10.
	MaxSizeMB int

	// MaxBackups is the maximum number of rotated files to retain.
	// Default is 5.
	MaxBackups int
}

// RotatingWriter implements io.Writer with automatic size-based rotation.
type RotatingWriter struct {
	mu         sync.Mutex
	filename   string
	maxSize    int64
	maxBackups int
	size       int64
	file       *os.File
}

// NewRotatingWriter creates a rotating file writer.
func NewRotatingWriter(cfg RotationConfig) (*RotatingWriter, error) {
	if cfg.Filename == "" {
		return nil, fmt.Errorf("log: rotation filename is required")
	}
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 5
	}

	w := &RotatingWriter{
		filename:   cfg.Filename,
		maxSize:    int64(maxSize) * 1024 * 1024,
		maxBackups: maxBackups,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(w.filename), 0755); err != nil {
		return fmt.Errorf("log: create log directory: %w", err)
	}
	f, err := os.OpenFile(w.filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("log: open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("log: stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write implements io.Writer, rotating first when the write would
// exceed the size limit.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("log: rotate: %w", err)
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	ext := filepath.Ext(w.filename)
	base := strings.TrimSuffix(w.filename, ext)
	rotated := fmt.Sprintf("%s.%s%s", base, time.Now().Format("20060102-150405"), ext)
	if err := os.Rename(w.filename, rotated); err != nil {
		w.open()
		return err
	}
	w.pruneBackups()
	return w.open()
}

// pruneBackups removes the oldest rotated files beyond maxBackups.
func (w *RotatingWriter) pruneBackups() {
	dir := filepath.Dir(w.filename)
	base := filepath.Base(w.filename)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var backups []string
	for _, entry := range entries {
		name := entry.Name()
		if name != base && isRotatedName(name, prefix, ext) {
			backups = append(backups, filepath.Join(dir, name))
		}
	}
	// Timestamped names sort chronologically.
	sort.Strings(backups)
	for len(backups) > w.maxBackups {
		os.Remove(backups[0])
		backups = backups[1:]
	}
}

// isRotatedName reports whether name matches prefix.YYYYMMDD-HHMMSS+ext.
func isRotatedName(name, prefix, ext string) bool {
	name = strings.TrimSuffix(name, ext)
	if !strings.HasPrefix(name, prefix+".") {
		return false
	}
	stamp := strings.TrimPrefix(name, prefix+".")
	if len(stamp) != 15 || stamp[8] != '-' {
		return false
	}
	_, err1 := strconv.Atoi(stamp[:8])
	_, err2 := strconv.Atoi(stamp[9:])
	return err1 == nil && err2 == nil
}

// Close closes the underlying file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// Size returns the current log file size in bytes.
func (w *RotatingWriter) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// NewFileLogger creates a logger writing to a rotating file, without colors.
func NewFileLogger(prefix string, cfg RotationConfig) (*Logger, *RotatingWriter, error) {
	w, err := NewRotatingWriter(cfg)
	if err != nil {
		return nil, nil, err
	}
	logger := New(prefix)
	logger.SetWriter(w)
	logger.SetColorize(false)
	return logger, w, nil
}
