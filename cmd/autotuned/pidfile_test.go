// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquirePidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autotuned.pid")
	release, err := acquirePidFile(path)
	if err != nil {
		t.Fatalf("acquirePidFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid != os.Getpid() {
		t.Fatalf("pid file contains %q, want %d", data, os.Getpid())
	}

	release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("pid file not removed on release")
	}
}
