// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// acquirePidFile takes an exclusive lock on path and writes the
// process id into it. The returned function releases the lock and
// removes the file.
func acquirePidFile(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s locked by another process", path)
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		f.Close()
		os.Remove(path)
	}, nil
}
