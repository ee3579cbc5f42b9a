// Copyright 2026 The w1therm Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package w1sysfstest is meant to be used to test drivers against a
// fake w1 devices directory.
package w1sysfstest

import (
	"io/fs"
	"sync"

	"github.com/cjnaz/w1therm/w1sysfs"
)

// Write is one WriteFile call recorded by FS.
type Write struct {
	Name string
	Data string
}

// FS is an in-memory w1sysfs.FS.
//
// Reads and writes of attributes absent from Files fail the way the
// real directory does, with fs.ErrNotExist wrapped in a *fs.PathError;
// sysfs never lets a write create a new attribute.
type FS struct {
	mu sync.Mutex
	// Files maps attribute paths to their current content.
	Files map[string]string
	// Dirs maps directory names to their entries, "" for the root.
	Dirs map[string][]string
	// Writes records every successful WriteFile call in order.
	Writes []Write
	// ReadErr and WriteErr force the named attribute to fail.
	ReadErr  map[string]error
	WriteErr map[string]error
	// OnWrite, when not nil, runs after each successful write with the
	// lock held so a device reaction can be emulated by mutating Files
	// directly: alarm reordering, therm_bulk_read flipping state.
	// It must not call methods on f.
	OnWrite func(f *FS, name, data string)
}

// ReadFile implements w1sysfs.FS.
func (f *FS) ReadFile(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ReadErr[name]; err != nil {
		return "", err
	}
	data, ok := f.Files[name]
	if !ok {
		return "", &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return data, nil
}

// WriteFile implements w1sysfs.FS. The written data replaces the
// attribute content, then OnWrite may adjust it.
func (f *FS) WriteFile(name string, data string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.WriteErr[name]; err != nil {
		return err
	}
	if _, ok := f.Files[name]; !ok {
		return &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	f.Writes = append(f.Writes, Write{Name: name, Data: data})
	f.Files[name] = data
	if f.OnWrite != nil {
		f.OnWrite(f, name, data)
	}
	return nil
}

// ReadDir implements w1sysfs.FS.
func (f *FS) ReadDir(name string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, ok := f.Dirs[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return append([]string(nil), entries...), nil
}

var _ w1sysfs.FS = &FS{}
