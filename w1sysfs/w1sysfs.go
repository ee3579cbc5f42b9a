// Copyright 2026 The w1therm Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package w1sysfs gives access to the directory tree the Linux w1 bus
// driver exposes, one directory per bus master and one per enumerated
// slave device, each holding plain text attribute files.
//
// Kernel documentation:
// https://www.kernel.org/doc/html/latest/w1/w1-generic.html
package w1sysfs

import (
	"os"
	"path/filepath"
)

// DevicesDir is where the kernel exposes the w1 bus.
const DevicesDir = "/sys/bus/w1/devices"

// FS reads and writes attribute files below a w1 devices directory.
// Names are slash separated paths relative to that directory, such as
// "28-0b2280337113/w1_slave" or "w1_bus_master1/therm_bulk_read".
//
// The real directory is obtained with Devices or Dir; tests use
// w1sysfstest.FS.
type FS interface {
	// ReadFile returns the text content of the named attribute.
	ReadFile(name string) (string, error)
	// WriteFile writes data to the named attribute. Most attribute
	// writes require elevated privileges.
	WriteFile(name string, data string) error
	// ReadDir lists the entries of the named directory, "" for the
	// devices directory itself.
	ReadDir(name string) ([]string, error)
}

// Devices returns the FS for the standard kernel location. The wire and
// w1_therm kernel modules (plus a bus master driver such as w1-gpio)
// must be loaded for the directory to be populated.
func Devices() FS {
	return Dir(DevicesDir)
}

// Dir returns an FS rooted at an arbitrary directory laid out like the
// kernel devices directory. Useful against a copied tree.
func Dir(root string) FS {
	return dirFS(root)
}

type dirFS string

func (d dirFS) ReadFile(name string) (string, error) {
	b, err := os.ReadFile(filepath.Join(string(d), filepath.FromSlash(name)))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d dirFS) WriteFile(name string, data string) error {
	return os.WriteFile(filepath.Join(string(d), filepath.FromSlash(name)), []byte(data), 0o644)
}

func (d dirFS) ReadDir(name string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(string(d), filepath.FromSlash(name)))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
