// Copyright 2026 The w1therm Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package w1sysfs

import (
	"fmt"
	"strconv"
	"strings"
)

// masterPrefix names bus master directories, w1_bus_master1 and up.
const masterPrefix = "w1_bus_master"

// Master is a handle to one 1-Wire bus master directory.
type Master struct {
	fs   FS
	name string
}

// NewMaster returns the master with the given directory name, such as
// "w1_bus_master1". The directory is not touched until an operation is
// performed on it.
func NewMaster(fsys FS, name string) *Master {
	return &Master{fs: fsys, name: name}
}

// Name returns the master's directory name.
func (m *Master) Name() string {
	return m.name
}

func (m *Master) String() string {
	return m.name
}

// Slaves returns the ids of the slave devices the master has
// enumerated, from the w1_master_slaves attribute.
func (m *Master) Slaves() ([]string, error) {
	text, err := m.fs.ReadFile(m.name + "/w1_master_slaves")
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		// The kernel reports "not found." when nothing is attached.
		if line == "" || line == "not found." {
			continue
		}
		ids = append(ids, line)
	}
	return ids, nil
}

// TriggerBulkRead asks the master to start a temperature conversion on
// every slave at once by writing the trigger token to therm_bulk_read.
// The write returns without waiting for the conversions; poll
// BulkReadStatus to learn when they are done.
//
// The write fails with an error matching fs.ErrNotExist when the driver
// does not provide therm_bulk_read, and usually requires elevated
// privileges.
func (m *Master) TriggerBulkRead() error {
	return m.fs.WriteFile(m.name+"/therm_bulk_read", "trigger\n")
}

// BulkReadStatus reads the therm_bulk_read indicator: -1 while at least
// one slave is still converting, 1 when all conversions are done but at
// least one value has not been read back, 0 when no bulk read is
// pending.
func (m *Master) BulkReadStatus() (int, error) {
	text, err := m.fs.ReadFile(m.name + "/therm_bulk_read")
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, fmt.Errorf("w1sysfs: malformed therm_bulk_read value %q", strings.TrimSpace(text))
	}
	return v, nil
}

// Masters lists the bus masters present in the devices directory.
func Masters(fsys FS) ([]*Master, error) {
	entries, err := fsys.ReadDir("")
	if err != nil {
		return nil, err
	}
	var ms []*Master
	for _, e := range entries {
		if strings.HasPrefix(e, masterPrefix) {
			ms = append(ms, &Master{fs: fsys, name: e})
		}
	}
	return ms, nil
}

// Slaves lists every slave device id in the devices directory,
// regardless of device family.
func Slaves(fsys FS) ([]string, error) {
	entries, err := fsys.ReadDir("")
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !strings.HasPrefix(e, masterPrefix) {
			ids = append(ids, e)
		}
	}
	return ids, nil
}

// MasterFor returns the bus master a slave device is attached to.
func MasterFor(fsys FS, id string) (*Master, error) {
	ms, err := Masters(fsys)
	if err != nil {
		return nil, err
	}
	for _, m := range ms {
		ids, err := m.Slaves()
		if err != nil {
			return nil, err
		}
		for _, s := range ids {
			if s == id {
				return m, nil
			}
		}
	}
	return nil, fmt.Errorf("w1sysfs: no bus master has device %q", id)
}
