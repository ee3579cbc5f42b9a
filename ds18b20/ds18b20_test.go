// Copyright 2026 The w1therm Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cjnaz/w1therm/w1sysfs"
	"github.com/cjnaz/w1therm/w1sysfs/w1sysfstest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const testID = "28-000005e2fdc3"

// 0x0184 counts of 1/16 °C, the reading in goodW1Slave.
var testTemp = physic.ZeroCelsius + 388*physic.Kelvin/16

func sensorFiles(id string) map[string]string {
	return map[string]string{
		id + "/w1_slave":    goodW1Slave,
		id + "/temperature": "24250\n",
		id + "/resolution":  "12\n",
		id + "/alarms":      "0 10\n",
		id + "/eeprom_cmd":  "",
		id + "/conv_time":   "750\n",
		id + "/ext_power":   "1\n",
	}
}

func newSensorFS(ids ...string) *w1sysfstest.FS {
	f := &w1sysfstest.FS{
		Files: map[string]string{},
		Dirs:  map[string][]string{"": append([]string{"w1_bus_master1"}, ids...)},
	}
	f.Files["w1_bus_master1/w1_master_slaves"] = strings.Join(ids, "\n") + "\n"
	for _, id := range ids {
		for name, data := range sensorFiles(id) {
			f.Files[name] = data
		}
	}
	return f
}

func TestNew(t *testing.T) {
	f := newSensorFS(testID)
	d, err := New(f, testID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.ID() != testID {
		t.Errorf("expected id %q, got %q", testID, d.ID())
	}
	if expected := "DS18B20{" + testID + "}"; d.String() != expected {
		t.Errorf("expected %q, got %q", expected, d.String())
	}
	// The device already runs at the default resolution so nothing is
	// written.
	if len(f.Writes) != 0 {
		t.Errorf("unexpected writes: %v", f.Writes)
	}
}

func TestNew_badFamily(t *testing.T) {
	f := newSensorFS(testID)
	if _, err := New(f, "10-000802be73fa", nil); err == nil {
		t.Fatal("expected a family check failure")
	}
}

func TestNew_badResolution(t *testing.T) {
	// Validation happens before any device I/O; an empty filesystem
	// would fail with ErrReadFailure otherwise.
	f := &w1sysfstest.FS{}
	if _, err := New(f, testID, &Opts{Resolution: 8}); !errors.Is(err, ErrInvalidResolution) {
		t.Fatalf("expected ErrInvalidResolution, got %v", err)
	}
}

func TestNew_appliesResolution(t *testing.T) {
	f := newSensorFS(testID)
	if _, err := New(f, testID, &Opts{Resolution: 9}); err != nil {
		t.Fatal(err)
	}
	if len(f.Writes) != 1 || f.Writes[0] != (w1sysfstest.Write{Name: testID + "/resolution", Data: "9"}) {
		t.Errorf("expected a single resolution write, got %v", f.Writes)
	}
}

func TestNew_missingDevice(t *testing.T) {
	f := &w1sysfstest.FS{}
	if _, err := New(f, testID, nil); !errors.Is(err, ErrReadFailure) {
		t.Fatalf("expected ErrReadFailure, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	f := newSensorFS(testID, "28-000005e2fdc4")
	f.Dirs[""] = append(f.Dirs[""], "10-000802be73fa")
	ids, err := Search(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != testID || ids[1] != "28-000005e2fdc4" {
		t.Errorf("expected the two DS18B20 ids, got %v", ids)
	}
}

func TestTemperature(t *testing.T) {
	d, err := New(newSensorFS(testID), testID, nil)
	if err != nil {
		t.Fatal(err)
	}
	temp, err := d.Temperature()
	if err != nil {
		t.Fatal(err)
	}
	if temp != testTemp {
		t.Errorf("expected %s, got %s", testTemp, temp)
	}
}

func TestTemperature_permission(t *testing.T) {
	f := newSensorFS(testID)
	f.ReadErr = map[string]error{
		testID + "/w1_slave": &fs.PathError{Op: "open", Path: testID + "/w1_slave", Err: fs.ErrPermission},
	}
	d, err := New(f, testID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Temperature(); !errors.Is(err, ErrPermission) {
		t.Fatalf("expected ErrPermission, got %v", err)
	}
}

func TestSense(t *testing.T) {
	d, err := New(newSensorFS(testID), testID, nil)
	if err != nil {
		t.Fatal(err)
	}
	e := physic.Env{}
	if err := d.Sense(&e); err != nil {
		t.Fatal(err)
	}
	if e.Temperature != testTemp {
		t.Errorf("expected %s, got %s", testTemp, e.Temperature)
	}
}

func TestSenseContinuous(t *testing.T) {
	d, err := New(newSensorFS(testID), testID, &Opts{ConversionTime: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	c, err := d.SenseContinuous(2 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.SenseContinuous(2 * time.Millisecond); err == nil {
		t.Fatal("expected second SenseContinuous to fail while running")
	}
	e := <-c
	if e.Temperature != testTemp {
		t.Errorf("expected %s, got %s", testTemp, e.Temperature)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	// Halt stops the reader goroutine which closes the channel.
	for range c {
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
}

func TestSenseContinuous_shortInterval(t *testing.T) {
	d, err := New(newSensorFS(testID), testID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.SenseContinuous(100 * time.Millisecond); err == nil {
		t.Fatal("expected an interval below the 750ms conversion time to fail")
	}
}

func TestPrecision(t *testing.T) {
	var tests = []struct {
		resolution string
		expected   physic.Temperature
	}{
		{"12\n", physic.Kelvin / 16},
		{"11\n", physic.Kelvin / 8},
		{"10\n", physic.Kelvin / 4},
		{"9\n", physic.Kelvin / 2},
	}
	for _, entry := range tests {
		f := newSensorFS(testID)
		f.Files[testID+"/resolution"] = entry.resolution
		d, err := New(f, testID, nil)
		if err != nil {
			t.Fatal(err)
		}
		e := physic.Env{}
		d.Precision(&e)
		if e.Temperature != entry.expected {
			t.Errorf("%q: expected %s, got %s", entry.resolution, entry.expected, e.Temperature)
		}
	}
}

func TestLastTemp(t *testing.T) {
	d, err := New(newSensorFS(testID), testID, nil)
	if err != nil {
		t.Fatal(err)
	}
	temp, err := d.LastTemp()
	if err != nil {
		t.Fatal(err)
	}
	if temp != testTemp {
		t.Errorf("expected %s, got %s", testTemp, temp)
	}
}

func TestLastTemp_malformed(t *testing.T) {
	f := newSensorFS(testID)
	f.Files[testID+"/temperature"] = "abc\n"
	d, err := New(f, testID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.LastTemp(); !errors.Is(err, ErrReadFailure) {
		t.Fatalf("expected ErrReadFailure, got %v", err)
	}
}

func TestScratchpad(t *testing.T) {
	d, err := New(newSensorFS(testID), testID, nil)
	if err != nil {
		t.Fatal(err)
	}
	sp, err := d.Scratchpad()
	if err != nil {
		t.Fatal(err)
	}
	if sp.Count != 0x0184 || sp.TH != 10 || sp.TL != 0 || sp.Resolution != 12 {
		t.Errorf("unexpected scratchpad: %+v", sp)
	}
}

func TestResolution(t *testing.T) {
	d, err := New(newSensorFS(testID), testID, nil)
	if err != nil {
		t.Fatal(err)
	}
	bits, err := d.Resolution()
	if err != nil {
		t.Fatal(err)
	}
	if bits != 12 {
		t.Errorf("expected 12 bits, got %d", bits)
	}
}

func TestResolution_outOfRange(t *testing.T) {
	f := newSensorFS(testID)
	f.Files[testID+"/resolution"] = "13\n"
	d := &Dev{fs: f, id: testID, name: "DS18B20"}
	if _, err := d.Resolution(); !errors.Is(err, ErrUnexpectedConfig) {
		t.Fatalf("expected ErrUnexpectedConfig, got %v", err)
	}
}

func TestSetResolution(t *testing.T) {
	f := newSensorFS(testID)
	d, err := New(f, testID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SetResolution(10); err != nil {
		t.Fatal(err)
	}
	if len(f.Writes) != 1 || f.Writes[0] != (w1sysfstest.Write{Name: testID + "/resolution", Data: "10"}) {
		t.Errorf("expected a single resolution write, got %v", f.Writes)
	}
	// The cached resolution follows without another device read.
	e := physic.Env{}
	d.Precision(&e)
	if e.Temperature != physic.Kelvin/4 {
		t.Errorf("expected 1/4K precision after the change, got %s", e.Temperature)
	}
}

func TestSetResolution_invalid(t *testing.T) {
	f := newSensorFS(testID)
	d, err := New(f, testID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SetResolution(13); !errors.Is(err, ErrInvalidResolution) {
		t.Fatalf("expected ErrInvalidResolution, got %v", err)
	}
	if len(f.Writes) != 0 {
		t.Errorf("nothing may be written for an invalid width: %v", f.Writes)
	}
}

func TestAlarms(t *testing.T) {
	d, err := New(newSensorFS(testID), testID, nil)
	if err != nil {
		t.Fatal(err)
	}
	a, err := d.Alarms()
	if err != nil {
		t.Fatal(err)
	}
	if a != (AlarmTemps{TL: 0, TH: 10}) {
		t.Errorf("expected TL=0 TH=10, got %+v", a)
	}
}

func TestSetAlarms(t *testing.T) {
	f := newSensorFS(testID)
	// The driver stores min/max no matter the order written.
	f.OnWrite = func(f *w1sysfstest.FS, name, data string) {
		if name == testID+"/alarms" && data == "30 10" {
			f.Files[name] = "10 30\n"
		}
	}
	d, err := New(f, testID, nil)
	if err != nil {
		t.Fatal(err)
	}
	a, err := d.SetAlarms(30, 10)
	if err != nil {
		t.Fatal(err)
	}
	if a != (AlarmTemps{TL: 10, TH: 30}) {
		t.Errorf("expected the normalized pair TL=10 TH=30, got %+v", a)
	}
	if len(f.Writes) != 1 || f.Writes[0] != (w1sysfstest.Write{Name: testID + "/alarms", Data: "30 10"}) {
		t.Errorf("expected a single alarms write, got %v", f.Writes)
	}
}

func TestSetAlarms_fullRange(t *testing.T) {
	// The full device measurement range is a legal threshold pair.
	f := newSensorFS(testID)
	d, err := New(f, testID, nil)
	if err != nil {
		t.Fatal(err)
	}
	a, err := d.SetAlarms(-55, 125)
	if err != nil {
		t.Fatal(err)
	}
	if a != (AlarmTemps{TL: -55, TH: 125}) {
		t.Errorf("expected TL=-55 TH=125, got %+v", a)
	}
	if len(f.Writes) != 1 || f.Writes[0] != (w1sysfstest.Write{Name: testID + "/alarms", Data: "-55 125"}) {
		t.Errorf("expected a single alarms write, got %v", f.Writes)
	}
}

func TestSetAlarms_outOfRange(t *testing.T) {
	var tests = []struct {
		tl, th int
	}{
		{-56, 10},
		{10, 126},
		{-128, 128},
	}
	for _, entry := range tests {
		f := newSensorFS(testID)
		d, err := New(f, testID, nil)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := d.SetAlarms(entry.tl, entry.th); !errors.Is(err, ErrInvalidAlarmRange) {
			t.Fatalf("(%d, %d): expected ErrInvalidAlarmRange, got %v", entry.tl, entry.th, err)
		}
		if len(f.Writes) != 0 {
			t.Errorf("(%d, %d): nothing may be written for an invalid pair: %v", entry.tl, entry.th, f.Writes)
		}
	}
}

func TestPersistRecall(t *testing.T) {
	f := newSensorFS(testID)
	d, err := New(f, testID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Persist(); err != nil {
		t.Fatal(err)
	}
	if err := d.Recall(); err != nil {
		t.Fatal(err)
	}
	expected := []w1sysfstest.Write{
		{Name: testID + "/eeprom_cmd", Data: "save\n"},
		{Name: testID + "/eeprom_cmd", Data: "restore\n"},
	}
	if len(f.Writes) != 2 || f.Writes[0] != expected[0] || f.Writes[1] != expected[1] {
		t.Errorf("expected %v, got %v", expected, f.Writes)
	}
}

func TestPersist_permission(t *testing.T) {
	f := newSensorFS(testID)
	f.WriteErr = map[string]error{
		testID + "/eeprom_cmd": &fs.PathError{Op: "open", Path: testID + "/eeprom_cmd", Err: fs.ErrPermission},
	}
	d, err := New(f, testID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Persist(); !errors.Is(err, ErrPermission) {
		t.Fatalf("expected ErrPermission, got %v", err)
	}
}

func TestConversionTime(t *testing.T) {
	f := newSensorFS(testID)
	d, err := New(f, testID, nil)
	if err != nil {
		t.Fatal(err)
	}
	ct, err := d.ConversionTime()
	if err != nil {
		t.Fatal(err)
	}
	if ct != 750*time.Millisecond {
		t.Errorf("expected 750ms, got %s", ct)
	}
	// Old kernels do not have the attribute.
	delete(f.Files, testID+"/conv_time")
	if _, err := d.ConversionTime(); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestExternalPower(t *testing.T) {
	f := newSensorFS(testID)
	d, err := New(f, testID, nil)
	if err != nil {
		t.Fatal(err)
	}
	on, err := d.ExternalPower()
	if err != nil {
		t.Fatal(err)
	}
	if !on {
		t.Error("expected external supply")
	}
	f.Files[testID+"/ext_power"] = "0\n"
	on, err = d.ExternalPower()
	if err != nil {
		t.Fatal(err)
	}
	if on {
		t.Error("expected parasitic power")
	}
	f.Files[testID+"/ext_power"] = "2\n"
	if _, err := d.ExternalPower(); !errors.Is(err, ErrReadFailure) {
		t.Fatalf("expected ErrReadFailure, got %v", err)
	}
	delete(f.Files, testID+"/ext_power")
	if _, err := d.ExternalPower(); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestIsPowerOnReset(t *testing.T) {
	if !IsPowerOnReset(85*physic.Celsius + physic.ZeroCelsius) {
		t.Error("expected the 85°C power-up value to be flagged")
	}
	if IsPowerOnReset(testTemp) {
		t.Error("expected a normal reading to pass")
	}
}

// TestLive exercises a real sensor on the host w1 bus. It only runs
// when W1THERM=1 is set in the environment.
func TestLive(t *testing.T) {
	if os.Getenv("W1THERM") == "" {
		t.Skip("set W1THERM=1 to test against real hardware")
	}
	if _, err := host.Init(); err != nil {
		t.Fatal(err)
	}
	fsys := w1sysfs.Devices()
	ids, err := Search(fsys)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) == 0 {
		t.Skip("no DS18B20 on the bus")
	}
	d, err := New(fsys, ids[0], nil)
	if err != nil {
		t.Fatal(err)
	}
	temp, err := d.Temperature()
	if err != nil {
		t.Fatal(err)
	}
	if c := temp.Celsius(); c < -55 || c > 125 {
		t.Fatalf("%s is outside the operating range", temp)
	}
	t.Logf("%s: %s", d, temp)
}
