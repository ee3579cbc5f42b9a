// Copyright 2026 The w1therm Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cjnaz/w1therm/w1sysfs"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
)

// familyPrefix starts every DS18B20 device id; 0x28 is the family code.
const familyPrefix = "28-"

var (
	// ErrCRCMismatch is returned when the scratchpad fails CRC
	// validation, including when the driver's verdict and the locally
	// computed CRC disagree.
	ErrCRCMismatch = errors.New("scratchpad CRC mismatch")

	// ErrReadFailure is returned when a device attribute cannot be read
	// or does not parse.
	ErrReadFailure = errors.New("device read failed")

	// ErrInvalidResolution is returned for a resolution outside 9 to 12
	// bits.
	ErrInvalidResolution = errors.New("invalid resolution")

	// ErrInvalidAlarmRange is returned for an alarm threshold outside
	// the device's -55 to 125 °C register range.
	ErrInvalidAlarmRange = errors.New("alarm temperature out of range")

	// ErrUnexpectedConfig is returned when the device reports a
	// configuration register pattern that is not in the known set.
	ErrUnexpectedConfig = errors.New("unexpected configuration register value")

	// ErrSessionActive is returned by Bulk.Trigger while a previous
	// bulk conversion has not finished draining.
	ErrSessionActive = errors.New("bulk conversion already active")

	// ErrUnsupported is returned when the driver or bus master lacks
	// the requested attribute.
	ErrUnsupported = errors.New("not supported by driver")

	// ErrPermission is returned when an attribute write needs elevated
	// privileges not held by the process.
	ErrPermission = errors.New("write requires elevated privileges")
)

// Opts holds the configuration options.
type Opts struct {
	// Name is the display name used by String.
	Name string

	// Resolution, when 9 to 12, is applied to the device during New.
	// 0 leaves the device as found.
	Resolution int

	// ConversionTime overrides the worst case conversion duration
	// derived from the resolution, for devices with non-standard
	// firmware. 0 uses the datasheet table.
	ConversionTime time.Duration
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{Name: "DS18B20"}

// New returns an object that communicates with the DS18B20 sensor
// enumerated under the given device id, such as "28-0b2280337113".
//
// The device's resolution attribute is read to verify it is reachable.
// When opts requests a different resolution it is applied immediately;
// the setting is volatile until Persist is called.
func New(fsys w1sysfs.FS, id string, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if !strings.HasPrefix(id, familyPrefix) {
		return nil, fmt.Errorf("ds18b20: device %q is not in the DS18B20 family", id)
	}
	if opts.Resolution != 0 {
		if _, err := encodeResolution(opts.Resolution); err != nil {
			return nil, fmt.Errorf("ds18b20: %w", err)
		}
	}
	name := opts.Name
	if name == "" {
		name = DefaultOpts.Name
	}
	d := &Dev{fs: fsys, id: id, name: name, convTime: opts.ConversionTime}

	bits, err := d.Resolution()
	if err != nil {
		return nil, err
	}
	if opts.Resolution != 0 && opts.Resolution != bits {
		if err = d.SetResolution(opts.Resolution); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Search returns the ids of the DS18B20 family devices enumerated in
// the bus directory.
func Search(fsys w1sysfs.FS) ([]string, error) {
	all, err := w1sysfs.Slaves(fsys)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, id := range all {
		if strings.HasPrefix(id, familyPrefix) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Dev is a handle to a DS18B20 temperature sensor enumerated by the
// w1_therm driver.
type Dev struct {
	fs       w1sysfs.FS
	id       string
	name     string
	convTime time.Duration // conversion time override, 0 uses the table

	mu         sync.Mutex
	resolution int // last resolution seen on the device, in bits
	sensing    bool
	chHalt     chan bool
}

// ID returns the device id under the bus directory.
func (d *Dev) ID() string {
	return d.id
}

func (d *Dev) String() string {
	return d.name + "{" + d.id + "}"
}

// Halt implements conn.Resource. It stops SenseContinuous when running.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sensing {
		close(d.chHalt)
		d.chHalt = nil
		d.sensing = false
	}
	return nil
}

// Sense implements physic.SenseEnv. It makes the driver perform a full
// conversion and scratchpad read, which blocks up to 750ms at 12 bit
// resolution.
func (d *Dev) Sense(e *physic.Env) error {
	sp, err := d.Scratchpad()
	if err != nil {
		return err
	}
	e.Temperature = sp.Temperature()
	return nil
}

// SenseContinuous implements physic.SenseEnv. The interval must be at
// least the conversion time of the current resolution.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if w := d.conversionWait(); interval < w {
		return nil, fmt.Errorf("ds18b20: interval must be at least the %s conversion time", w)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sensing {
		return nil, errors.New("ds18b20: SenseContinuous already running")
	}
	halt := make(chan bool)
	d.chHalt = halt
	d.sensing = true
	channelSize := 16
	channel := make(chan physic.Env, channelSize)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(channel)
		for {
			select {
			case <-halt:
				return
			case <-ticker.C:
				e := physic.Env{}
				if err := d.Sense(&e); err == nil && len(channel) < channelSize {
					channel <- e
				}
			}
		}
	}()
	return channel, nil
}

// Precision implements physic.SenseEnv. The step is 1/16 °C at 12 bit
// resolution, doubling for every bit removed.
func (d *Dev) Precision(e *physic.Env) {
	d.mu.Lock()
	bits := d.resolution
	d.mu.Unlock()
	if bits == 0 {
		bits = 12
	}
	e.Temperature = physic.Kelvin / physic.Temperature(int64(1)<<uint(bits-8))
}

// Temperature performs a single conversion and returns the reading.
func (d *Dev) Temperature() (physic.Temperature, error) {
	e := physic.Env{}
	if err := d.Sense(&e); err != nil {
		return 0, err
	}
	return e.Temperature, nil
}

// LastTemp returns the device's captured value from the temperature
// attribute. After a bulk trigger the attribute holds the captured
// reading without starting a new conversion; otherwise the driver
// converts afresh.
func (d *Dev) LastTemp() (physic.Temperature, error) {
	text, err := d.fs.ReadFile(d.id + "/temperature")
	if err != nil {
		return 0, d.wrapRead("temperature", err)
	}
	milli, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, d.malformed("temperature", text)
	}
	return physic.ZeroCelsius + physic.Temperature(milli)*physic.MilliKelvin, nil
}

// Scratchpad makes the driver perform a conversion and returns the
// decoded scratchpad register image from the w1_slave attribute.
func (d *Dev) Scratchpad() (Scratchpad, error) {
	text, err := d.fs.ReadFile(d.id + "/w1_slave")
	if err != nil {
		return Scratchpad{}, d.wrapRead("w1_slave", err)
	}
	sp, err := parseW1Slave(text)
	if err != nil {
		return Scratchpad{}, fmt.Errorf("ds18b20: %s: %w", d.id, err)
	}
	d.mu.Lock()
	d.resolution = sp.Resolution
	d.mu.Unlock()
	return sp, nil
}

// Resolution returns the conversion resolution in bits, 9 to 12, from
// the resolution attribute.
func (d *Dev) Resolution() (int, error) {
	text, err := d.fs.ReadFile(d.id + "/resolution")
	if err != nil {
		return 0, d.wrapRead("resolution", err)
	}
	bits, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, d.malformed("resolution", text)
	}
	if bits < 9 || bits > 12 {
		return 0, fmt.Errorf("ds18b20: %s resolution: %w: %d bits", d.id, ErrUnexpectedConfig, bits)
	}
	d.mu.Lock()
	d.resolution = bits
	d.mu.Unlock()
	return bits, nil
}

// SetResolution changes the conversion resolution to 9 to 12 bits.
// Lower resolutions convert faster; 12 bits takes 750ms, 9 bits 93.75ms.
// The setting is volatile until Persist is called. Requires elevated
// privileges.
func (d *Dev) SetResolution(bits int) error {
	if _, err := encodeResolution(bits); err != nil {
		return fmt.Errorf("ds18b20: %w", err)
	}
	if err := d.fs.WriteFile(d.id+"/resolution", strconv.Itoa(bits)); err != nil {
		return d.wrapWrite("resolution", err)
	}
	d.mu.Lock()
	d.resolution = bits
	d.mu.Unlock()
	return nil
}

// AlarmTemps is the TL/TH alarm threshold pair in whole degrees C. The
// device keeps the lower value in TL and the higher in TH regardless of
// the order they were written in.
type AlarmTemps struct {
	TL int
	TH int
}

// Alarms returns the alarm thresholds from the alarms attribute.
func (d *Dev) Alarms() (AlarmTemps, error) {
	text, err := d.fs.ReadFile(d.id + "/alarms")
	if err != nil {
		return AlarmTemps{}, d.wrapRead("alarms", err)
	}
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return AlarmTemps{}, d.malformed("alarms", text)
	}
	tl, err1 := strconv.Atoi(fields[0])
	th, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil {
		return AlarmTemps{}, d.malformed("alarms", text)
	}
	return AlarmTemps{TL: tl, TH: th}, nil
}

// SetAlarms sets the alarm threshold pair. Both values must be within
// AlarmMin to AlarmMax; validation happens before anything is written.
// The device reorders the pair to (min, max), so the normalized result
// is read back and returned rather than assumed. Requires elevated
// privileges.
func (d *Dev) SetAlarms(tl, th int) (AlarmTemps, error) {
	if tl < AlarmMin || tl > AlarmMax {
		return AlarmTemps{}, fmt.Errorf("ds18b20: TL %d: %w", tl, ErrInvalidAlarmRange)
	}
	if th < AlarmMin || th > AlarmMax {
		return AlarmTemps{}, fmt.Errorf("ds18b20: TH %d: %w", th, ErrInvalidAlarmRange)
	}
	if err := d.fs.WriteFile(d.id+"/alarms", fmt.Sprintf("%d %d", tl, th)); err != nil {
		return AlarmTemps{}, d.wrapWrite("alarms", err)
	}
	return d.Alarms()
}

// Persist copies the scratchpad TH, TL and configuration registers to
// the sensor EEPROM so they survive a power cycle (the datasheet's Copy
// Scratchpad command). Requires elevated privileges.
func (d *Dev) Persist() error {
	if err := d.fs.WriteFile(d.id+"/eeprom_cmd", "save\n"); err != nil {
		return d.wrapWrite("eeprom_cmd", err)
	}
	return nil
}

// Recall loads TH, TL and configuration from the sensor EEPROM back
// into the scratchpad (the datasheet's Recall E² command), discarding
// unsaved changes. Requires elevated privileges.
func (d *Dev) Recall() error {
	if err := d.fs.WriteFile(d.id+"/eeprom_cmd", "restore\n"); err != nil {
		return d.wrapWrite("eeprom_cmd", err)
	}
	return nil
}

// ConversionTime returns the conversion duration the driver waits for,
// from the conv_time attribute. Kernels without the attribute get
// ErrUnsupported.
func (d *Dev) ConversionTime() (time.Duration, error) {
	text, err := d.fs.ReadFile(d.id + "/conv_time")
	if err != nil {
		return 0, d.wrapOptional("conv_time", err)
	}
	ms, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, d.malformed("conv_time", text)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// ExternalPower reports whether the sensor runs on external supply
// (true) or parasitic power from the data line (false). Kernels without
// the ext_power attribute get ErrUnsupported.
func (d *Dev) ExternalPower() (bool, error) {
	text, err := d.fs.ReadFile(d.id + "/ext_power")
	if err != nil {
		return false, d.wrapOptional("ext_power", err)
	}
	switch strings.TrimSpace(text) {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, d.malformed("ext_power", text)
}

// IsPowerOnReset reports whether a reading equals the +85 °C power-up
// register value the device holds before its first conversion
// (datasheet p.4). A true 85 °C reading is indistinguishable from it.
func IsPowerOnReset(t physic.Temperature) bool {
	return t == 85*physic.Celsius+physic.ZeroCelsius
}

// conversionWait returns how long a conversion takes: the configured
// override when set, otherwise the table value for the last resolution
// seen on the device.
func (d *Dev) conversionWait() time.Duration {
	if d.convTime > 0 {
		return d.convTime
	}
	d.mu.Lock()
	bits := d.resolution
	d.mu.Unlock()
	if bits == 0 {
		bits = 12
	}
	return conversionTime(bits)
}

func (d *Dev) wrapRead(attr string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("ds18b20: %s %s: %w: %w", d.id, attr, ErrPermission, err)
	}
	return fmt.Errorf("ds18b20: %s %s: %w: %w", d.id, attr, ErrReadFailure, err)
}

// wrapOptional is wrapRead for attributes older drivers do not provide.
func (d *Dev) wrapOptional(attr string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ds18b20: %s %s: %w: %w", d.id, attr, ErrUnsupported, err)
	}
	return d.wrapRead(attr, err)
}

func (d *Dev) wrapWrite(attr string, err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("ds18b20: %s %s: %w: %w", d.id, attr, ErrPermission, err)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("ds18b20: %s %s: %w: %w", d.id, attr, ErrUnsupported, err)
	}
	return fmt.Errorf("ds18b20: %s %s: write: %w", d.id, attr, err)
}

func (d *Dev) malformed(attr, text string) error {
	return fmt.Errorf("ds18b20: %s %s: %w: malformed value %q", d.id, attr, ErrReadFailure, strings.TrimSpace(text))
}

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
