// Copyright 2026 The w1therm Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"errors"

	"periph.io/x/conn/v3/physic"
)

// Unit selects the temperature scale for the sentinel read API.
type Unit string

// Supported temperature scales.
const (
	C Unit = "C"
	F Unit = "F"
	K Unit = "K"
)

// Sentinel values returned by ReadTemperature and ReadTemperature2 in
// place of a reading. Both sit far outside the device's physical -55 to
// +125 °C range in every supported unit.
const (
	// ReadError reports that the device could not be read.
	ReadError = -256.0
	// CRCError reports that the scratchpad failed CRC validation.
	CRCError = -255.0
)

// convert returns t in the requested unit using the exact relations
// F = C·9/5 + 32 and K = C + 273.15. Unknown units fall back to °C.
func convert(t physic.Temperature, u Unit) float64 {
	c := t.Celsius()
	switch u {
	case F:
		return c*9/5 + 32
	case K:
		return c + 273.15
	}
	return c
}

// ReadTemperature performs a conversion and returns the reading in the
// requested unit as a bare float, reporting failure through the legacy
// sentinels: CRCError when scratchpad validation failed, ReadError for
// everything else. New code should prefer Sense or Temperature, which
// return typed errors instead of overloading the numeric domain.
func (d *Dev) ReadTemperature(u Unit) float64 {
	t, err := d.Temperature()
	if err != nil {
		if errors.Is(err, ErrCRCMismatch) {
			return CRCError
		}
		return ReadError
	}
	return convert(t, u)
}

// ReadTemperature2 returns the captured value from the temperature
// attribute (see LastTemp) with the same sentinel convention. This path
// carries no CRC, so ReadError is its only sentinel.
func (d *Dev) ReadTemperature2(u Unit) float64 {
	t, err := d.LastTemp()
	if err != nil {
		return ReadError
	}
	return convert(t, u)
}
