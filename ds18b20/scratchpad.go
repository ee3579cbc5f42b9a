// Copyright 2026 The w1therm Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cjnaz/w1therm/common"
	"periph.io/x/conn/v3/physic"
)

// Scratchpad is the decoded 9 byte scratchpad register image
// (datasheet p.7): the last temperature conversion, the TH/TL alarm
// registers, the configuration register, three reserved bytes and the
// CRC.
type Scratchpad struct {
	// Raw is the image exactly as read, including the CRC in Raw[8].
	// The reserved bytes Raw[5:8] and the reserved configuration bits
	// are preserved verbatim.
	Raw [9]byte
	// Count is the temperature in 1/16 °C units as stored, sign
	// extended. Bits below the configured resolution are undefined;
	// Temperature masks them, Count does not.
	Count int16
	// TH and TL are the alarm thresholds in whole degrees C.
	TH int
	TL int
	// Resolution is the conversion resolution in bits, 9 to 12.
	Resolution int
	// Milli is the millidegree Celsius value reported by the driver's
	// t= line, or derived from Count when the line is absent.
	Milli int
}

// maskedCount clears the bits a sub-12-bit conversion leaves undefined.
func (s Scratchpad) maskedCount() int16 {
	return s.Count &^ int16((1<<uint(12-s.Resolution))-1)
}

// Temperature returns the converted reading with the undefined low bits
// masked off per the resolution.
func (s Scratchpad) Temperature() physic.Temperature {
	return physic.Temperature(s.maskedCount())*physic.Kelvin/16 + physic.ZeroCelsius
}

// decodeImage validates and decodes a raw scratchpad image.
func decodeImage(img [9]byte) (Scratchpad, error) {
	if computed := common.CRC8(img[:8]); computed != img[8] {
		return Scratchpad{}, fmt.Errorf("%w: computed 0x%02x, register 0x%02x", ErrCRCMismatch, computed, img[8])
	}
	bits, err := resolutionFromConfig(img[4])
	if err != nil {
		return Scratchpad{}, err
	}
	s := Scratchpad{
		Raw:        img,
		Count:      int16(img[1])<<8 | int16(img[0]),
		TH:         int(int8(img[2])),
		TL:         int(int8(img[3])),
		Resolution: bits,
	}
	s.Milli = int(s.maskedCount()) * 1000 / 16
	return s, nil
}

// parseW1Slave decodes the two line w1_slave attribute text. Line 1
// carries the image bytes, the driver's CRC and its YES/NO verdict;
// line 2 repeats the bytes and appends the millidegree value:
//
//	84 01 0a 00 7f ff 7f 10 a6 : crc=a6 YES
//	84 01 0a 00 7f ff 7f 10 a6 t=24250
//
// The driver verdict and the locally computed CRC must agree. A
// disagreement in either direction is reported as a fault, not
// resolved one way or the other.
func parseW1Slave(text string) (Scratchpad, error) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	fields := strings.Fields(lines[0])
	if len(fields) < 12 || fields[9] != ":" || !strings.HasPrefix(fields[10], "crc=") {
		return Scratchpad{}, fmt.Errorf("%w: malformed w1_slave line %q", ErrReadFailure, strings.TrimSpace(lines[0]))
	}
	var img [9]byte
	for i := range img {
		v, err := strconv.ParseUint(fields[i], 16, 8)
		if err != nil {
			return Scratchpad{}, fmt.Errorf("%w: bad scratchpad byte %q", ErrReadFailure, fields[i])
		}
		img[i] = byte(v)
	}
	verdict := fields[11]
	computed := common.CRC8(img[:8])
	switch {
	case verdict == "YES" && computed != img[8]:
		return Scratchpad{}, fmt.Errorf("%w: driver verdict YES but computed 0x%02x != register 0x%02x", ErrCRCMismatch, computed, img[8])
	case verdict == "NO" && computed == img[8]:
		return Scratchpad{}, fmt.Errorf("%w: driver verdict NO but the image checks out", ErrCRCMismatch)
	case verdict == "NO":
		return Scratchpad{}, fmt.Errorf("%w: driver verdict NO", ErrCRCMismatch)
	case verdict != "YES":
		return Scratchpad{}, fmt.Errorf("%w: malformed verdict %q", ErrReadFailure, verdict)
	}
	sp, err := decodeImage(img)
	if err != nil {
		return Scratchpad{}, err
	}
	if len(lines) > 1 {
		if i := strings.LastIndex(lines[1], "t="); i >= 0 {
			if milli, err := strconv.Atoi(strings.TrimSpace(lines[1][i+2:])); err == nil {
				sp.Milli = milli
			}
		}
	}
	return sp, nil
}
