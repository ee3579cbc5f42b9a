// Copyright 2026 The w1therm Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"fmt"
	"time"
)

// AlarmMin and AlarmMax bound the TH/TL alarm registers in whole
// degrees C, the device's full measurement range (datasheet p.8).
const (
	AlarmMin = -55
	AlarmMax = 125
)

// encodeResolution returns the configuration register byte for a
// resolution: bits 5 and 6 select the resolution, every other bit reads
// 1 (datasheet p.9).
func encodeResolution(bits int) (byte, error) {
	if bits < 9 || bits > 12 {
		return 0, fmt.Errorf("%d bits: %w", bits, ErrInvalidResolution)
	}
	return byte((bits-9)<<5) | 0x1f, nil
}

// resolutionFromConfig decodes the configuration register. Only the
// four patterns the device can generate are accepted; anything else is
// a protocol inconsistency, never silently defaulted.
func resolutionFromConfig(cfg byte) (int, error) {
	switch cfg {
	case 0x1f:
		return 9, nil
	case 0x3f:
		return 10, nil
	case 0x5f:
		return 11, nil
	case 0x7f:
		return 12, nil
	}
	return 0, fmt.Errorf("configuration register 0x%02x: %w", cfg, ErrUnexpectedConfig)
}

// conversionTime returns the worst case conversion duration for a
// resolution (datasheet p.3). Values outside 9 to 11 get the 12 bit
// maximum.
func conversionTime(bits int) time.Duration {
	switch bits {
	case 9:
		return 93750 * time.Microsecond
	case 10:
		return 187500 * time.Microsecond
	case 11:
		return 375 * time.Millisecond
	}
	return 750 * time.Millisecond
}
