// Copyright 2026 The w1therm Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds18b20 controls Dallas Semi / Maxim DS18B20 temperature
// sensors through the Linux w1_therm driver's sysfs attributes.
//
// It decodes and CRC-checks the scratchpad register image, converts
// readings to physic.Temperature, manages the conversion resolution and
// the TH/TL alarm thresholds, persists settings to the sensor EEPROM,
// and coordinates simultaneous conversions across every sensor sharing
// a bus master (see Bulk).
//
// Writing device attributes (resolution, alarms, EEPROM commands, bulk
// triggers) normally requires root; reads do not.
//
// Datasheet:
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS18B20.pdf
//
// Kernel driver:
// https://www.kernel.org/doc/html/latest/w1/slaves/w1_therm.html
package ds18b20
