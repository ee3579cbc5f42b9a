// Copyright 2026 The w1therm Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package w1therm is a container for packages that talk to DS18B20
// temperature sensors through the Linux w1_therm kernel driver.
//
// The ds18b20 package is the sensor driver; w1sysfs provides the bus
// directory access it rides on.
package w1therm
