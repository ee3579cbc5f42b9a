// Copyright 2026 The w1therm Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20_test

import (
	"fmt"
	"log"
	"time"

	"github.com/cjnaz/w1therm/ds18b20"
	"github.com/cjnaz/w1therm/w1sysfs"
	"periph.io/x/host/v3"
)

func Example() {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}
	// Find the DS18B20 sensors the w1_therm driver has enumerated.
	fsys := w1sysfs.Devices()
	ids, err := ds18b20.Search(fsys)
	if err != nil {
		log.Fatal(err)
	}
	if len(ids) == 0 {
		log.Fatal("no DS18B20 on the bus; is w1-therm loaded?")
	}
	d, err := ds18b20.New(fsys, ids[0], nil)
	if err != nil {
		log.Fatal(err)
	}
	// Take a reading. The driver blocks while the sensor converts.
	temp, err := d.Temperature()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s: %s\n", d, temp)
}

func ExampleBulk() {
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}
	fsys := w1sysfs.Devices()
	masters, err := w1sysfs.Masters(fsys)
	if err != nil || len(masters) == 0 {
		log.Fatal("no w1 bus master")
	}
	ids, err := ds18b20.Search(fsys)
	if err != nil {
		log.Fatal(err)
	}
	var devs []*ds18b20.Dev
	for _, id := range ids {
		d, err := ds18b20.New(fsys, id, nil)
		if err != nil {
			log.Fatal(err)
		}
		devs = append(devs, d)
	}

	// One conversion for every sensor on the bus at once, then read
	// the captured values back without further conversions.
	b := ds18b20.NewBulk(masters[0])
	status, err := b.Trigger(devs...)
	if err != nil {
		log.Fatal(err)
	}
	if status == ds18b20.BulkIdle {
		log.Fatal("bus master does not support bulk reads")
	}
	for _, d := range devs {
		temp, err := b.Drain(d)
		if err != nil {
			log.Printf("%s: %v", d, err)
			continue
		}
		fmt.Printf("%s: %s\n", d, temp)
	}
}

func ExampleDev_SenseContinuous() {
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}
	fsys := w1sysfs.Devices()
	ids, err := ds18b20.Search(fsys)
	if err != nil || len(ids) == 0 {
		log.Fatal("no DS18B20 on the bus")
	}
	d, err := ds18b20.New(fsys, ids[0], nil)
	if err != nil {
		log.Fatal(err)
	}
	defer d.Halt()
	c, err := d.SenseContinuous(time.Second)
	if err != nil {
		log.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		e := <-c
		fmt.Printf("%s\n", e.Temperature)
	}
}
