// Copyright 2026 The w1therm Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// w1thermlog periodically samples the DS18B20 sensors on the w1 bus and
// appends "time,id,celsius" lines to a logfile, optionally forwarding
// each reading to InfluxDB.
//
// Sensors sharing a bus master are sampled with one simultaneous
// conversion when the kernel supports it.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/cjnaz/w1therm/ds18b20"
	"github.com/cjnaz/w1therm/w1sysfs"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var (
	every   = flag.Duration("every", time.Minute, "sample period")
	file    = flag.String("file", "w1therm.log", "logfile, - for stdout only")
	sensors = flag.String("sensors", "", "comma separated sensor ids, default every DS18B20 found")
	path    = flag.String("path", w1sysfs.DevicesDir, "w1 devices directory")

	influxURL    = flag.String("influx-url", "", "InfluxDB server URL, empty disables forwarding")
	influxToken  = flag.String("influx-token", "", "InfluxDB API token")
	influxOrg    = flag.String("influx-org", "", "InfluxDB organization")
	influxBucket = flag.String("influx-bucket", "w1therm", "InfluxDB bucket")
)

// bus is one master and its participating sensors, sampled together.
type bus struct {
	bulk *ds18b20.Bulk
	devs []*ds18b20.Dev
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "w1thermlog: %s.\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	flag.Parse()
	if _, err := host.Init(); err != nil {
		return err
	}
	fsys := w1sysfs.Dir(*path)

	ids := strings.FieldsFunc(*sensors, func(r rune) bool { return r == ',' })
	if len(ids) == 0 {
		var err error
		if ids, err = ds18b20.Search(fsys); err != nil {
			return err
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("no DS18B20 found; is w1-therm loaded?")
	}
	buses, err := group(fsys, ids)
	if err != nil {
		return err
	}

	logger, closeLog, err := openlog(*file)
	if err != nil {
		return err
	}
	defer closeLog()

	var points api.WriteAPIBlocking
	if *influxURL != "" {
		client := influxdb2.NewClient(*influxURL, *influxToken)
		defer client.Close()
		points = client.WriteAPIBlocking(*influxOrg, *influxBucket)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	for {
		sample(ctx, buses, logger, points)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// group splits the sensors by the bus master they sit on so each master
// gets a single bulk conversion per sample.
func group(fsys w1sysfs.FS, ids []string) ([]*bus, error) {
	byMaster := map[string]*bus{}
	var buses []*bus
	for _, id := range ids {
		d, err := ds18b20.New(fsys, id, nil)
		if err != nil {
			return nil, err
		}
		m, err := w1sysfs.MasterFor(fsys, id)
		if err != nil {
			return nil, err
		}
		b, ok := byMaster[m.Name()]
		if !ok {
			b = &bus{bulk: ds18b20.NewBulk(m)}
			byMaster[m.Name()] = b
			buses = append(buses, b)
		}
		b.devs = append(b.devs, d)
	}
	return buses, nil
}

func sample(ctx context.Context, buses []*bus, logger *log.Logger, points api.WriteAPIBlocking) {
	for _, b := range buses {
		status, err := b.bulk.Trigger(b.devs...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "w1thermlog: %s.\n", err)
			b.bulk.Reset()
		}
		// Wait out stragglers that exceeded the table time.
		for status == ds18b20.BulkConverting {
			time.Sleep(50 * time.Millisecond)
			if status, err = b.bulk.Status(); err != nil {
				fmt.Fprintf(os.Stderr, "w1thermlog: %s.\n", err)
				break
			}
		}
		// Drain falls back to an individual read without a session, so
		// masters without bulk support still get sampled.
		at := time.Now().UTC()
		for _, d := range b.devs {
			t, err := b.bulk.Drain(d)
			if err != nil {
				fmt.Fprintf(os.Stderr, "w1thermlog: %s.\n", err)
				continue
			}
			record(ctx, logger, points, at, d, t)
		}
	}
}

func record(ctx context.Context, logger *log.Logger, points api.WriteAPIBlocking, at time.Time, d *ds18b20.Dev, t physic.Temperature) {
	logger.Printf("%s,%s,%.3f", at.Format(time.RFC3339), d.ID(), t.Celsius())
	if points == nil {
		return
	}
	p := influxdb2.NewPoint("temperature",
		map[string]string{"sensor": d.ID()},
		map[string]interface{}{"celsius": t.Celsius()},
		at)
	if err := points.WritePoint(ctx, p); err != nil {
		fmt.Fprintf(os.Stderr, "w1thermlog: influx: %s.\n", err)
	}
}

func openlog(name string) (*log.Logger, func(), error) {
	if name == "-" {
		return log.New(os.Stdout, "", 0), func() {}, nil
	}
	f, err := os.OpenFile(name, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, nil, err
	}
	mw := io.MultiWriter(f, os.Stdout)
	return log.New(mw, "", 0), func() { f.Close() }, nil
}
