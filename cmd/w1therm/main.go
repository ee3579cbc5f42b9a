// Copyright 2026 The w1therm Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// w1therm inspects and configures the DS18B20 sensors enumerated by the
// Linux w1_therm driver.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/cjnaz/w1therm/ds18b20"
	"github.com/cjnaz/w1therm/thermchart"
	"github.com/cjnaz/w1therm/thermstrip"
	"github.com/cjnaz/w1therm/w1sysfs"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var path = flag.String("path", w1sysfs.DevicesDir, "w1 devices directory")

func usage() {
	o := flag.CommandLine.Output()
	fmt.Fprintf(o, "Usage: w1therm [-path dir] <command> [arguments]\n\n")
	fmt.Fprintf(o, "Commands:\n")
	fmt.Fprintf(o, "  list                     buses and sensors\n")
	fmt.Fprintf(o, "  read [-u C|F|K] [-cached] [id...]\n")
	fmt.Fprintf(o, "                           read temperatures\n")
	fmt.Fprintf(o, "  bulk                     one simultaneous conversion per bus\n")
	fmt.Fprintf(o, "  scratchpad <id>          dump the raw scratchpad\n")
	fmt.Fprintf(o, "  resolution <id> [bits]   get or set the resolution\n")
	fmt.Fprintf(o, "  alarms <id> [tl th]      get or set the alarm thresholds\n")
	fmt.Fprintf(o, "  save <id>                persist thresholds and resolution to EEPROM\n")
	fmt.Fprintf(o, "  restore <id>             recall thresholds and resolution from EEPROM\n")
	fmt.Fprintf(o, "  power <id>               report external or parasitic supply\n")
	fmt.Fprintf(o, "  convtime <id>            report the driver's conversion time\n")
	fmt.Fprintf(o, "  watch [-every d]         live color strip at the terminal\n")
	fmt.Fprintf(o, "  chart [-o file] <log>    render a w1thermlog file as PNG\n\n")
	fmt.Fprintf(o, "Flags:\n")
	flag.PrintDefaults()
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "w1therm: %s.\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	flag.Usage = usage
	flag.Parse()
	if _, err := host.Init(); err != nil {
		return err
	}
	fsys := w1sysfs.Dir(*path)
	args := flag.Args()
	cmd := "list"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "list":
		return cmdList(fsys)
	case "read":
		return cmdRead(fsys, args)
	case "bulk":
		return cmdBulk(fsys)
	case "scratchpad":
		return cmdScratchpad(fsys, args)
	case "resolution":
		return cmdResolution(fsys, args)
	case "alarms":
		return cmdAlarms(fsys, args)
	case "save", "restore":
		return cmdEEPROM(fsys, cmd, args)
	case "power":
		return cmdPower(fsys, args)
	case "convtime":
		return cmdConvTime(fsys, args)
	case "watch":
		return cmdWatch(fsys, args)
	case "chart":
		return cmdChart(args)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// open returns a handle for each requested sensor, or for every DS18B20
// on the bus when ids is empty.
func open(fsys w1sysfs.FS, ids []string) ([]*ds18b20.Dev, error) {
	if len(ids) == 0 {
		var err error
		if ids, err = ds18b20.Search(fsys); err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("no DS18B20 found; is w1-therm loaded?")
		}
	}
	var devs []*ds18b20.Dev
	for _, id := range ids {
		d, err := ds18b20.New(fsys, id, nil)
		if err != nil {
			return nil, err
		}
		devs = append(devs, d)
	}
	return devs, nil
}

func one(fsys w1sysfs.FS, args []string) (*ds18b20.Dev, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected exactly one sensor id")
	}
	return ds18b20.New(fsys, args[0], nil)
}

func formatTemp(t physic.Temperature, unit string) string {
	switch unit {
	case "F":
		return fmt.Sprintf("%.3f°F", t.Celsius()*9/5+32)
	case "K":
		return fmt.Sprintf("%.3fK", t.Celsius()+273.15)
	}
	return t.String()
}

func cmdList(fsys w1sysfs.FS) error {
	masters, err := w1sysfs.Masters(fsys)
	if err != nil {
		return err
	}
	if len(masters) == 0 {
		return fmt.Errorf("no w1 bus master; is w1-gpio loaded?")
	}
	for _, m := range masters {
		fmt.Printf("%s:\n", m)
		ids, err := m.Slaves()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Printf("  no slaves\n")
			continue
		}
		for _, id := range ids {
			d, err := ds18b20.New(fsys, id, nil)
			if err != nil {
				fmt.Printf("  %s\n", id)
				continue
			}
			desc := ""
			if bits, err := d.Resolution(); err == nil {
				desc += fmt.Sprintf("  %d bits", bits)
			}
			if on, err := d.ExternalPower(); err == nil {
				if on {
					desc += "  external power"
				} else {
					desc += "  parasitic power"
				}
			}
			fmt.Printf("  %s  DS18B20%s\n", id, desc)
		}
	}
	return nil
}

func cmdRead(fsys w1sysfs.FS, args []string) error {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	unit := fs.String("u", "C", "temperature unit: C, F or K")
	cached := fs.Bool("cached", false, "read the captured value without a new conversion")
	if err := fs.Parse(args); err != nil {
		return err
	}
	devs, err := open(fsys, fs.Args())
	if err != nil {
		return err
	}
	for _, d := range devs {
		var t physic.Temperature
		if *cached {
			t, err = d.LastTemp()
		} else {
			t, err = d.Temperature()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "w1therm: %s.\n", err)
			continue
		}
		fmt.Printf("%s  %s\n", d.ID(), formatTemp(t, *unit))
	}
	return nil
}

func cmdBulk(fsys w1sysfs.FS) error {
	masters, err := w1sysfs.Masters(fsys)
	if err != nil {
		return err
	}
	for _, m := range masters {
		ids, err := m.Slaves()
		if err != nil {
			return err
		}
		var devs []*ds18b20.Dev
		for _, id := range ids {
			if d, err := ds18b20.New(fsys, id, nil); err == nil {
				devs = append(devs, d)
			}
		}
		if len(devs) == 0 {
			continue
		}
		b := ds18b20.NewBulk(m)
		status, err := b.Trigger(devs...)
		if err != nil {
			return err
		}
		if status == ds18b20.BulkIdle {
			fmt.Fprintf(os.Stderr, "w1therm: %s has no bulk read support, reading individually.\n", m)
		}
		for status == ds18b20.BulkConverting {
			time.Sleep(50 * time.Millisecond)
			if status, err = b.Status(); err != nil {
				return err
			}
		}
		for _, d := range devs {
			t, err := b.Drain(d)
			if err != nil {
				fmt.Fprintf(os.Stderr, "w1therm: %s.\n", err)
				continue
			}
			fmt.Printf("%s  %s\n", d.ID(), t)
		}
	}
	return nil
}

func cmdScratchpad(fsys w1sysfs.FS, args []string) error {
	d, err := one(fsys, args)
	if err != nil {
		return err
	}
	sp, err := d.Scratchpad()
	if err != nil {
		return err
	}
	fmt.Printf("% x\n", sp.Raw)
	fmt.Printf("t=%s  TH=%d°C  TL=%d°C  %d bits\n", sp.Temperature(), sp.TH, sp.TL, sp.Resolution)
	return nil
}

func cmdResolution(fsys w1sysfs.FS, args []string) error {
	if len(args) == 2 {
		bits, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("bad resolution %q", args[1])
		}
		d, err := one(fsys, args[:1])
		if err != nil {
			return err
		}
		return d.SetResolution(bits)
	}
	d, err := one(fsys, args)
	if err != nil {
		return err
	}
	bits, err := d.Resolution()
	if err != nil {
		return err
	}
	fmt.Printf("%d bits\n", bits)
	return nil
}

func cmdAlarms(fsys w1sysfs.FS, args []string) error {
	if len(args) == 3 {
		tl, err1 := strconv.Atoi(args[1])
		th, err2 := strconv.Atoi(args[2])
		if err1 != nil || err2 != nil {
			return fmt.Errorf("bad thresholds %q %q", args[1], args[2])
		}
		d, err := one(fsys, args[:1])
		if err != nil {
			return err
		}
		a, err := d.SetAlarms(tl, th)
		if err != nil {
			return err
		}
		fmt.Printf("TL=%d°C TH=%d°C\n", a.TL, a.TH)
		return nil
	}
	d, err := one(fsys, args)
	if err != nil {
		return err
	}
	a, err := d.Alarms()
	if err != nil {
		return err
	}
	fmt.Printf("TL=%d°C TH=%d°C\n", a.TL, a.TH)
	return nil
}

func cmdEEPROM(fsys w1sysfs.FS, cmd string, args []string) error {
	d, err := one(fsys, args)
	if err != nil {
		return err
	}
	if cmd == "save" {
		return d.Persist()
	}
	return d.Recall()
}

func cmdPower(fsys w1sysfs.FS, args []string) error {
	d, err := one(fsys, args)
	if err != nil {
		return err
	}
	on, err := d.ExternalPower()
	if err != nil {
		return err
	}
	if on {
		fmt.Println("external")
	} else {
		fmt.Println("parasitic")
	}
	return nil
}

func cmdConvTime(fsys w1sysfs.FS, args []string) error {
	d, err := one(fsys, args)
	if err != nil {
		return err
	}
	ct, err := d.ConversionTime()
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", ct)
	return nil
}

func cmdWatch(fsys w1sysfs.FS, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	every := fs.Duration("every", 2*time.Second, "refresh period")
	min := fs.Float64("min", 0, "blue end of the color scale in °C")
	max := fs.Float64("max", 40, "red end of the color scale in °C")
	if err := fs.Parse(args); err != nil {
		return err
	}
	devs, err := open(fsys, fs.Args())
	if err != nil {
		return err
	}
	strip := thermstrip.New(&thermstrip.Opts{
		X:   len(devs),
		Min: physic.ZeroCelsius + physic.Temperature(*min*float64(physic.Celsius)),
		Max: physic.ZeroCelsius + physic.Temperature(*max*float64(physic.Celsius)),
	})
	defer strip.Halt()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	for {
		temps := make([]physic.Temperature, len(devs))
		for i, d := range devs {
			t, err := d.Temperature()
			if err != nil {
				fmt.Fprintf(os.Stderr, "\nw1therm: %s.\n", err)
				continue
			}
			temps[i] = t
		}
		if err := strip.SetTemps(temps); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func cmdChart(args []string) error {
	fs := flag.NewFlagSet("chart", flag.ExitOnError)
	out := fs.String("o", "w1therm.png", "output PNG file")
	title := fs.String("title", "", "chart title")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected exactly one w1thermlog file")
	}
	series, err := readLog(fs.Arg(0))
	if err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := thermchart.WritePNG(f, series, &thermchart.Opts{Title: *title}); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", *out)
	return nil
}

// readLog parses the "time,id,celsius" lines w1thermlog emits and
// groups them into one series per sensor.
func readLog(name string) ([]thermchart.Series, error) {
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	byID := map[string]int{}
	var series []thermchart.Series
	for n, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("%s:%d: expected time,id,celsius", name, n+1)
		}
		at, err := time.Parse(time.RFC3339, fields[0])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, n+1, err)
		}
		c, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, n+1, err)
		}
		i, ok := byID[fields[1]]
		if !ok {
			i = len(series)
			byID[fields[1]] = i
			series = append(series, thermchart.Series{Name: fields[1]})
		}
		series[i].Samples = append(series[i].Samples, thermchart.Sample{
			At:   at,
			Temp: physic.ZeroCelsius + physic.Temperature(c*float64(physic.Celsius)),
		})
	}
	return series, nil
}
