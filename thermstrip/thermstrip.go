// Copyright 2026 The w1therm Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package thermstrip implements a 1D display.Drawer that renders a row
// of temperatures to the terminal using ANSI color codes, one cell per
// sensor.
//
// Useful to keep an eye on a string of DS18B20 probes without any
// graphing stack: cold cells render blue, hot cells red.
package thermstrip

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
)

// Opts represents the options available for this display.
type Opts struct {
	// X is the number of temperature cells.
	X       int
	Palette *ansi256.Palette
	// Min and Max bound the color scale. Readings outside the range
	// clamp to the end colors. Both zero means 0°C to 40°C; a reversed
	// pair is swapped into order.
	Min physic.Temperature
	Max physic.Temperature
	// W overrides the output; nil writes to a colorable stdout.
	W io.Writer

	_ struct{}
}

// Dev renders one colored block per sensor at the console.
type Dev struct {
	w       io.Writer
	l       int
	palette ansi256.Palette
	min     physic.Temperature
	max     physic.Temperature

	pixels []byte
	buf    bytes.Buffer
}

// New returns a Dev that displays at the console.
//
// Permits local testing of a probe string before wiring any real
// display.
func New(opts *Opts) *Dev {
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.W
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	min, max := opts.Min, opts.Max
	if min == max {
		min = physic.ZeroCelsius
		max = physic.ZeroCelsius + 40*physic.Kelvin
	}
	if min > max {
		min, max = max, min
	}
	d := &Dev{
		w:       w,
		l:       opts.X,
		palette: *p,
		min:     min,
		max:     max,
		pixels:  make([]byte, 3*opts.X),
	}
	return d
}

func (d *Dev) String() string {
	return "ThermStrip"
}

// Halt implements conn.Resource.
//
// It resets the terminal attributes so the shell is not corrupted.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\n\033[0m"))
	if err != nil {
		return err
	}
	return nil
}

// SetTemps maps each reading onto the blue to red scale and redraws the
// strip. Fewer readings than cells leave the remaining cells black.
func (d *Dev) SetTemps(temps []physic.Temperature) error {
	if len(temps) > d.l {
		return errors.New("more readings than cells")
	}
	for i := range d.pixels {
		d.pixels[i] = 0
	}
	for i, t := range temps {
		r, g, b := d.colorFor(t)
		d.pixels[3*i] = r
		d.pixels[3*i+1] = g
		d.pixels[3*i+2] = b
	}
	_, err := d.refresh()
	return err
}

// colorFor interpolates blue via green to red over the Min to Max
// range.
func (d *Dev) colorFor(t physic.Temperature) (byte, byte, byte) {
	f := float64(t-d.min) / float64(d.max-d.min)
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	if f < 0.5 {
		v := byte(510 * f)
		return 0, v, 255 - v
	}
	v := byte(510 * (f - 0.5))
	return v, 255 - v, 0
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return image.Rectangle{Max: image.Point{X: d.l, Y: 1}}
}

// Draw implements display.Drawer. It accepts an already colored row,
// for callers that prepare their own gradient.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	r = r.Intersect(d.Bounds())
	srcR := src.Bounds()
	srcR.Min = srcR.Min.Add(sp)
	if dX := r.Dx(); dX < srcR.Dx() {
		srcR.Max.X = srcR.Min.X + dX
	}
	if dY := r.Dy(); dY < srcR.Dy() {
		srcR.Max.Y = srcR.Min.Y + dY
	}
	deltaX3 := 3 * (r.Min.X - srcR.Min.X)
	for sX := srcR.Min.X; sX < srcR.Max.X; sX++ {
		r16, g16, b16, _ := src.At(sX, srcR.Min.Y).RGBA()
		dX3 := 3*sX + deltaX3
		d.pixels[dX3] = byte(r16 >> 8)
		d.pixels[dX3+1] = byte(g16 >> 8)
		d.pixels[dX3+2] = byte(b16 >> 8)
	}
	_, err := d.refresh()
	return err
}

func (d *Dev) refresh() (int, error) {
	// Designed to minimize the amount of memory allocated per call.
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
	for i := 0; i < len(d.pixels)/3; i++ {
		c := color.NRGBA{d.pixels[3*i], d.pixels[3*i+1], d.pixels[3*i+2], 255}
		_, _ = io.WriteString(&d.buf, d.palette.Block(c))
	}
	_, _ = d.buf.WriteString("\033[0m ")
	_, err := d.buf.WriteTo(d.w)
	return len(d.pixels), err
}

var _ display.Drawer = &Dev{}
var _ fmt.Stringer = &Dev{}
