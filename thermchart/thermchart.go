// Copyright 2026 The w1therm Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package thermchart renders recorded temperature series as a PNG line
// chart, one colored line per sensor.
package thermchart

import (
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
	"periph.io/x/conn/v3/physic"
)

// Sample is one reading at one point in time.
type Sample struct {
	At   time.Time
	Temp physic.Temperature
}

// Series is the readings of one sensor, in time order.
type Series struct {
	Name    string
	Samples []Sample
}

// Opts represents the options available for the chart.
type Opts struct {
	// W and H are the image size in pixels. Both zero means 800x400.
	W int
	H int
	// Title is drawn across the top when not empty.
	Title string
	// Min and Max bound the temperature axis. Both zero scales the
	// axis to the data with a one kelvin margin.
	Min physic.Temperature
	Max physic.Temperature

	_ struct{}
}

// Line colors cycled over the series.
var palette = [][3]float64{
	{0.12, 0.47, 0.71},
	{0.84, 0.15, 0.16},
	{0.17, 0.63, 0.17},
	{1.00, 0.50, 0.05},
	{0.58, 0.40, 0.74},
	{0.09, 0.75, 0.81},
}

const (
	marginLeft   = 56.0
	marginRight  = 16.0
	marginTop    = 24.0
	marginBottom = 32.0
)

// Render draws the series into a new image.
func Render(series []Series, opts *Opts) (image.Image, error) {
	if opts == nil {
		opts = &Opts{}
	}
	w, h := opts.W, opts.H
	if w == 0 && h == 0 {
		w, h = 800, 400
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("thermchart: invalid size %dx%d", w, h)
	}
	first, last, lo, hi, err := ranges(series, opts)
	if err != nil {
		return nil, err
	}

	dc := gg.NewContext(w, h)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("thermchart: %w", err)
	}
	dc.SetFontFace(truetype.NewFace(f, &truetype.Options{Size: 12}))

	plot := gg.Point{X: marginLeft, Y: marginTop}
	plotW := float64(w) - marginLeft - marginRight
	plotH := float64(h) - marginTop - marginBottom
	tx := func(at time.Time) float64 {
		return plot.X + plotW*float64(at.Sub(first))/float64(last.Sub(first))
	}
	ty := func(t physic.Temperature) float64 {
		return plot.Y + plotH - plotH*float64(t-lo)/float64(hi-lo)
	}

	// Horizontal grid with temperature labels.
	for i := 0; i <= 4; i++ {
		t := lo + physic.Temperature(i)*(hi-lo)/4
		y := ty(t)
		dc.SetRGB(0.9, 0.9, 0.9)
		dc.SetLineWidth(1)
		dc.DrawLine(plot.X, y, plot.X+plotW, y)
		dc.Stroke()
		dc.SetRGB(0, 0, 0)
		label := fmt.Sprintf("%.1f°C", t.Celsius())
		lw, lh := dc.MeasureString(label)
		dc.DrawString(label, plot.X-lw-6, y+lh/2)
	}
	// Vertical grid with time labels.
	for i := 0; i <= 4; i++ {
		at := first.Add(last.Sub(first) * time.Duration(i) / 4)
		x := tx(at)
		dc.SetRGB(0.9, 0.9, 0.9)
		dc.SetLineWidth(1)
		dc.DrawLine(x, plot.Y, x, plot.Y+plotH)
		dc.Stroke()
		dc.SetRGB(0, 0, 0)
		label := at.Format("15:04")
		lw, _ := dc.MeasureString(label)
		dc.DrawString(label, x-lw/2, plot.Y+plotH+16)
	}
	// Axes.
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	dc.DrawLine(plot.X, plot.Y, plot.X, plot.Y+plotH)
	dc.DrawLine(plot.X, plot.Y+plotH, plot.X+plotW, plot.Y+plotH)
	dc.Stroke()
	if opts.Title != "" {
		lw, _ := dc.MeasureString(opts.Title)
		dc.DrawString(opts.Title, plot.X+(plotW-lw)/2, marginTop-8)
	}

	// One polyline per series, with a legend entry in the top right.
	legendY := plot.Y + 14
	for i, s := range series {
		c := palette[i%len(palette)]
		dc.SetRGB(c[0], c[1], c[2])
		dc.SetLineWidth(1.5)
		for j, sample := range s.Samples {
			x, y := tx(sample.At), ty(sample.Temp)
			if j == 0 {
				dc.MoveTo(x, y)
			} else {
				dc.LineTo(x, y)
			}
		}
		dc.Stroke()
		if s.Name != "" {
			lw, lh := dc.MeasureString(s.Name)
			lx := plot.X + plotW - lw - 8
			dc.DrawLine(lx-22, legendY-lh/2+1, lx-6, legendY-lh/2+1)
			dc.Stroke()
			dc.SetRGB(0, 0, 0)
			dc.DrawString(s.Name, lx, legendY)
			legendY += 16
		}
	}
	return dc.Image(), nil
}

// WritePNG renders the series and writes the PNG encoding to w.
func WritePNG(w io.Writer, series []Series, opts *Opts) error {
	img, err := Render(series, opts)
	if err != nil {
		return err
	}
	dc := gg.NewContextForImage(img)
	return dc.EncodePNG(w)
}

// ranges returns the time and temperature extents the chart covers.
func ranges(series []Series, opts *Opts) (first, last time.Time, lo, hi physic.Temperature, err error) {
	n := 0
	for _, s := range series {
		for _, sample := range s.Samples {
			if n == 0 {
				first, last = sample.At, sample.At
				lo, hi = sample.Temp, sample.Temp
			}
			if sample.At.Before(first) {
				first = sample.At
			}
			if sample.At.After(last) {
				last = sample.At
			}
			if sample.Temp < lo {
				lo = sample.Temp
			}
			if sample.Temp > hi {
				hi = sample.Temp
			}
			n++
		}
	}
	if n == 0 {
		return first, last, lo, hi, errors.New("thermchart: no samples to plot")
	}
	if opts.Min != 0 || opts.Max != 0 {
		lo, hi = opts.Min, opts.Max
	} else {
		// A margin so the extremes do not sit on the frame.
		lo -= physic.Kelvin
		hi += physic.Kelvin
	}
	if hi <= lo {
		return first, last, lo, hi, fmt.Errorf("thermchart: empty temperature range %s to %s", lo, hi)
	}
	if last.Equal(first) {
		last = first.Add(time.Minute)
	}
	return first, last, lo, hi, nil
}
