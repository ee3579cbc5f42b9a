// Copyright 2026 The w1therm Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/cjnaz/w1therm/w1sysfs"
	"periph.io/x/conn/v3/physic"
)

// BulkStatus reports the state of a bulk conversion, mirroring the
// values of the bus master's therm_bulk_read indicator.
type BulkStatus int

const (
	// BulkConverting means at least one sensor is still converting.
	BulkConverting BulkStatus = -1
	// BulkIdle means no bulk conversion is pending. Trigger also
	// returns it when the bus master does not support bulk reads.
	BulkIdle BulkStatus = 0
	// BulkPending means the conversions are done and at least one
	// participant has not drained its reading yet.
	BulkPending BulkStatus = 1
)

// Session states.
const (
	stateIdle     = iota
	stateAwaiting // trigger issued, indicator has not reported done
	stateReady    // conversions done, readings waiting to be drained
)

// Bulk coordinates one simultaneous temperature conversion across the
// sensors of a single bus master and hands out each participant's
// reading exactly once per trigger.
//
// Construct exactly one Bulk per bus master and share it between the
// goroutines using that bus; sensors under another master need their
// own session. Methods are safe for concurrent use.
type Bulk struct {
	master *w1sysfs.Master

	mu      sync.Mutex
	state   int
	gen     uint64 // advances when a session arms or ends
	pending map[string]struct{}
}

// NewBulk returns a conversion session for the given bus master.
func NewBulk(m *w1sysfs.Master) *Bulk {
	return &Bulk{master: m}
}

// Master returns the bus master the session coordinates.
func (b *Bulk) Master() *w1sysfs.Master {
	return b.master
}

// Trigger starts a simultaneous conversion for the given participants,
// which must all sit on this session's bus master. It blocks for the
// worst case conversion time of the slowest participant, then checks
// the completion indicator once:
//
//   - BulkPending: the conversions finished; Drain each participant.
//   - BulkConverting: at least one sensor needs more time, which can
//     happen with parasitic power or marginal bus conditions. The
//     session stays armed: poll Status, then Drain. Another Trigger
//     fails with ErrSessionActive until the session completes or Reset
//     is called.
//   - BulkIdle: the bus master does not support triggered bulk reads;
//     read the sensors individually instead.
//
// If other goroutines drain every participant before the wait elapses,
// Trigger returns BulkIdle: the readings were already handed out.
//
// The trigger write requires elevated privileges.
func (b *Bulk) Trigger(devs ...*Dev) (BulkStatus, error) {
	if len(devs) == 0 {
		return BulkIdle, errors.New("ds18b20: bulk trigger needs at least one participant")
	}
	b.mu.Lock()
	if b.state != stateIdle {
		b.mu.Unlock()
		return BulkIdle, fmt.Errorf("ds18b20: %s: %w", b.master, ErrSessionActive)
	}
	b.state = stateAwaiting
	b.gen++
	gen := b.gen
	b.pending = make(map[string]struct{}, len(devs))
	for _, d := range devs {
		b.pending[d.id] = struct{}{}
	}
	b.mu.Unlock()

	// Worst case completion over the participants' current resolutions,
	// read fresh in case another process changed them.
	var wait time.Duration
	for _, d := range devs {
		w := d.convTime
		if w == 0 {
			bits, err := d.Resolution()
			if err != nil {
				b.Reset()
				return BulkIdle, err
			}
			w = conversionTime(bits)
		}
		if w > wait {
			wait = w
		}
	}

	if err := b.master.TriggerBulkRead(); err != nil {
		b.Reset()
		if errors.Is(err, fs.ErrNotExist) {
			// Older drivers have no therm_bulk_read.
			return BulkIdle, nil
		}
		if errors.Is(err, fs.ErrPermission) {
			return BulkIdle, fmt.Errorf("ds18b20: %s trigger: %w: %w", b.master, ErrPermission, err)
		}
		return BulkIdle, fmt.Errorf("ds18b20: %s trigger: %w", b.master, err)
	}

	sleep(wait)

	st, err := b.master.BulkReadStatus()
	if err != nil {
		// The trigger fired; leave the session armed so Status or Reset
		// can resolve it.
		return BulkIdle, fmt.Errorf("ds18b20: %s indicator: %w", b.master, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen != gen {
		// Concurrent Status and Drain calls finished the session during
		// the wait; any active session belongs to a later Trigger.
		return BulkIdle, nil
	}
	switch st {
	case -1:
		return BulkConverting, nil
	case 1:
		b.state = stateReady
		return BulkPending, nil
	default:
		// Nothing pending per the indicator.
		b.resetLocked()
		return BulkIdle, nil
	}
}

// Drain returns the given sensor's reading for the current session and
// marks it consumed; once every participant has drained, the session
// returns to idle, ready for the next Trigger. Without an active
// session, or for a sensor that is not a participant, it falls back to
// an ordinary read: the captured value when the driver holds one, else
// a fresh individual conversion.
func (b *Bulk) Drain(d *Dev) (physic.Temperature, error) {
	t, err := d.LastTemp()
	if err != nil {
		// The reading was not consumed; the sensor stays pending.
		return 0, err
	}
	b.mu.Lock()
	if b.state == stateReady {
		if _, ok := b.pending[d.id]; ok {
			delete(b.pending, d.id)
			if len(b.pending) == 0 {
				b.resetLocked()
			}
		}
	}
	b.mu.Unlock()
	return t, nil
}

// Status reports the session state without consuming anything:
// BulkConverting while the hardware indicator says a sensor is still
// converting, BulkPending while armed participants have not drained,
// BulkIdle otherwise. An armed session is promoted to ready once the
// indicator stops reporting conversions in progress.
func (b *Bulk) Status() (BulkStatus, error) {
	st, err := b.master.BulkReadStatus()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return BulkIdle, fmt.Errorf("ds18b20: %s indicator: %w", b.master, err)
	}
	if err == nil && st == -1 {
		return BulkConverting, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateAwaiting && err == nil {
		b.state = stateReady
	}
	if b.state != stateIdle && len(b.pending) > 0 {
		return BulkPending, nil
	}
	return BulkIdle, nil
}

// Reset abandons any in-flight session and returns to idle without
// draining. Captured but unread values remain reachable through
// ordinary reads.
func (b *Bulk) Reset() {
	b.mu.Lock()
	b.resetLocked()
	b.mu.Unlock()
}

func (b *Bulk) resetLocked() {
	b.state = stateIdle
	b.gen++
	b.pending = nil
}
