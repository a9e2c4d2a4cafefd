package injector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gethiox/keymapper/internal/pkg/logger"
	"github.com/gethiox/keymapper/internal/pkg/macro"
	"github.com/gethiox/keymapper/internal/pkg/numlock"
	"github.com/holoplot/go-evdev"
	"go.uber.org/zap"
)

const (
	EV_KEY_RELEASE = 0
	EV_KEY_PRESS   = 1
	EV_KEY_REPEAT  = 2
)

// Writer emits single event on the virtual device
type Writer interface {
	Write(t evdev.EvType, c evdev.EvCode, value int32) error
}

// Dispatcher decides what happens with every mapped input event.
// Tables are keyed by event code only, event type of the rule is checked by the caller.
type Dispatcher struct {
	remap  map[evdev.EvCode]evdev.EvCode
	macros map[evdev.EvCode]*macro.Macro

	writer  Writer
	handler macro.Handler
	numlock numlock.Indicator
	metrics *Metrics
	device  string

	wg sync.WaitGroup
}

func NewDispatcher(remap map[evdev.EvCode]evdev.EvCode, macros map[evdev.EvCode]*macro.Macro, w Writer) *Dispatcher {
	d := &Dispatcher{
		remap:  remap,
		macros: macros,
		writer: w,
	}
	d.handler = d.writeKey
	return d
}

// SetMacroHandler replaces default macro output, which writes EV_KEY events through the writer
func (d *Dispatcher) SetMacroHandler(h macro.Handler) {
	d.handler = h
}

// SetNumlock enables numlock guard around macro execution
func (d *Dispatcher) SetNumlock(ind numlock.Indicator) {
	d.numlock = ind
}

func (d *Dispatcher) logFields(fields ...zap.Field) []zap.Field {
	return append(fields, zap.String("device_name", d.device))
}

func (d *Dispatcher) writeKey(code evdev.EvCode, value int32) {
	d.write(evdev.EV_KEY, code, value)
}

func (d *Dispatcher) write(t evdev.EvType, c evdev.EvCode, value int32) {
	if d.writer == nil {
		return
	}
	err := d.writer.Write(t, c, value)
	if err != nil {
		log.Info(fmt.Sprintf("failed to write event: %v", err), d.logFields(logger.Warning)...)
	}
}

// HandleKeycode triggers macro, writes remapped event or forwards event unchanged.
// Macros are started asynchronously on key press only and live until completion or ctx cancellation.
func (d *Dispatcher) HandleKeycode(ctx context.Context, ev *evdev.InputEvent) {
	if m, ok := d.macros[ev.Code]; ok {
		if ev.Value != EV_KEY_PRESS {
			return
		}
		log.Info(fmt.Sprintf("Macro triggered: %s", m), d.logFields(logger.Action, zap.String("code", evdev.CodeName(ev.Type, ev.Code)))...)
		d.metrics.macroTriggered(d.device)

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			numlock.Ensure(d.numlock, func() {
				err := m.Run(ctx, d.handler)
				if err != nil && !errors.Is(err, context.Canceled) {
					log.Info(fmt.Sprintf("macro failed: %v", err), d.logFields(logger.Warning)...)
				}
			})
		}()
		return
	}

	if target, ok := d.remap[ev.Code]; ok {
		log.Info(fmt.Sprintf("Remapped %s -> %s", evdev.CodeName(ev.Type, ev.Code), evdev.CodeName(ev.Type, target)),
			d.logFields(logger.Keys, zap.Int32("value", ev.Value))...)
		d.metrics.remapped(d.device)
		d.write(ev.Type, target, ev.Value)
		return
	}

	d.metrics.forwarded(d.device)
	d.write(ev.Type, ev.Code, ev.Value)
}

// Wait blocks until every started macro is done
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
