package injector

import (
	"context"
	"fmt"
	"time"

	"github.com/gethiox/keymapper/internal/pkg/config"
	"github.com/gethiox/keymapper/internal/pkg/input"
	"github.com/gethiox/keymapper/internal/pkg/logger"
	"github.com/holoplot/go-evdev"
	"go.uber.org/zap"
)

// interesting tells if the device emits anything the mapping cares about
func (i *Injector) interesting(caps map[evdev.EvType][]evdev.EvCode) (used, absToRel bool) {
	absToRel = input.IsGamepad(caps) && i.opts.Config.Joystick.LeftPurpose == config.PurposeMouse
	if absToRel {
		return true, true
	}
	for t, codes := range caps {
		for _, c := range codes {
			if i.resolved.Has(t, c) {
				return true, false
			}
		}
	}
	return false, false
}

// prepare opens and grabs event handler. Nil source is returned when the device
// can not be opened, is not interesting or refuses to be grabbed, no error is propagated.
func (i *Injector) prepare(ctx context.Context, path string) (input.Source, bool) {
	fields := []zap.Field{zap.String("path", path)}

	src, err := i.opts.Open(path)
	if err != nil {
		log.Info(fmt.Sprintf("cannot open device: %v", err), i.logFields(append(fields, logger.Warning)...)...)
		return nil, false
	}

	ok, absToRel := i.interesting(src.Capabilities())
	if !ok {
		log.Info("Device handler not used by mapping, skipping", i.logFields(append(fields, logger.Debug)...)...)
		_ = src.Close()
		return nil, false
	}

	attempts := i.opts.Config.Injector.GrabAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		i.opts.Metrics.grabAttempt(i.device)
		err = src.Grab()
		if err == nil {
			log.Info(fmt.Sprintf("Device grabbed (attempt %d)", attempt), i.logFields(append(fields, logger.Debug)...)...)
			return src, absToRel
		}

		log.Info(fmt.Sprintf("grab attempt %d/%d failed: %v", attempt, attempts, err), i.logFields(append(fields, logger.Debug)...)...)
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			_ = src.Close()
			return nil, false
		case <-time.After(i.opts.Config.Injector.GrabBackoff):
		}
	}

	i.opts.Metrics.grabFailed(i.device)
	log.Info("cannot grab device, giving up", i.logFields(append(fields, logger.Error)...)...)
	_ = src.Close()
	return nil, false
}
