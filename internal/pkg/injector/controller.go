package injector

import (
	"context"
	"fmt"
	"sort"

	"github.com/gethiox/keymapper/internal/pkg/input"
	"github.com/gethiox/keymapper/internal/pkg/logger"
	"github.com/gethiox/keymapper/internal/pkg/macro"
	"github.com/gethiox/keymapper/internal/pkg/mapping"
	"github.com/gethiox/keymapper/internal/pkg/symbols"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Controller keeps one injector per device name
type Controller struct {
	opts      Options
	registry  *symbols.Registry
	injectors *xsync.MapOf[string, *Injector]
}

// NewController creates controller resolving mappings with given registry, symbols.Default() when nil
func NewController(opts Options, registry *symbols.Registry) *Controller {
	if registry == nil {
		registry = symbols.Default()
	}
	return &Controller{
		opts:      opts.withDefaults(),
		registry:  registry,
		injectors: xsync.NewMapOf[string, *Injector](),
	}
}

// StartInjecting resolves mapping and starts injection for the device, replacing a previous one.
// Mapping with malformed macro is rejected before anything is grabbed.
func (c *Controller) StartInjecting(ctx context.Context, device input.Device, m mapping.Mapping) error {
	resolved, err := mapping.Resolve(m, macro.Options{
		Registry:       c.registry,
		KeystrokeDelay: c.opts.Config.Macros.KeystrokeSleep,
	})
	if err != nil {
		return fmt.Errorf("mapping for \"%s\" rejected: %w", device.Name, err)
	}

	c.StopInjecting(device.Name)

	inj := New(device.Name, device.Paths(), resolved, c.opts)
	err = inj.Start(ctx)
	if err != nil {
		return err
	}
	c.injectors.Store(device.Name, inj)

	log.Info("Injection requested", zap.String("device_name", device.Name),
		zap.Int("rules", len(resolved.Keys)), zap.Int("dropped", len(resolved.Dropped)), logger.Info)
	return nil
}

// StopInjecting stops injection for the device and waits until it is released, reports if it was known
func (c *Controller) StopInjecting(name string) bool {
	inj, ok := c.injectors.LoadAndDelete(name)
	if !ok {
		return false
	}
	inj.Stop()
	return true
}

// IsInjecting tells if injector for the device is alive
func (c *Controller) IsInjecting(name string) bool {
	inj, ok := c.injectors.Load(name)
	return ok && inj.IsAlive()
}

// State returns injector state of the device
func (c *Controller) State(name string) (State, bool) {
	inj, ok := c.injectors.Load(name)
	if !ok {
		return Created, false
	}
	return inj.State(), true
}

// Send passes control payload to the injector of the device
func (c *Controller) Send(name string, payload any) bool {
	inj, ok := c.injectors.Load(name)
	if !ok {
		return false
	}
	return inj.Send(ParseCommand(payload))
}

// StopAll stops every injector concurrently and waits for all of them
func (c *Controller) StopAll() {
	var g errgroup.Group
	c.injectors.Range(func(name string, _ *Injector) bool {
		inj, ok := c.injectors.LoadAndDelete(name)
		if !ok {
			return true
		}
		g.Go(func() error {
			inj.Stop()
			return nil
		})
		return true
	})
	_ = g.Wait()
}

// Devices returns names of devices with registered injectors
func (c *Controller) Devices() []string {
	names := make([]string, 0, c.injectors.Size())
	c.injectors.Range(func(name string, _ *Injector) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}
