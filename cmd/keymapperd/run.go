package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/gethiox/keymapper/internal/pkg/config"
	"github.com/gethiox/keymapper/internal/pkg/injector"
	"github.com/gethiox/keymapper/internal/pkg/input"
	"github.com/gethiox/keymapper/internal/pkg/logger"
	"github.com/gethiox/keymapper/internal/pkg/mapping"
	"github.com/gethiox/keymapper/internal/pkg/numlock"
	"github.com/gethiox/keymapper/internal/pkg/symbols"
	"github.com/holoplot/go-evdev"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	profileAddr     = "0.0.0.0:8080"
	reloadSettle    = time.Millisecond * 200
	shutdownTimeout = time.Second * 2
)

func newRunCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Grab mapped devices and inject remapped events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManager(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics", "", "serve prometheus metrics on given address, eg. \"127.0.0.1:9100\"")
	cmd.Flags().BoolVar(&opts.profile, "profile", false, "run web server with pprof debug endpoint")
	return cmd
}

func loadRegistry(ctx context.Context, xmodmap bool) *symbols.Registry {
	registry := symbols.Default()
	if !xmodmap {
		return registry
	}
	extra, err := symbols.LoadXmodmap(ctx)
	if err != nil {
		log.Info(fmt.Sprintf("xmodmap symbols not loaded: %s", err), logger.Warning)
		return registry
	}
	log.Info(fmt.Sprintf("loaded %d xmodmap symbols", len(extra)), logger.Debug)
	return registry.With(extra)
}

// openNumlock looks for the first keyboard handler exposing numlock indicator
func openNumlock() *numlock.LED {
	devices, err := input.ListDevices()
	if err != nil {
		log.Info(fmt.Sprintf("device listing failed: %s", err), logger.Warning)
		return nil
	}
	for _, d := range devices {
		for _, h := range d.Handlers {
			path := h.EventPath()
			if path == "" || !hasLED(h.Capabilities()[evdev.EV_LED], evdev.LED_NUML) {
				continue
			}
			led, err := numlock.OpenLED(path)
			if err != nil {
				log.Info(fmt.Sprintf("numlock indicator unavailable: %s", err), zap.String("path", path), logger.Warning)
				continue
			}
			log.Info("numlock guard enabled", zap.String("device_name", d.Name), zap.String("path", path), logger.Debug)
			return led
		}
	}
	log.Info("no keyboard with numlock indicator found, numlock guard disabled", logger.Warning)
	return nil
}

func hasLED(codes []evdev.EvCode, led evdev.EvCode) bool {
	for _, c := range codes {
		if c == led {
			return true
		}
	}
	return false
}

func serve(ctx context.Context, srv *http.Server) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// runManager is the main program process, before exiting from that function it needs to ensure that
// all goroutine execution has completed
func runManager(ctx context.Context, opts *options) error {
	err := createConfigDirectoryIfNeeded(opts.configDir)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath())
	if err != nil {
		return err
	}

	injectorOpts := injector.Options{Config: cfg}
	if cfg.Numlock.Guard {
		led := openNumlock()
		if led != nil {
			injectorOpts.Numlock = led
			defer led.Close()
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if opts.metricsAddr != "" {
		registry := prometheus.NewRegistry()
		injectorOpts.Metrics = injector.NewMetrics(registry)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: opts.metricsAddr, Handler: mux}
		log.Info(fmt.Sprintf("serving metrics on %s", opts.metricsAddr), logger.Info)
		g.Go(func() error { return serve(ctx, srv) })
	}

	if opts.profile {
		srv := &http.Server{Addr: profileAddr, Handler: http.DefaultServeMux}
		log.Info(fmt.Sprintf("serving pprof on %s", profileAddr), logger.Info)
		g.Go(func() error { return serve(ctx, srv) })
	}

	controller := injector.NewController(injectorOpts, loadRegistry(ctx, opts.xmodmap))
	g.Go(func() error {
		manage(ctx, controller, opts.mappingsDir(), cfg.Injector.DiscoveryRate)
		return nil
	})

	err = g.Wait()
	log.Info("Exit manager", logger.Debug)
	return err
}

// manage starts injection for every connected device with a mapping, mapping changes restart all injections
func manage(ctx context.Context, controller *injector.Controller, dir string, rate time.Duration) {
	defer controller.StopAll()

	changes := mapping.DetectChanges(ctx, dir)

	log.Info("Run manager", zap.String("mapping", dir), logger.Debug)
	for {
		collection, err := mapping.LoadDirectory(dir)
		if err != nil {
			log.Info(fmt.Sprintf("mappings load failed: %s", err), zap.String("mapping", dir), logger.Error)
			collection = mapping.Collection{}
		}
		log.Info(fmt.Sprintf("%d device mappings loaded", len(collection)), logger.Info)

		ctxDevice, cancel := context.WithCancel(ctx)
		devices := input.MonitorNewDevices(ctxDevice, rate)

		reload := watch(ctx, controller, collection, devices, changes)
		cancel()
		controller.StopAll()
		for range devices {
		}

		if !reload {
			return
		}
		settle(ctx, changes)
	}
}

// watch reacts on device changes until mappings change (true) or ctx is done (false)
func watch(
	ctx context.Context, controller *injector.Controller, collection mapping.Collection,
	devices <-chan input.DeviceChange, changes <-chan string,
) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case path, ok := <-changes:
			if !ok {
				// watcher is gone, keep serving devices with mappings loaded so far
				changes = nil
				continue
			}
			log.Info("mappings changed, reloading", zap.String("mapping", path), logger.Info)
			return true
		case change, ok := <-devices:
			if !ok {
				return false
			}
			handleDeviceChange(ctx, controller, collection, change)
		}
	}
}

func handleDeviceChange(ctx context.Context, controller *injector.Controller, collection mapping.Collection, change input.DeviceChange) {
	d := change.Device
	if change.Removed {
		if controller.StopInjecting(d.Name) {
			log.Info("Device disconnected", zap.String("device_name", d.Name), logger.Info)
		}
		return
	}

	f, ok := collection.Find(d.Name)
	if !ok {
		log.Info("no mapping for device, ignoring", zap.String("device_name", d.Name),
			zap.String("device_type", d.DeviceType.String()), logger.Debug)
		return
	}

	err := controller.StartInjecting(ctx, d, f.Mapping)
	if err != nil {
		log.Info(fmt.Sprintf("failed to start injection: %s", err), zap.String("device_name", d.Name),
			zap.String("mapping", f.Path), logger.Error)
		return
	}
	log.Info("Device connected", zap.String("device_name", d.Name), zap.String("mapping", f.Path),
		zap.String("device_type", d.DeviceType.String()), logger.Info)
}

// settle swallows burst of change notifications emitted by editors saving a file
func settle(ctx context.Context, changes <-chan string) {
	timer := time.NewTimer(reloadSettle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
		}
	}
}
