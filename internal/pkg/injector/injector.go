package injector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gethiox/keymapper/internal/pkg/config"
	"github.com/gethiox/keymapper/internal/pkg/input"
	"github.com/gethiox/keymapper/internal/pkg/logger"
	"github.com/gethiox/keymapper/internal/pkg/mapping"
	"github.com/gethiox/keymapper/internal/pkg/numlock"
	"github.com/holoplot/go-evdev"
	"github.com/rs/xid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

var ErrAlreadyStarted = errors.New("injector already started")

const commandBuffer = 16

type State int32

const (
	Created State = iota
	Acquiring
	Acquired
	Running
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Acquiring:
		return "acquiring"
	case Acquired:
		return "acquired"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Options struct {
	Config     config.Config
	Numlock    numlock.Indicator // optional
	Open       input.Opener      // input.Open when nil
	CreateSink input.SinkFactory // input.CreateSink when nil
	Metrics    *Metrics          // optional
}

func (o Options) withDefaults() Options {
	if o.Open == nil {
		o.Open = input.Open
	}
	if o.CreateSink == nil {
		o.CreateSink = input.CreateSink
	}
	if o.Config.Injector.GrabAttempts <= 0 {
		o.Config = config.Defaults()
	}
	return o
}

// handle binds grabbed source with its virtual device
type handle struct {
	source     input.Source
	sink       input.Sink
	writer     *sinkWriter
	dispatcher *Dispatcher
	converter  *Converter
}

// Injector grabs every event handler of one device and forwards its events through
// the mapping into virtual devices, until stopped or until the device disappears.
type Injector struct {
	device   string
	paths    []string
	resolved mapping.Resolved
	opts     Options

	state    atomic.Int32
	session  xid.ID
	commands chan Command
	done     chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
}

func New(device string, paths []string, resolved mapping.Resolved, opts Options) *Injector {
	return &Injector{
		device:   device,
		paths:    paths,
		resolved: resolved,
		opts:     opts.withDefaults(),
		session:  xid.New(),
		commands: make(chan Command, commandBuffer),
		done:     make(chan struct{}),
	}
}

func (i *Injector) logFields(fields ...zap.Field) []zap.Field {
	return append(fields, zap.String("device_name", i.device), zap.String("session", i.session.String()))
}

func (i *Injector) Device() string {
	return i.device
}

func (i *Injector) State() State {
	return State(i.state.Load())
}

func (i *Injector) setState(s State) {
	i.state.Store(int32(s))
	log.Info(fmt.Sprintf("Injector %s", s), i.logFields(logger.Debug)...)
}

// IsAlive tells if injection is being prepared or running
func (i *Injector) IsAlive() bool {
	switch i.State() {
	case Acquiring, Acquired, Running:
		return true
	default:
		return false
	}
}

// Start launches injection in background, acquisition failures are reported by State only
func (i *Injector) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.state.CAS(int32(Created), int32(Acquiring)) {
		return ErrAlreadyStarted
	}
	log.Info("Injector acquiring", i.logFields(logger.Debug)...)

	ctx, i.cancel = context.WithCancel(ctx)
	go i.run(ctx, i.cancel)
	return nil
}

// Send delivers command without blocking, returns false when injector is not able to take it
func (i *Injector) Send(cmd Command) bool {
	if !i.IsAlive() {
		return false
	}
	select {
	case i.commands <- cmd:
		return true
	default:
		log.Info("command buffer full, dropping command", i.logFields(logger.Warning)...)
		return false
	}
}

// Stop requests injection end and waits until every device is released
func (i *Injector) Stop() {
	i.mu.Lock()
	cancel := i.cancel
	i.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	i.Wait()
}

// Wait blocks until injection ends, returns immediately for never started injector
func (i *Injector) Wait() {
	if i.State() == Created {
		return
	}
	<-i.done
}

func (i *Injector) run(ctx context.Context, cancel context.CancelFunc) {
	defer close(i.done)
	defer cancel()

	var handles []*handle
	for _, path := range i.paths {
		src, absToRel := i.prepare(ctx, path)
		if src == nil {
			continue
		}
		handles = append(handles, &handle{source: src, converter: i.converter(src, absToRel)})
	}

	if len(handles) == 0 {
		log.Info("no device handler acquired", i.logFields(logger.Warning)...)
		i.setState(Failed)
		return
	}
	i.setState(Acquired)

	handles = i.attach(handles)
	if len(handles) == 0 {
		i.setState(Failed)
		return
	}

	i.opts.Metrics.running(1)
	defer i.opts.Metrics.running(-1)
	i.setState(Running)
	log.Info("Injection started", i.logFields(logger.Info, zap.Int("handlers", len(handles)))...)

	forwarders := sync.WaitGroup{}
	readers := sync.WaitGroup{}
	// converters tick until cancellation, they must not hold back detection of closed devices
	converters := sync.WaitGroup{}
	for _, h := range handles {
		events := make(chan *evdev.InputEvent, 64)
		readers.Add(1)
		go i.read(ctx, &readers, h.source, events)

		forwarders.Add(1)
		go func(h *handle) {
			defer forwarders.Done()
			i.forward(ctx, h, events)
		}(h)

		if h.converter != nil {
			converters.Add(1)
			go func(h *handle) {
				defer converters.Done()
				h.converter.Run(ctx, h.writer)
			}(h)
		}
	}

	finished := make(chan struct{})
	go func() {
		forwarders.Wait()
		close(finished)
	}()

	i.control(ctx, finished)
	cancel()
	<-finished
	converters.Wait()

	for _, h := range handles {
		h.dispatcher.Wait()
	}
	i.release(handles)
	readers.Wait()

	i.setState(Stopped)
	log.Info("Injection stopped", i.logFields(logger.Info)...)
}

// control serves commands until stop request, context cancellation or end of every forwarder
func (i *Injector) control(ctx context.Context, finished <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-finished:
			log.Info("all device handlers closed", i.logFields(logger.Debug)...)
			return
		case cmd := <-i.commands:
			switch c := cmd.(type) {
			case Stop:
				log.Info("Stop requested", i.logFields(logger.Debug)...)
				return
			case Unknown:
				log.Info(fmt.Sprintf("ignoring %s", c), i.logFields(logger.Debug)...)
			default:
				log.Info(fmt.Sprintf("ignoring command %T", c), i.logFields(logger.Debug)...)
			}
		}
	}
}

func (i *Injector) converter(src input.Source, absToRel bool) *Converter {
	if !absToRel {
		return nil
	}
	var max int32 = DefaultAbsMax
	infos, err := src.AbsInfos()
	if err != nil {
		log.Info(fmt.Sprintf("cannot read axis info, assuming default range: %v", err), i.logFields(logger.Debug)...)
	} else if info, ok := infos[evdev.ABS_X]; ok && info.Maximum > 0 {
		max = info.Maximum
	}
	c := NewConverter(max, i.opts.Config.Joystick)
	c.metrics = i.opts.Metrics
	c.device = i.device
	return c
}

// attach creates virtual device for every grabbed handler, handlers without one are released
func (i *Injector) attach(handles []*handle) []*handle {
	targets := i.resolved.Targets()
	name := input.SinkName(i.device)

	attached := handles[:0]
	for _, h := range handles {
		caps := NegotiateCapabilities(h.source.Capabilities(), targets, h.converter != nil)
		sink, err := i.opts.CreateSink(name, caps)
		if err != nil {
			log.Info(fmt.Sprintf("cannot create virtual device: %v", err), i.logFields(logger.Error, zap.String("path", h.source.Path()))...)
			i.releaseSource(h.source)
			continue
		}
		h.sink = sink
		h.writer = &sinkWriter{sink: sink}

		h.dispatcher = NewDispatcher(i.resolved.Remap, i.resolved.Macros, h.writer)
		h.dispatcher.device = i.device
		h.dispatcher.metrics = i.opts.Metrics
		if i.opts.Config.Numlock.Guard {
			h.dispatcher.SetNumlock(i.opts.Numlock)
		}
		attached = append(attached, h)
	}
	return attached
}

// read pushes source events into channel, returns on read failure which also happens on source close
func (i *Injector) read(ctx context.Context, wg *sync.WaitGroup, src input.Source, events chan<- *evdev.InputEvent) {
	defer wg.Done()
	defer close(events)

	for {
		ev, err := src.ReadOne()
		if err != nil {
			if ctx.Err() == nil {
				log.Info(fmt.Sprintf("reading events failed: %v", err), i.logFields(logger.Warning, zap.String("path", src.Path()))...)
			}
			return
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (i *Injector) forward(ctx context.Context, h *handle, events <-chan *evdev.InputEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			i.handleEvent(ctx, h, ev)
		}
	}
}

func (i *Injector) handleEvent(ctx context.Context, h *handle, ev *evdev.InputEvent) {
	if ev.Type == evdev.EV_SYN {
		return
	}

	if h.converter != nil && ev.Type == evdev.EV_ABS {
		if h.converter.Feed(ev) {
			return
		}
		// virtual device does not declare absolute axes
		if !i.resolved.Has(ev.Type, ev.Code) {
			return
		}
	}

	if !i.resolved.Has(ev.Type, ev.Code) {
		log.Info(fmt.Sprintf("Forwarding %s", ev), i.logFields(logger.Forward)...)
		i.opts.Metrics.forwarded(i.device)
		err := h.writer.Write(ev.Type, ev.Code, ev.Value)
		if err != nil {
			log.Info(fmt.Sprintf("failed to write event: %v", err), i.logFields(logger.Warning)...)
		}
		return
	}

	if ev.Type == evdev.EV_ABS {
		// hats behave like buttons
		value := int32(0)
		if ev.Value != 0 {
			value = 1
		}
		ev = &evdev.InputEvent{Time: ev.Time, Type: evdev.EV_KEY, Code: ev.Code, Value: value}
	}

	h.dispatcher.HandleKeycode(ctx, ev)
}

func (i *Injector) releaseSource(src input.Source) {
	err := src.Ungrab()
	if err != nil {
		log.Info(fmt.Sprintf("ungrab failed: %v", err), i.logFields(logger.Debug, zap.String("path", src.Path()))...)
	}
	err = src.Close()
	if err != nil {
		log.Info(fmt.Sprintf("closing device failed: %v", err), i.logFields(logger.Debug, zap.String("path", src.Path()))...)
	}
}

func (i *Injector) release(handles []*handle) {
	for _, h := range handles {
		i.releaseSource(h.source)
		err := h.sink.Close()
		if err != nil {
			log.Info(fmt.Sprintf("closing virtual device failed: %v", err), i.logFields(logger.Debug)...)
		}
	}
}

// sinkWriter follows every event with SYN_REPORT, it is shared between forwarding loop, macros and converter
type sinkWriter struct {
	mu   sync.Mutex
	sink input.Sink
}

func (w *sinkWriter) Write(t evdev.EvType, c evdev.EvCode, value int32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.sink.WriteOne(&evdev.InputEvent{Type: t, Code: c, Value: value})
	if err != nil {
		return err
	}
	return w.sink.WriteOne(&evdev.InputEvent{Type: evdev.EV_SYN, Code: evdev.SYN_REPORT, Value: 0})
}
