package injector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gethiox/keymapper/internal/pkg/macro"
	"github.com/gethiox/keymapper/internal/pkg/symbols"
	"github.com/holoplot/go-evdev"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(code evdev.EvCode, value int32) *evdev.InputEvent {
	return &evdev.InputEvent{Type: evdev.EV_KEY, Code: code, Value: value}
}

func parseMacro(t *testing.T, source string, registry *symbols.Registry) *macro.Macro {
	t.Helper()
	m, err := macro.Parse(source, macro.Options{Registry: registry, KeystrokeDelay: time.Millisecond * 10})
	require.NoError(t, err)
	return m
}

func TestHandleKeycode(t *testing.T) {
	w := &recorder{}
	d := NewDispatcher(map[evdev.EvCode]evdev.EvCode{1: 101, 2: 102}, nil, w)

	ctx := context.Background()
	d.HandleKeycode(ctx, key(1, 1))
	d.HandleKeycode(ctx, key(3, 1))
	d.HandleKeycode(ctx, key(2, 1))

	assert.Equal(t, []event{
		{evdev.EV_KEY, 101, 1},
		{evdev.EV_KEY, 3, 1},
		{evdev.EV_KEY, 102, 1},
	}, w.history())
}

func TestHandleKeycodeKeepsValueAndType(t *testing.T) {
	w := &recorder{}
	d := NewDispatcher(map[evdev.EvCode]evdev.EvCode{evdev.KEY_A: evdev.KEY_B}, nil, w)

	ctx := context.Background()
	d.HandleKeycode(ctx, key(evdev.KEY_A, 1))
	d.HandleKeycode(ctx, key(evdev.KEY_A, 2))
	d.HandleKeycode(ctx, key(evdev.KEY_A, 0))
	d.HandleKeycode(ctx, &evdev.InputEvent{Type: evdev.EV_MSC, Code: evdev.MSC_SCAN, Value: 458756})

	assert.Equal(t, []event{
		{evdev.EV_KEY, evdev.KEY_B, 1},
		{evdev.EV_KEY, evdev.KEY_B, 2},
		{evdev.EV_KEY, evdev.KEY_B, 0},
		{evdev.EV_MSC, evdev.MSC_SCAN, 458756},
	}, w.history())
}

func TestHandleKeycodeWithoutWriter(t *testing.T) {
	d := NewDispatcher(map[evdev.EvCode]evdev.EvCode{1: 101}, nil, nil)
	assert.NotPanics(t, func() {
		d.HandleKeycode(context.Background(), key(1, 1))
		d.HandleKeycode(context.Background(), key(5, 1))
	})
}

func TestHandleKeycodeMacro(t *testing.T) {
	registry := symbols.New(map[string]evdev.EvCode{"a": 100, "b": 101})

	macros := map[evdev.EvCode]*macro.Macro{
		1: parseMacro(t, "k(a)", registry),
		2: parseMacro(t, "r(5, k(b))", registry),
	}

	var mu sync.Mutex
	var history [][2]int32
	d := NewDispatcher(nil, macros, nil)
	d.SetMacroHandler(func(code evdev.EvCode, value int32) {
		mu.Lock()
		defer mu.Unlock()
		history = append(history, [2]int32{int32(code), value})
	})

	start := time.Now()
	d.HandleKeycode(context.Background(), key(1, 1))
	d.HandleKeycode(context.Background(), key(2, 1))
	// both macros are running in background
	assert.Less(t, time.Since(start), time.Millisecond*50)

	d.Wait()

	assert.Len(t, history, 12)
	assert.Contains(t, history, [2]int32{100, 1})
	assert.Contains(t, history, [2]int32{100, 0})
	assert.Contains(t, history, [2]int32{101, 1})
	assert.Contains(t, history, [2]int32{101, 0})
}

func TestMacroFiresOnPressOnly(t *testing.T) {
	registry := symbols.New(map[string]evdev.EvCode{"a": 100})
	w := &recorder{}
	d := NewDispatcher(
		map[evdev.EvCode]evdev.EvCode{1: 50},
		map[evdev.EvCode]*macro.Macro{1: parseMacro(t, "k(a)", registry)},
		w,
	)

	ctx := context.Background()
	d.HandleKeycode(ctx, key(1, 2))
	d.HandleKeycode(ctx, key(1, 0))
	d.Wait()
	assert.Empty(t, w.history())

	// macro table has precedence over remapping
	d.HandleKeycode(ctx, key(1, 1))
	d.Wait()
	assert.Equal(t, []event{
		{evdev.EV_KEY, 100, 1},
		{evdev.EV_KEY, 100, 0},
	}, w.history())
}

func TestMacroCancelledWithContext(t *testing.T) {
	registry := symbols.New(map[string]evdev.EvCode{"a": 100})
	w := &recorder{}
	d := NewDispatcher(nil, map[evdev.EvCode]*macro.Macro{1: parseMacro(t, "w(1000).k(a)", registry)}, w)

	ctx, cancel := context.WithCancel(context.Background())
	d.HandleKeycode(ctx, key(1, 1))
	cancel()

	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Millisecond * 500):
		t.Fatal("macro did not stop after cancellation")
	}
	assert.Empty(t, w.history())
}

func TestMacroNumlockGuard(t *testing.T) {
	registry := symbols.New(map[string]evdev.EvCode{"a": 100})
	ind := &fakeIndicator{on: true}

	d := NewDispatcher(nil, map[evdev.EvCode]*macro.Macro{1: parseMacro(t, "k(a)", registry)}, nil)
	d.SetNumlock(ind)
	d.SetMacroHandler(func(code evdev.EvCode, value int32) {
		if value == 1 {
			_ = ind.Toggle()
		}
	})

	d.HandleKeycode(context.Background(), key(1, 1))
	d.Wait()

	assert.True(t, ind.on)
	assert.Equal(t, 2, ind.toggles)
}

func TestDispatcherMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	d := NewDispatcher(map[evdev.EvCode]evdev.EvCode{1: 101}, nil, &recorder{})
	d.metrics = m
	d.device = "keyboard"

	ctx := context.Background()
	d.HandleKeycode(ctx, key(1, 1))
	d.HandleKeycode(ctx, key(1, 0))
	d.HandleKeycode(ctx, key(2, 1))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Remapped.WithLabelValues("keyboard")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Forwarded.WithLabelValues("keyboard")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Macros.WithLabelValues("keyboard")))
}
