package injector

import (
	"context"
	"testing"
	"time"

	"github.com/gethiox/keymapper/internal/pkg/input"
	"github.com/gethiox/keymapper/internal/pkg/macro"
	"github.com/gethiox/keymapper/internal/pkg/mapping"
	"github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func device(name string, events ...string) input.Device {
	return input.Device{
		Name:     name,
		Handlers: []input.DeviceInfo{{Name: name, Handlers: events}},
	}
}

func TestController(t *testing.T) {
	src := keyboardSource()
	sys := newFakeSystem(src)
	c := NewController(sys.options(testConfig()), nil)

	dev := device("keyboard", "kbd", "event10")
	require.NoError(t, c.StartInjecting(context.Background(), dev, keyMapping(10, "a")))
	require.Eventually(t, func() bool {
		state, ok := c.State("keyboard")
		return ok && state == Running
	}, time.Second, time.Millisecond)

	assert.True(t, c.IsInjecting("keyboard"))
	assert.False(t, c.IsInjecting("mouse"))
	assert.Equal(t, []string{"keyboard"}, c.Devices())

	// arbitrary payload is ignored
	assert.True(t, c.Send("keyboard", map[string]int{"foo": 1}))
	time.Sleep(time.Millisecond * 50)
	assert.True(t, c.IsInjecting("keyboard"))

	assert.False(t, c.Send("mouse", "stop"))
	assert.True(t, c.Send("keyboard", "stop"))
	require.Eventually(t, func() bool { return !c.IsInjecting("keyboard") }, time.Second, time.Millisecond)

	state, ok := c.State("keyboard")
	assert.True(t, ok)
	assert.Equal(t, Stopped, state)

	assert.True(t, c.StopInjecting("keyboard"))
	assert.False(t, c.StopInjecting("keyboard"))
	assert.Empty(t, c.Devices())
}

func TestControllerRejectsMalformedMacro(t *testing.T) {
	src := keyboardSource()
	sys := newFakeSystem(src)
	c := NewController(sys.options(testConfig()), nil)

	err := c.StartInjecting(context.Background(), device("keyboard", "event10"), keyMapping(10, "k(a))"))
	assert.ErrorIs(t, err, macro.ErrSyntax)
	assert.Empty(t, c.Devices())

	grabs, _, _ := src.counters()
	assert.Equal(t, 0, grabs)
}

func TestControllerReplacesInjector(t *testing.T) {
	src := keyboardSource()
	sys := newFakeSystem(src)
	c := NewController(sys.options(testConfig()), nil)
	dev := device("keyboard", "event10")

	require.NoError(t, c.StartInjecting(context.Background(), dev, keyMapping(10, "a")))
	require.Eventually(t, func() bool { return c.IsInjecting("keyboard") && sys.sinkCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.StartInjecting(context.Background(), dev, keyMapping(evdev.KEY_A, "b")))
	assert.Equal(t, 1, sys.sink(0).closeCount())
	assert.Equal(t, []string{"keyboard"}, c.Devices())

	c.StopAll()
	assert.Empty(t, c.Devices())
	assert.False(t, c.IsInjecting("keyboard"))
}

func TestControllerStopAll(t *testing.T) {
	kbd, pad := keyboardSource(), gamepadSource()
	sys := newFakeSystem(kbd, pad)
	c := NewController(sys.options(testConfig()), nil)

	require.NoError(t, c.StartInjecting(context.Background(), device("keyboard", "event10"), keyMapping(10, "a")))
	require.NoError(t, c.StartInjecting(context.Background(), device("gamepad", "event30", "js0"), mapping.Mapping{}))
	assert.Equal(t, []string{"gamepad", "keyboard"}, c.Devices())

	require.Eventually(t, func() bool { return c.IsInjecting("gamepad") && c.IsInjecting("keyboard") }, time.Second, time.Millisecond)

	c.StopAll()
	assert.Empty(t, c.Devices())

	// every device is released before StopAll returns
	for _, src := range []*fakeSource{kbd, pad} {
		grabs, ungrabs, closes := src.counters()
		assert.Equal(t, 1, grabs, src.path)
		assert.Equal(t, 1, ungrabs, src.path)
		assert.Equal(t, 1, closes, src.path)
	}
	assert.Equal(t, 2, sys.sinkCount())
	assert.Equal(t, 1, sys.sink(0).closeCount())
	assert.Equal(t, 1, sys.sink(1).closeCount())
}
