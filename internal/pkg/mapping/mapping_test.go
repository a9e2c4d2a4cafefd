package mapping

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gethiox/keymapper/internal/pkg/logger"
	"github.com/gethiox/keymapper/internal/pkg/macro"
	"github.com/gethiox/keymapper/internal/pkg/symbols"
	"github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Discard()
	os.Exit(m.Run())
}

func TestParseKey(t *testing.T) {
	for _, tc := range []struct {
		input    string
		expected Key
		err      bool
	}{
		{input: "KEY_A", expected: Key{evdev.EV_KEY, evdev.KEY_A}},
		{input: "key_capslock", expected: Key{evdev.EV_KEY, evdev.KEY_CAPSLOCK}},
		{input: "BTN_LEFT", expected: Key{evdev.EV_KEY, evdev.BTN_LEFT}},
		{input: "ABS_HAT0X", expected: Key{evdev.EV_ABS, evdev.ABS_HAT0X}},
		{input: "REL_WHEEL", expected: Key{evdev.EV_REL, evdev.REL_WHEEL}},
		{input: "x1e", expected: Key{evdev.EV_KEY, 0x1e}},
		{input: "1,30", expected: Key{evdev.EV_KEY, 30}},
		{input: " 3, 16 ", expected: Key{evdev.EV_ABS, 16}},
		{input: "xzz", err: true},
		{input: "1,2,3", err: true},
		{input: "a,30", err: true},
		{input: "KEY_NOPE", err: true},
		{input: "SW_LID", err: true},
	} {
		t.Run(tc.input, func(t *testing.T) {
			key, err := ParseKey(tc.input)
			if tc.err {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidKey))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, key)
		})
	}
}

func TestMappingKeysOrder(t *testing.T) {
	m := Mapping{
		{evdev.EV_ABS, evdev.ABS_HAT0X}: "a",
		{evdev.EV_KEY, evdev.KEY_B}:     "c",
		{evdev.EV_KEY, evdev.KEY_A}:     "b",
	}
	assert.Equal(t, []Key{
		{evdev.EV_KEY, evdev.KEY_A},
		{evdev.EV_KEY, evdev.KEY_B},
		{evdev.EV_ABS, evdev.ABS_HAT0X},
	}, m.Keys())
}

const tomlMapping = `
[device]
name = "Dummy Keyboard"

[keys]
KEY_CAPSLOCK = "KEY_ESC"
KEY_A = "k(b).k(c)"
"1,48" = "shift_l"
ABS_HAT0X = "a"
`

const yamlMapping = `
device:
  name: Dummy Gamepad
keys:
  BTN_SOUTH: btn_left
  BTN_EAST: r(2, k(a))
`

func TestParseTOML(t *testing.T) {
	f, err := ParseTOML([]byte(tomlMapping))
	require.NoError(t, err)

	assert.Equal(t, "Dummy Keyboard", f.Device)
	assert.Equal(t, Mapping{
		{evdev.EV_KEY, evdev.KEY_CAPSLOCK}: "KEY_ESC",
		{evdev.EV_KEY, evdev.KEY_A}:        "k(b).k(c)",
		{evdev.EV_KEY, evdev.KEY_B}:        "shift_l",
		{evdev.EV_ABS, evdev.ABS_HAT0X}:    "a",
	}, f.Mapping)
}

func TestParseTOMLErrors(t *testing.T) {
	for name, data := range map[string]string{
		"unknown field":  "[device]\nname = \"x\"\ncolor = \"red\"\n",
		"missing device": "[keys]\nKEY_A = \"b\"\n",
		"bad key":        "[device]\nname = \"x\"\n[keys]\nKEY_NOPE = \"b\"\n",
		"duplicate key":  "[device]\nname = \"x\"\n[keys]\nKEY_A = \"b\"\nx1e = \"c\"\n",
		"broken toml":    "[device\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTOML([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestParseYAML(t *testing.T) {
	f, err := ParseYAML([]byte(yamlMapping))
	require.NoError(t, err)

	assert.Equal(t, "Dummy Gamepad", f.Device)
	assert.Equal(t, Mapping{
		{evdev.EV_KEY, evdev.BTN_SOUTH}: "btn_left",
		{evdev.EV_KEY, evdev.BTN_EAST}:  "r(2, k(a))",
	}, f.Mapping)

	_, err = ParseYAML([]byte("device:\n  name: x\nextra: 1\n"))
	assert.Error(t, err)
}

func TestLoadDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "gamepads"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "keyboard.toml"), []byte(tomlMapping), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "gamepads", "pad.yaml"), []byte(yamlMapping), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.toml"), []byte("[device\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "zz_duplicate.toml"), []byte(tomlMapping), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("ignored"), 0o644))

	c, err := LoadDirectory(root)
	require.NoError(t, err)
	assert.Len(t, c, 2)

	f, ok := c.Find("Dummy Keyboard")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "keyboard.toml"), f.Path)

	f, ok = c.Find("Dummy Gamepad")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "gamepads", "pad.yaml"), f.Path)

	_, ok = c.Find("Other")
	assert.False(t, ok)

	_, err = LoadDirectory(filepath.Join(root, "missing"))
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	m := Mapping{
		{evdev.EV_KEY, 1}:                  "b",
		{evdev.EV_KEY, 2}:                  "k(a).k(KEY_C)",
		{evdev.EV_KEY, 3}:                  "not_a_key",
		{evdev.EV_KEY, 4}:                  "k(not_a_key)",
		{evdev.EV_ABS, evdev.ABS_HAT0X}:    "a",
		{evdev.EV_REL, evdev.REL_WHEEL}:    "a",
		{evdev.EV_KEY, evdev.KEY_CAPSLOCK}: "Escape",
	}

	r, err := Resolve(m, macro.Options{})
	require.NoError(t, err)

	assert.Equal(t, map[evdev.EvCode]evdev.EvCode{
		1:                  evdev.KEY_B,
		evdev.ABS_HAT0X:    evdev.KEY_A,
		evdev.KEY_CAPSLOCK: evdev.KEY_ESC,
	}, r.Remap)
	require.Contains(t, r.Macros, evdev.EvCode(2))
	assert.Equal(t, []evdev.EvCode{evdev.KEY_A, evdev.KEY_C}, r.Macros[2].Capabilities())

	assert.True(t, r.Has(evdev.EV_KEY, 1))
	assert.True(t, r.Has(evdev.EV_KEY, 2))
	assert.True(t, r.Has(evdev.EV_ABS, evdev.ABS_HAT0X))
	assert.False(t, r.Has(evdev.EV_KEY, 3))
	assert.False(t, r.Has(evdev.EV_KEY, 4))
	assert.False(t, r.Has(evdev.EV_REL, evdev.REL_WHEEL))

	assert.Len(t, r.Dropped, 3)
	assert.True(t, errors.Is(r.Dropped[Key{evdev.EV_KEY, 3}], symbols.ErrUnknownSymbol))
	assert.True(t, errors.Is(r.Dropped[Key{evdev.EV_KEY, 4}], macro.ErrUnknownSymbol))
	assert.True(t, errors.Is(r.Dropped[Key{evdev.EV_REL, evdev.REL_WHEEL}], errUnsupportedType))

	assert.Equal(t, []evdev.EvCode{evdev.KEY_ESC, evdev.KEY_A, evdev.KEY_C, evdev.KEY_B}, r.Targets())
}

func TestResolveCodeConflict(t *testing.T) {
	// KEY_Q and ABS_HAT0X share code 16
	m := Mapping{
		{evdev.EV_KEY, evdev.KEY_Q}:     "a",
		{evdev.EV_ABS, evdev.ABS_HAT0X}: "k(b)",
		{evdev.EV_KEY, evdev.KEY_W}:     "not_a_key",
		{evdev.EV_ABS, evdev.ABS_HAT0Y}: "c",
	}

	r, err := Resolve(m, macro.Options{})
	require.NoError(t, err)

	assert.Equal(t, map[evdev.EvCode]evdev.EvCode{
		evdev.KEY_Q:     evdev.KEY_A,
		evdev.ABS_HAT0Y: evdev.KEY_C,
	}, r.Remap)
	assert.Empty(t, r.Macros)

	assert.True(t, r.Has(evdev.EV_KEY, evdev.KEY_Q))
	assert.False(t, r.Has(evdev.EV_ABS, evdev.ABS_HAT0X))
	// dropped rule does not claim its code
	assert.True(t, r.Has(evdev.EV_ABS, evdev.ABS_HAT0Y))

	require.Len(t, r.Dropped, 2)
	assert.ErrorIs(t, r.Dropped[Key{evdev.EV_ABS, evdev.ABS_HAT0X}], errCodeConflict)
	assert.ErrorIs(t, r.Dropped[Key{evdev.EV_KEY, evdev.KEY_W}], symbols.ErrUnknownSymbol)
}

func TestResolveRejectsMalformedMacro(t *testing.T) {
	m := Mapping{
		{evdev.EV_KEY, 1}: "b",
		{evdev.EV_KEY, 2}: "k(a).r(2)",
	}
	_, err := Resolve(m, macro.Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, macro.ErrSyntax))
	assert.False(t, errors.Is(err, macro.ErrUnknownSymbol))
}

func TestResolveCustomRegistry(t *testing.T) {
	registry := symbols.New(map[string]evdev.EvCode{"a": 101})
	r, err := Resolve(Mapping{{evdev.EV_KEY, 1}: "A", {evdev.EV_KEY, 2}: "b"}, macro.Options{Registry: registry})
	require.NoError(t, err)
	assert.Equal(t, map[evdev.EvCode]evdev.EvCode{1: 101}, r.Remap)
	assert.Len(t, r.Dropped, 1)
}

func TestDetectChanges(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	changes := DetectChanges(ctx, root)

	// watcher registration happens asynchronously
	time.Sleep(time.Millisecond * 100)

	path := filepath.Join(root, "keyboard.toml")
	require.NoError(t, os.WriteFile(path, []byte(tomlMapping), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ignored.txt"), []byte("x"), 0o644))

	select {
	case changed := <-changes:
		assert.Equal(t, path, changed)
	case <-time.After(time.Second * 2):
		t.Fatal("change not detected")
	}

	cancel()
	deadline := time.After(time.Second * 2)
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after cancellation")
		}
	}
}
