package symbols

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/holoplot/go-evdev"
)

var ErrUnknownSymbol = errors.New("unknown symbol")

// Registry is an immutable, case-insensitive name to key code association
type Registry struct {
	codes map[string]evdev.EvCode
	names map[evdev.EvCode]string
}

func canonical(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func New(entries map[string]evdev.EvCode) *Registry {
	r := &Registry{
		codes: make(map[string]evdev.EvCode, len(entries)),
		names: make(map[evdev.EvCode]string, len(entries)),
	}
	for name, code := range entries {
		r.codes[canonical(name)] = code
	}
	r.indexNames()
	return r
}

// indexNames prepares reverse lookup, evdev names are preferred over aliases
func (r *Registry) indexNames() {
	for name, code := range r.codes {
		current, ok := r.names[code]
		switch {
		case !ok:
			r.names[code] = name
		case isEvdevName(name) && !isEvdevName(current):
			r.names[code] = name
		case isEvdevName(name) == isEvdevName(current) && name < current:
			r.names[code] = name
		}
	}
}

func isEvdevName(name string) bool {
	return strings.HasPrefix(name, "key_") || strings.HasPrefix(name, "btn_")
}

// aliases follows X keysym naming, so mappings written for xmodmap based setups keep working
var aliases = map[string]evdev.EvCode{
	"shift_l":          evdev.KEY_LEFTSHIFT,
	"shift_r":          evdev.KEY_RIGHTSHIFT,
	"control_l":        evdev.KEY_LEFTCTRL,
	"control_r":        evdev.KEY_RIGHTCTRL,
	"alt_l":            evdev.KEY_LEFTALT,
	"alt_r":            evdev.KEY_RIGHTALT,
	"super_l":          evdev.KEY_LEFTMETA,
	"super_r":          evdev.KEY_RIGHTMETA,
	"iso_level3_shift": evdev.KEY_RIGHTALT,
	"return":           evdev.KEY_ENTER,
	"escape":           evdev.KEY_ESC,
	"caps_lock":        evdev.KEY_CAPSLOCK,
	"num_lock":         evdev.KEY_NUMLOCK,
	"scroll_lock":      evdev.KEY_SCROLLLOCK,
	"page_up":          evdev.KEY_PAGEUP,
	"page_down":        evdev.KEY_PAGEDOWN,
	"prior":            evdev.KEY_PAGEUP,
	"next":             evdev.KEY_PAGEDOWN,
	"print":            evdev.KEY_SYSRQ,
	"period":           evdev.KEY_DOT,
	"bracketleft":      evdev.KEY_LEFTBRACE,
	"bracketright":     evdev.KEY_RIGHTBRACE,
	"kp_enter":         evdev.KEY_KPENTER,
	"kp_add":           evdev.KEY_KPPLUS,
	"kp_subtract":      evdev.KEY_KPMINUS,
	"kp_multiply":      evdev.KEY_KPASTERISK,
	"kp_divide":        evdev.KEY_KPSLASH,
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns registry built from kernel key names, stripped key names ("q" for KEY_Q) and X keysym aliases.
// Button names are available only in full form ("btn_left"), so "left" stays an arrow key.
func Default() *Registry {
	defaultOnce.Do(func() {
		entries := make(map[string]evdev.EvCode, len(evdev.KEYFromString)*2+len(aliases))
		for name, code := range aliases {
			entries[name] = code
		}
		for name, code := range evdev.KEYFromString {
			if strings.HasSuffix(name, "_MAX") || strings.HasSuffix(name, "_CNT") {
				continue
			}
			if strings.HasPrefix(name, "KEY_") {
				entries[strings.TrimPrefix(name, "KEY_")] = code
			}
		}
		for name, code := range evdev.KEYFromString {
			if strings.HasSuffix(name, "_MAX") || strings.HasSuffix(name, "_CNT") {
				continue
			}
			entries[name] = code
		}
		defaultRegistry = New(entries)
	})
	return defaultRegistry
}

// Lookup resolves symbolic name, second value is false if name is not known
func (r *Registry) Lookup(name string) (evdev.EvCode, bool) {
	code, ok := r.codes[canonical(name)]
	return code, ok
}

// Resolve is like Lookup but reports missing names with ErrUnknownSymbol
func (r *Registry) Resolve(name string) (evdev.EvCode, error) {
	code, ok := r.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: \"%s\"", ErrUnknownSymbol, strings.TrimSpace(name))
	}
	return code, nil
}

// Name returns preferred name of given code, numeric representation is used for unknown codes
func (r *Registry) Name(code evdev.EvCode) string {
	name, ok := r.names[code]
	if !ok {
		return fmt.Sprintf("code_%d", code)
	}
	return name
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.codes))
	for name := range r.codes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	return len(r.codes)
}

// With returns new registry extended by extra entries, existing names are overwritten
func (r *Registry) With(extra map[string]evdev.EvCode) *Registry {
	entries := make(map[string]evdev.EvCode, len(r.codes)+len(extra))
	for name, code := range r.codes {
		entries[name] = code
	}
	for name, code := range extra {
		entries[name] = code
	}
	return New(entries)
}
