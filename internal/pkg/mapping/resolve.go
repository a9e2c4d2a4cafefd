package mapping

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gethiox/keymapper/internal/pkg/logger"
	"github.com/gethiox/keymapper/internal/pkg/macro"
	"github.com/gethiox/keymapper/internal/pkg/symbols"
	"github.com/holoplot/go-evdev"
	"go.uber.org/zap"
)

// Resolved holds tables ready to be used by the injector, every rule is already validated
type Resolved struct {
	Remap  map[evdev.EvCode]evdev.EvCode
	Macros map[evdev.EvCode]*macro.Macro
	// Keys contains input identities of all usable rules
	Keys map[Key]struct{}
	// Dropped lists rules which could not be used, with the reason
	Dropped map[Key]error
}

// Targets returns every key code which may be emitted as a result of remapping or macros
func (r Resolved) Targets() []evdev.EvCode {
	set := make(map[evdev.EvCode]struct{})
	for _, target := range r.Remap {
		set[target] = struct{}{}
	}
	for _, m := range r.Macros {
		for _, code := range m.Capabilities() {
			set[code] = struct{}{}
		}
	}
	targets := make([]evdev.EvCode, 0, len(set))
	for code := range set {
		targets = append(targets, code)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets
}

// Has tells if given input event identity is handled by any rule
func (r Resolved) Has(t evdev.EvType, c evdev.EvCode) bool {
	_, ok := r.Keys[Key{Type: t, Code: c}]
	return ok
}

var (
	errUnsupportedType = errors.New("unsupported event type")
	errCodeConflict    = errors.New("code already used by another rule")
)

// Resolve turns names and macro sources into codes and macro trees.
// Rules with unknown names are dropped, malformed macro makes the whole mapping unusable.
func Resolve(m Mapping, opts macro.Options) (Resolved, error) {
	if opts.Registry == nil {
		opts.Registry = symbols.Default()
	}

	resolved := Resolved{
		Remap:   make(map[evdev.EvCode]evdev.EvCode),
		Macros:  make(map[evdev.EvCode]*macro.Macro),
		Keys:    make(map[Key]struct{}),
		Dropped: make(map[Key]error),
	}

	// tables are keyed by code alone, first usable rule in key order owns it
	owners := make(map[evdev.EvCode]Key)

	for _, key := range m.Keys() {
		output := m[key]

		if key.Type != evdev.EV_KEY && key.Type != evdev.EV_ABS {
			resolved.drop(key, fmt.Errorf("%w: %s", errUnsupportedType, evdev.TypeName(key.Type)))
			continue
		}
		if owner, ok := owners[key.Code]; ok {
			resolved.drop(key, fmt.Errorf("%w: %s", errCodeConflict, owner))
			continue
		}

		if macro.IsMacro(output) {
			parsed, err := macro.Parse(output, opts)
			if err != nil {
				if errors.Is(err, macro.ErrSyntax) {
					return Resolved{}, fmt.Errorf("%s: %w", key, err)
				}
				resolved.drop(key, err)
				continue
			}
			resolved.Macros[key.Code] = parsed
			resolved.Keys[key] = struct{}{}
			owners[key.Code] = key
			continue
		}

		target, err := opts.Registry.Resolve(output)
		if err != nil {
			resolved.drop(key, err)
			continue
		}
		resolved.Remap[key.Code] = target
		resolved.Keys[key] = struct{}{}
		owners[key.Code] = key
	}

	return resolved, nil
}

func (r Resolved) drop(key Key, err error) {
	r.Dropped[key] = err
	log.Info(fmt.Sprintf("mapping rule dropped: %s", err), zap.String("rule", key.String()), logger.Warning)
}
