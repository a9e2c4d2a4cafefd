package injector

import (
	"sort"

	"github.com/holoplot/go-evdev"
)

// event types which are never declared on the virtual device
var excludedTypes = []evdev.EvType{
	evdev.EV_SYN,
	evdev.EV_FF,
	evdev.EV_FF_STATUS,
	evdev.EV_PWR,
	evdev.EV_REP,
	evdev.EV_LED,
	evdev.EV_SND,
}

// NegotiateCapabilities derives virtual device capabilities from the source device.
// targets are key codes emitted by remapping and macros.
// With absToRel absolute axes are replaced by relative pointer motion.
func NegotiateCapabilities(source map[evdev.EvType][]evdev.EvCode, targets []evdev.EvCode, absToRel bool) map[evdev.EvType][]evdev.EvCode {
	caps := make(map[evdev.EvType][]evdev.EvCode, len(source))
	for t, codes := range source {
		caps[t] = append([]evdev.EvCode(nil), codes...)
	}

	for _, t := range excludedTypes {
		delete(caps, t)
	}

	if absToRel {
		delete(caps, evdev.EV_ABS)
		caps[evdev.EV_REL] = merge(caps[evdev.EV_REL], evdev.REL_X, evdev.REL_Y)
	}

	if len(targets) > 0 {
		caps[evdev.EV_KEY] = merge(caps[evdev.EV_KEY], targets...)
	}

	// pointer-only virtual devices are not recognized as mice
	if absToRel && len(caps[evdev.EV_KEY]) == 0 {
		caps[evdev.EV_KEY] = []evdev.EvCode{evdev.BTN_LEFT}
	}

	return caps
}

// merge returns sorted union of codes without duplicates
func merge(codes []evdev.EvCode, extra ...evdev.EvCode) []evdev.EvCode {
	set := make(map[evdev.EvCode]struct{}, len(codes)+len(extra))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	for _, c := range extra {
		set[c] = struct{}{}
	}
	out := make([]evdev.EvCode, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
