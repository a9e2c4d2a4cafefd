package input

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"

	"github.com/holoplot/go-evdev"
)

type PhysicalID string

// Bitmap is a capability bitmap as reported by the kernel, least significant word first
type Bitmap []uint64

func (b Bitmap) Has(bit uint) bool {
	word := int(bit / wordSize)
	if word >= len(b) {
		return false
	}
	return b[word]&(1<<(bit%wordSize)) != 0
}

// Bits returns positions of all set bits in ascending order
func (b Bitmap) Bits() []uint {
	var out []uint
	for w, word := range b {
		for word != 0 {
			i := uint(bits.TrailingZeros64(word))
			out = append(out, uint(w)*wordSize+i)
			word &^= 1 << i
		}
	}
	return out
}

// DeviceInfo contains information of every reported event device
// it is supposed to be created by unmarshal function only
type DeviceInfo struct {
	ID       InputID  // ID of the device
	Name     string   // name of the device
	Phys     string   // physical path to the device in the system hierarchy
	Sysfs    string   // sysfs path
	Uniq     string   // unique identification code for the device (if device has it)
	Handlers []string // list of input handlers associated with the device, like "kbd", "event3"
	Bitmaps  map[string]Bitmap
}

type InputID struct {
	Bus     uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

func (i *InputID) String() string {
	return fmt.Sprintf("0x%04x 0x%04x 0x%04x 0x%04x", i.Bus, i.Vendor, i.Product, i.Version)
}

// Event returns event name, like "event0" for /dev/input/event0
func (d *DeviceInfo) Event() string {
	for _, handler := range d.Handlers {
		if strings.HasPrefix(handler, "event") {
			return handler
		}
	}
	return ""
}

// EventPath returns a /dev/input/event filepath for button presses
func (d *DeviceInfo) EventPath() string {
	event := d.Event()
	if event == "" {
		return ""
	}
	return fmt.Sprintf("/dev/input/%s", event)
}

// bitmapNames binds event types with bitmap labels of /proc/bus/input/devices
var bitmapNames = map[evdev.EvType]string{
	evdev.EV_KEY: "KEY",
	evdev.EV_REL: "REL",
	evdev.EV_ABS: "ABS",
	evdev.EV_MSC: "MSC",
	evdev.EV_SW:  "SW",
	evdev.EV_LED: "LED",
	evdev.EV_SND: "SND",
	evdev.EV_FF:  "FF",
}

// Capabilities decodes reported bitmaps into event types and codes
func (d *DeviceInfo) Capabilities() map[evdev.EvType][]evdev.EvCode {
	caps := make(map[evdev.EvType][]evdev.EvCode)
	for _, t := range d.Bitmaps["EV"].Bits() {
		evType := evdev.EvType(t)
		name, ok := bitmapNames[evType]
		if !ok {
			caps[evType] = nil
			continue
		}
		codes := make([]evdev.EvCode, 0)
		for _, c := range d.Bitmaps[name].Bits() {
			codes = append(codes, evdev.EvCode(c))
		}
		caps[evType] = codes
	}
	return caps
}

// PhysicalUUID returns unique UUID based on connection of given USB port
// The main usage is to identify groups of handlers that represent one physical device
func (d *DeviceInfo) PhysicalUUID() PhysicalID {
	phys := strings.Split(d.Phys, "/")
	if phys[0] == "" {
		// virtual devices do not report physical path
		return PhysicalID("virtual:" + d.Name)
	}
	return PhysicalID(phys[0])
}

func hasCode(codes []evdev.EvCode, code evdev.EvCode) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// IsGamepad tells if capabilities describe a joystick capable device, touchpads and tablets are excluded
func IsGamepad(caps map[evdev.EvType][]evdev.EvCode) bool {
	abs := caps[evdev.EV_ABS]
	if !hasCode(abs, evdev.ABS_X) || !hasCode(abs, evdev.ABS_Y) {
		return false
	}
	if hasCode(abs, evdev.ABS_MT_POSITION_X) {
		return false
	}
	keys := caps[evdev.EV_KEY]
	if hasCode(keys, evdev.BTN_TOOL_FINGER) || hasCode(keys, evdev.BTN_TOOL_PEN) {
		return false
	}
	return true
}

// SortedTypes returns capability event types in ascending order
func SortedTypes(caps map[evdev.EvType][]evdev.EvCode) []evdev.EvType {
	types := make([]evdev.EvType, 0, len(caps))
	for t := range caps {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
