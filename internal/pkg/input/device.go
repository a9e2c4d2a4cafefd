package input

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gethiox/keymapper/internal/pkg/logger"
	"github.com/holoplot/go-evdev"
)

var log = logger.GetLogger()

// Collects all separate device-info handlers together for building one logical device

type DeviceType int
type DeviceID string

// Generic device types
const (
	UnknownDevice  DeviceType = iota
	KeyboardDevice            // keyboard, including keyboard with integrated mouse
	MouseDevice               // mouse device only
	GamepadDevice             // joystick device, may contain keyboard and mouse events
)

// VirtualSuffix is appended to names of devices created by the injector
const VirtualSuffix = " mapped"

func (e DeviceType) String() string {
	switch e {
	case KeyboardDevice:
		return "Keyboard"
	case MouseDevice:
		return "Mouse"
	case GamepadDevice:
		return "Gamepad"
	default:
		return "Unknown"
	}
}

func handlerType(info DeviceInfo) DeviceType {
	caps := info.Capabilities()
	keys := caps[evdev.EV_KEY]
	switch {
	case IsGamepad(caps) && (hasCode(keys, evdev.BTN_GAMEPAD) || hasCode(keys, evdev.BTN_JOYSTICK)):
		return GamepadDevice
	case hasCode(keys, evdev.KEY_A) && hasCode(keys, evdev.KEY_Z):
		return KeyboardDevice
	case hasCode(caps[evdev.EV_REL], evdev.REL_X) && hasCode(keys, evdev.BTN_LEFT):
		return MouseDevice
	}
	for _, h := range info.Handlers {
		if strings.HasPrefix(h, "js") {
			return GamepadDevice
		}
	}
	return UnknownDevice
}

// DetermineDeviceType picks the most significant type among device handlers
func DetermineDeviceType(handlers []DeviceInfo) DeviceType {
	found := make(map[DeviceType]bool)
	for _, h := range handlers {
		found[handlerType(h)] = true
	}
	switch {
	case found[GamepadDevice]:
		return GamepadDevice
	case found[KeyboardDevice]:
		return KeyboardDevice
	case found[MouseDevice]:
		return MouseDevice
	default:
		return UnknownDevice
	}
}

// Normalize processes all DeviceInfo list and returns generic devices with its underlying DeviceInfo handlers.
// Handlers without event node and devices created by this program are skipped.
func Normalize(deviceInfos []DeviceInfo) []Device {
	var collection = make(map[PhysicalID][]DeviceInfo)
	var order []PhysicalID

	for _, di := range deviceInfos {
		if di.Event() == "" || IsVirtual(di.Name) {
			continue
		}
		key := di.PhysicalUUID()
		if _, ok := collection[key]; !ok {
			order = append(order, key)
		}
		collection[key] = append(collection[key], di)
	}

	var devices = make([]Device, 0, len(order))

	for _, devPhys := range order {
		dis := collection[devPhys]
		var dev = Device{
			ID:       dis[0].ID,
			Handlers: dis,
		}

		for _, di := range dis {
			switch {
			case dev.Name == "":
				dev.Name = di.Name
			case len(di.Name) < len(dev.Name):
				dev.Name = di.Name
			}

			if di.Uniq != "" && dev.Uniq == "" {
				dev.Uniq = di.Uniq
			}
		}

		dev.DeviceType = DetermineDeviceType(dev.Handlers)
		dev.Phys = string(devPhys)
		devices = append(devices, dev)
	}

	sort.SliceStable(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices
}

// IsVirtual tells if device name belongs to a device created by this program
func IsVirtual(name string) bool {
	return strings.HasSuffix(name, VirtualSuffix) || strings.HasPrefix(name, "keymapper ")
}

// Device is a representation of singular hardware device, it keeps all underlying DeviceInfo handlers
type Device struct {
	ID   InputID
	Name string
	Uniq string
	// Phys is a common part of Handlers Phys
	// for example "usb-20980000.usb-1.4/input0" will be used as "usb-20980000.usb-1.4"
	Phys string

	DeviceType DeviceType
	Handlers   []DeviceInfo
}

func (d *Device) String() string {
	return fmt.Sprintf(
		"[%s], \"%s\", %d handlers (0x%04x, 0x%04x, 0x%04x, 0x%04x, \"%s\")",
		d.DeviceType, d.Name, len(d.Handlers), d.ID.Bus, d.ID.Vendor, d.ID.Product, d.ID.Version, d.Uniq,
	)
}

// Paths returns event device paths of all handlers
func (d *Device) Paths() []string {
	paths := make([]string, 0, len(d.Handlers))
	for _, h := range d.Handlers {
		if p := h.EventPath(); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// DeviceID returns unique UUID for every device as much as possible, regardless of its connection source.
// Vast amount of devices (especially keyboards) doesn't provide unique identifiers, so often it is
// impossible to distinguish between two the very same types of devices.
func (d *Device) DeviceID() DeviceID {
	s := fmt.Sprintf("%04x%04x%04x%04x%s", d.ID.Bus, d.ID.Vendor, d.ID.Product, d.ID.Version, d.Uniq)
	return DeviceID(s)
}

func (d *Device) PhysicalUUID() PhysicalID {
	return PhysicalID(d.Phys)
}
