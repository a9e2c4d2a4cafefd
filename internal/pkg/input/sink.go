package input

import (
	"fmt"

	"github.com/holoplot/go-evdev"
)

// uinput refuses names longer than UINPUT_MAX_NAME_SIZE
const maxNameLength = 79

const busVirtual = 0x06

// Sink is a writable virtual event device
type Sink interface {
	WriteOne(event *evdev.InputEvent) error
	Close() error
}

// SinkFactory creates virtual device with given name and capabilities
type SinkFactory func(name string, caps map[evdev.EvType][]evdev.EvCode) (Sink, error)

// SinkName returns name of the virtual device created for given source device name
func SinkName(device string) string {
	name := device + VirtualSuffix
	if len(name) > maxNameLength {
		name = device[:maxNameLength-len(VirtualSuffix)] + VirtualSuffix
	}
	return name
}

// CreateSink creates uinput device
func CreateSink(name string, caps map[evdev.EvType][]evdev.EvCode) (Sink, error) {
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	dev, err := evdev.CreateDevice(name, evdev.InputID{
		BusType: busVirtual,
		Vendor:  0x0001,
		Product: 0x0001,
		Version: 1,
	}, caps)
	if err != nil {
		return nil, fmt.Errorf("creating virtual device failed: %w", err)
	}
	return dev, nil
}
