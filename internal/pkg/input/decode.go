package input

import (
	"fmt"
	"math/bits"
	"os"
	"strconv"
	"strings"
)

// kernel prints bitmaps as a list of unsigned long words, most significant first
const wordSize = uint(bits.UintSize)

// GetHandlers returns a list of available input handlers in the system.
// Note: there is non-zero probability that returned list may be incomplete,
// no matter where they come from, either /proc/bus/input/devices or /dev/input listing has the same behavior.
// This is needed to be handled when user wants to have a complete group of handlers for given hardware device.
func GetHandlers() ([]DeviceInfo, error) {
	data, err := os.ReadFile("/proc/bus/input/devices")
	if err != nil {
		return nil, fmt.Errorf("cannot read input devices: %w", err)
	}

	return unmarshal(data)
}

func parseBitmap(s string) (Bitmap, error) {
	words := strings.Fields(s)
	bitmap := make(Bitmap, len(words))
	for i, w := range words {
		v, err := strconv.ParseUint(w, 16, int(wordSize))
		if err != nil {
			return nil, fmt.Errorf("hex decoding failed: %w", err)
		}
		bitmap[len(words)-1-i] = v
	}
	return bitmap, nil
}

func parseID(info string, id *InputID) error {
	for _, param := range strings.Fields(info) {
		fields := strings.SplitN(param, "=", 2)
		if len(fields) != 2 {
			return fmt.Errorf("malformed id field: \"%s\"", param)
		}
		v, err := strconv.ParseUint(fields[1], 16, 16)
		if err != nil {
			return fmt.Errorf("hex decoding failed: %w", err)
		}
		switch fields[0] {
		case "Bus":
			id.Bus = uint16(v)
		case "Vendor":
			id.Vendor = uint16(v)
		case "Product":
			id.Product = uint16(v)
		case "Version":
			id.Version = uint16(v)
		}
	}
	return nil
}

func value(info, prefix string) string {
	return strings.TrimPrefix(info, prefix)
}

// unmarshal parses /proc/bus/input/devices file
func unmarshal(data []byte) ([]DeviceInfo, error) {
	var devices = make([]DeviceInfo, 0)

	var device DeviceInfo
	var started bool

	flush := func() {
		if started {
			devices = append(devices, device)
		}
		device = DeviceInfo{}
		started = false
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if len(line) < 3 || line[1] != ':' {
			return devices, fmt.Errorf("malformed line: \"%s\"", line)
		}
		started = true

		label := line[:1]
		info := strings.TrimSpace(line[3:])

		switch label {
		case "I":
			err := parseID(info, &device.ID)
			if err != nil {
				return devices, err
			}
		case "N":
			device.Name = strings.Trim(value(info, "Name="), "\"")
		case "P":
			device.Phys = value(info, "Phys=")
		case "S":
			device.Sysfs = value(info, "Sysfs=")
		case "U":
			device.Uniq = value(info, "Uniq=")
		case "H":
			device.Handlers = strings.Fields(value(info, "Handlers="))
		case "B":
			fields := strings.SplitN(info, "=", 2)
			if len(fields) != 2 {
				return devices, fmt.Errorf("malformed bitmap: \"%s\"", info)
			}
			bitmap, err := parseBitmap(fields[1])
			if err != nil {
				return devices, fmt.Errorf("bitmap %s: %w", fields[0], err)
			}
			if device.Bitmaps == nil {
				device.Bitmaps = make(map[string]Bitmap)
			}
			device.Bitmaps[fields[0]] = bitmap
		}
	}
	flush()

	return devices, nil
}
