package mapping

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/holoplot/go-evdev"
)

var ErrInvalidKey = errors.New("invalid mapping key")

// Key identifies input event by its type and code
type Key struct {
	Type evdev.EvType
	Code evdev.EvCode
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", evdev.TypeName(k.Type), evdev.CodeName(k.Type, k.Code))
}

// Mapping associates input event with output key name or macro source
type Mapping map[Key]string

// Keys returns mapping keys in a stable order
func (m Mapping) Keys() []Key {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].Code < keys[j].Code
	})
	return keys
}

// ParseKey accepts kernel names (KEY_A, BTN_LEFT, ABS_HAT0X, REL_WHEEL), hex key codes (x1e)
// and numeric "type,code" pairs ("1,30")
func ParseKey(raw string) (Key, error) {
	key := strings.TrimSpace(raw)

	if strings.Contains(key, ",") {
		fields := strings.Split(key, ",")
		if len(fields) != 2 {
			return Key{}, fmt.Errorf("%w: \"%s\": expected \"type,code\"", ErrInvalidKey, raw)
		}
		t, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 16)
		if err != nil {
			return Key{}, fmt.Errorf("%w: \"%s\": bad type: %v", ErrInvalidKey, raw, err)
		}
		c, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 16)
		if err != nil {
			return Key{}, fmt.Errorf("%w: \"%s\": bad code: %v", ErrInvalidKey, raw, err)
		}
		return Key{Type: evdev.EvType(t), Code: evdev.EvCode(c)}, nil
	}

	if strings.HasPrefix(key, "x") {
		c, err := strconv.ParseUint(strings.TrimPrefix(key, "x"), 16, 16)
		if err != nil {
			return Key{}, fmt.Errorf("%w: \"%s\": conversion of hex value failed: %v", ErrInvalidKey, raw, err)
		}
		return Key{Type: evdev.EV_KEY, Code: evdev.EvCode(c)}, nil
	}

	key = strings.ToUpper(key)
	var (
		evType evdev.EvType
		table  map[string]evdev.EvCode
	)
	switch {
	case strings.HasPrefix(key, "KEY_"), strings.HasPrefix(key, "BTN_"):
		evType, table = evdev.EV_KEY, evdev.KEYFromString
	case strings.HasPrefix(key, "ABS_"):
		evType, table = evdev.EV_ABS, evdev.ABSFromString
	case strings.HasPrefix(key, "REL_"):
		evType, table = evdev.EV_REL, evdev.RELFromString
	default:
		return Key{}, fmt.Errorf("%w: \"%s\": unsupported name prefix", ErrInvalidKey, raw)
	}

	code, ok := table[key]
	if !ok {
		return Key{}, fmt.Errorf("%w: EvCode name \"%s\" not found", ErrInvalidKey, raw)
	}
	return Key{Type: evType, Code: code}, nil
}
