package symbols

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/holoplot/go-evdev"
)

// X keycodes are shifted by 8 against kernel ones
const xkbKeycodeOffset = 8

// ParseXmodmap reads "xmodmap -pke" output, every keysym listed for a keycode becomes a name for it.
// The first keycode declaring given keysym wins.
func ParseXmodmap(data []byte) map[string]evdev.EvCode {
	entries := make(map[string]evdev.EvCode)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "keycode") {
			continue
		}
		fields := strings.SplitN(strings.TrimPrefix(line, "keycode"), "=", 2)
		if len(fields) != 2 {
			continue
		}
		keycode, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil || keycode < xkbKeycodeOffset {
			continue
		}
		code := evdev.EvCode(keycode - xkbKeycodeOffset)

		for _, sym := range strings.Fields(fields[1]) {
			name := canonical(sym)
			if name == "nosymbol" {
				continue
			}
			if _, ok := entries[name]; ok {
				continue
			}
			entries[name] = code
		}
	}
	return entries
}

// LoadXmodmap asks running X server for its keymap
func LoadXmodmap(ctx context.Context) (map[string]evdev.EvCode, error) {
	out, err := exec.CommandContext(ctx, "xmodmap", "-pke").Output()
	if err != nil {
		return nil, fmt.Errorf("xmodmap failed: %w", err)
	}
	return ParseXmodmap(out), nil
}
