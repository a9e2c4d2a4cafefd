package numlock

import (
	"fmt"
	"sync"
	"time"

	"github.com/bendahl/uinput"
	"github.com/gethiox/keymapper/internal/pkg/logger"
	"github.com/holoplot/go-evdev"
)

const (
	uinputPath   = "/dev/uinput"
	settleTime   = time.Millisecond * 100
	settlePeriod = time.Millisecond * 5
)

// LED reads numlock state from keyboard indicator and toggles it by pressing numlock on a virtual keyboard
type LED struct {
	mu       sync.Mutex
	dev      *evdev.InputDevice
	keyboard uinput.Keyboard
}

// OpenLED opens keyboard event handler exposing LED_NUML and creates virtual keyboard used for toggling
func OpenLED(path string) (*LED, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening keyboard failed: %w", err)
	}

	if !hasNumlockLED(dev.CapableEvents(evdev.EV_LED)) {
		_ = dev.Close()
		return nil, fmt.Errorf("%s does not expose numlock led", path)
	}

	keyboard, err := uinput.CreateKeyboard(uinputPath, []byte("keymapper numlock"))
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("creating virtual keyboard failed: %w", err)
	}

	return &LED{dev: dev, keyboard: keyboard}, nil
}

func hasNumlockLED(codes []evdev.EvCode) bool {
	for _, c := range codes {
		if c == evdev.LED_NUML {
			return true
		}
	}
	return false
}

func (l *LED) IsOn() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isOn()
}

func (l *LED) isOn() (bool, error) {
	state, err := l.dev.State(evdev.EV_LED)
	if err != nil {
		return false, fmt.Errorf("reading led state failed: %w", err)
	}
	return state[evdev.LED_NUML], nil
}

// Toggle presses numlock and waits shortly until the indicator reflects the change
func (l *LED) Toggle() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	before, err := l.isOn()
	if err != nil {
		return err
	}

	err = l.keyboard.KeyPress(uinput.KeyNumlock)
	if err != nil {
		return fmt.Errorf("pressing numlock failed: %w", err)
	}

	deadline := time.Now().Add(settleTime)
	for time.Now().Before(deadline) {
		now, err := l.isOn()
		if err != nil {
			return err
		}
		if now != before {
			return nil
		}
		time.Sleep(settlePeriod)
	}
	log.Info("numlock led did not change after toggle", logger.Debug)
	return nil
}

func (l *LED) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	kbdErr := l.keyboard.Close()
	devErr := l.dev.Close()
	if kbdErr != nil {
		return fmt.Errorf("closing virtual keyboard failed: %w", kbdErr)
	}
	if devErr != nil {
		return fmt.Errorf("closing keyboard failed: %w", devErr)
	}
	return nil
}
