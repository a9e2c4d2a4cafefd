package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-ini/ini"
)

var ErrInvalidValue = errors.New("invalid value")

const (
	PurposeMouse = "mouse"
	PurposeNone  = "none"
)

type Injector struct {
	GrabAttempts  int
	GrabBackoff   time.Duration
	DiscoveryRate time.Duration
}

type Macros struct {
	KeystrokeSleep time.Duration
}

type Joystick struct {
	LeftPurpose  string
	NonLinearity float64
	PointerSpeed float64
	TickRate     int
}

type Numlock struct {
	Guard bool
}

type Config struct {
	Injector Injector
	Macros   Macros
	Joystick Joystick
	Numlock  Numlock
}

// Defaults returns tunables used when config file does not specify them
func Defaults() Config {
	return Config{
		Injector: Injector{
			GrabAttempts:  4,
			GrabBackoff:   time.Millisecond * 150,
			DiscoveryRate: time.Second,
		},
		Macros: Macros{
			KeystrokeSleep: time.Millisecond * 10,
		},
		Joystick: Joystick{
			LeftPurpose:  PurposeMouse,
			NonLinearity: 4,
			PointerSpeed: 80,
			TickRate:     60,
		},
		Numlock: Numlock{
			Guard: true,
		},
	}
}

// TickInterval is a period of analog to relative conversion
func (j Joystick) TickInterval() time.Duration {
	return time.Second / time.Duration(j.TickRate)
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	file, err := ini.Load(data)
	if err != nil {
		return Config{}, fmt.Errorf("parsing ini failed: %w", err)
	}

	c := Defaults()

	// [injector]
	injector := file.Section("injector")
	if c.Injector.GrabAttempts, err = positiveInt(injector, "grab_attempts", c.Injector.GrabAttempts); err != nil {
		return Config{}, err
	}
	backoff, err := nonNegativeInt(injector, "grab_backoff_ms", int(c.Injector.GrabBackoff/time.Millisecond))
	if err != nil {
		return Config{}, err
	}
	c.Injector.GrabBackoff = time.Millisecond * time.Duration(backoff)
	rate, err := positiveInt(injector, "discovery_rate", 1)
	if err != nil {
		return Config{}, err
	}
	c.Injector.DiscoveryRate = time.Second / time.Duration(rate)

	// [macros]
	sleep, err := nonNegativeInt(file.Section("macros"), "keystroke_sleep_ms", int(c.Macros.KeystrokeSleep/time.Millisecond))
	if err != nil {
		return Config{}, err
	}
	c.Macros.KeystrokeSleep = time.Millisecond * time.Duration(sleep)

	// [gamepad.joystick]
	joystick := file.Section("gamepad.joystick")
	switch purpose := joystick.Key("left_purpose").MustString(c.Joystick.LeftPurpose); purpose {
	case PurposeMouse, PurposeNone:
		c.Joystick.LeftPurpose = purpose
	default:
		return Config{}, fmt.Errorf("gamepad.joystick.left_purpose \"%s\": %w", purpose, ErrInvalidValue)
	}
	if c.Joystick.NonLinearity, err = positiveFloat(joystick, "non_linearity", c.Joystick.NonLinearity); err != nil {
		return Config{}, err
	}
	if c.Joystick.PointerSpeed, err = positiveFloat(joystick, "pointer_speed", c.Joystick.PointerSpeed); err != nil {
		return Config{}, err
	}
	if c.Joystick.TickRate, err = positiveInt(joystick, "tick_rate", c.Joystick.TickRate); err != nil {
		return Config{}, err
	}

	// [numlock]
	numlock := file.Section("numlock")
	if numlock.HasKey("guard") {
		c.Numlock.Guard, err = numlock.Key("guard").Bool()
		if err != nil {
			return Config{}, fmt.Errorf("numlock.guard: %w", err)
		}
	}

	return c, nil
}

func intKey(section *ini.Section, name string, def int) (int, error) {
	if !section.HasKey(name) {
		return def, nil
	}
	v, err := section.Key(name).Int()
	if err != nil {
		return 0, fmt.Errorf("%s.%s: %w", section.Name(), name, err)
	}
	return v, nil
}

func positiveInt(section *ini.Section, name string, def int) (int, error) {
	v, err := intKey(section, name, def)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s.%s must be positive, got %d: %w", section.Name(), name, v, ErrInvalidValue)
	}
	return v, nil
}

func nonNegativeInt(section *ini.Section, name string, def int) (int, error) {
	v, err := intKey(section, name, def)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("%s.%s cannot be negative, got %d: %w", section.Name(), name, v, ErrInvalidValue)
	}
	return v, nil
}

func positiveFloat(section *ini.Section, name string, def float64) (float64, error) {
	if !section.HasKey(name) {
		return def, nil
	}
	v, err := section.Key(name).Float64()
	if err != nil {
		return 0, fmt.Errorf("%s.%s: %w", section.Name(), name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s.%s must be positive, got %f: %w", section.Name(), name, v, ErrInvalidValue)
	}
	return v, nil
}
