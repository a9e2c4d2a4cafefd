package input

import (
	"fmt"

	"github.com/holoplot/go-evdev"
)

// Source is a readable event device which may be grabbed for exclusive access
type Source interface {
	Path() string
	Name() string
	Capabilities() map[evdev.EvType][]evdev.EvCode
	AbsInfos() (map[evdev.EvCode]evdev.AbsInfo, error)
	Grab() error
	Ungrab() error
	ReadOne() (*evdev.InputEvent, error)
	Close() error
}

// Opener opens event device under given path
type Opener func(path string) (Source, error)

type evdevSource struct {
	dev  *evdev.InputDevice
	name string
}

// Open opens /dev/input/event* handler
func Open(path string) (Source, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s failed: %w", path, err)
	}
	name, err := dev.Name()
	if err != nil {
		name = path
	}
	return &evdevSource{dev: dev, name: name}, nil
}

func (s *evdevSource) Path() string { return s.dev.Path() }
func (s *evdevSource) Name() string { return s.name }

func (s *evdevSource) Capabilities() map[evdev.EvType][]evdev.EvCode {
	caps := make(map[evdev.EvType][]evdev.EvCode)
	for _, t := range s.dev.CapableTypes() {
		caps[t] = s.dev.CapableEvents(t)
	}
	return caps
}

func (s *evdevSource) AbsInfos() (map[evdev.EvCode]evdev.AbsInfo, error) {
	return s.dev.AbsInfos()
}

func (s *evdevSource) Grab() error   { return s.dev.Grab() }
func (s *evdevSource) Ungrab() error { return s.dev.Ungrab() }

func (s *evdevSource) ReadOne() (*evdev.InputEvent, error) {
	return s.dev.ReadOne()
}

func (s *evdevSource) Close() error { return s.dev.Close() }
