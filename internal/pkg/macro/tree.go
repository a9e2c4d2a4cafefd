package macro

import (
	"time"

	"github.com/holoplot/go-evdev"
)

// Node is one of Key, Sequence, Repeat, HoldModifier or Wait
type Node interface {
	node()
}

// Key presses and releases a key
type Key struct {
	Code evdev.EvCode
}

type Sequence struct {
	Children []Node
}

type Repeat struct {
	Count int
	Child Node
}

// HoldModifier keeps Code pressed while Child runs
type HoldModifier struct {
	Code  evdev.EvCode
	Child Node
}

type Wait struct {
	Duration time.Duration
}

func (Key) node()          {}
func (Sequence) node()     {}
func (Repeat) node()       {}
func (HoldModifier) node() {}
func (Wait) node()         {}

func collectCodes(n Node, codes map[evdev.EvCode]struct{}) {
	switch n := n.(type) {
	case Key:
		codes[n.Code] = struct{}{}
	case Sequence:
		for _, child := range n.Children {
			collectCodes(child, codes)
		}
	case Repeat:
		collectCodes(n.Child, codes)
	case HoldModifier:
		codes[n.Code] = struct{}{}
		collectCodes(n.Child, codes)
	}
}
