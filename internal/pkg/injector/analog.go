package injector

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gethiox/keymapper/internal/pkg/config"
	"github.com/gethiox/keymapper/internal/pkg/logger"
	"github.com/holoplot/go-evdev"
)

// DefaultAbsMax is used when the device does not report ABS_X range
const DefaultAbsMax = 32767

// Converter integrates joystick position into relative pointer motion on a fixed schedule
type Converter struct {
	mu   sync.Mutex
	x, y int32

	accX, accY float64

	max          float64
	maxSpeed     float64
	speed        float64
	nonLinearity float64
	interval     time.Duration

	metrics *Metrics
	device  string
}

func NewConverter(max int32, cfg config.Joystick) *Converter {
	if max <= 0 {
		max = DefaultAbsMax
	}
	return &Converter{
		max:          float64(max),
		maxSpeed:     math.Sqrt2 * float64(max),
		speed:        cfg.PointerSpeed,
		nonLinearity: cfg.NonLinearity,
		interval:     cfg.TickInterval(),
	}
}

// Feed stores latest position of ABS_X and ABS_Y, reports whether event was consumed
func (c *Converter) Feed(ev *evdev.InputEvent) bool {
	if ev.Type != evdev.EV_ABS {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Code {
	case evdev.ABS_X:
		c.x = ev.Value
	case evdev.ABS_Y:
		c.y = ev.Value
	default:
		return false
	}
	return true
}

// Step advances accumulators by one tick and returns whole units ready to emit.
// Centered stick leaves accumulators untouched.
func (c *Converter) Step() (dx, dy int32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.x == 0 && c.y == 0 {
		return 0, 0
	}

	x, y := float64(c.x), float64(c.y)

	factor := 1.0
	if c.nonLinearity != 1 {
		factor = math.Pow(math.Hypot(x, y)/c.maxSpeed, c.nonLinearity)
	}

	c.accX += x * factor * c.speed / c.max
	c.accY += y * factor * c.speed / c.max

	dx = int32(c.accX)
	dy = int32(c.accY)
	c.accX -= float64(dx)
	c.accY -= float64(dy)
	return dx, dy
}

// Run emits relative motion every tick until ctx is done
func (c *Converter) Run(ctx context.Context, w Writer) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	log.Info("Analog converter engaged", logger.Debug)
	defer log.Info("Analog converter disengaged", logger.Debug)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		dx, dy := c.Step()
		if dy != 0 {
			c.emit(w, evdev.REL_Y, dy)
		}
		if dx != 0 {
			c.emit(w, evdev.REL_X, dx)
		}
	}
}

func (c *Converter) emit(w Writer, code evdev.EvCode, value int32) {
	err := w.Write(evdev.EV_REL, code, value)
	if err != nil {
		log.Info(fmt.Sprintf("failed to write relative event: %v", err), logger.Warning)
		return
	}
	c.metrics.relative(c.device, 1)
}
