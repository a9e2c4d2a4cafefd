package numlock

import (
	"fmt"

	"github.com/gethiox/keymapper/internal/pkg/logger"
)

var log = logger.GetLogger()

// Indicator exposes host numlock state
type Indicator interface {
	IsOn() (bool, error)
	Toggle() error
}

// Ensure runs fn and brings numlock back to the state from before the call if fn changed it.
// Nil indicator runs fn without any checks. Indicator failures are logged only.
func Ensure(ind Indicator, fn func()) {
	if ind == nil {
		fn()
		return
	}

	before, err := ind.IsOn()
	if err != nil {
		log.Info(fmt.Sprintf("cannot read numlock state: %v", err), logger.Debug)
		fn()
		return
	}

	fn()

	after, err := ind.IsOn()
	if err != nil {
		log.Info(fmt.Sprintf("cannot read numlock state: %v", err), logger.Debug)
		return
	}
	if after == before {
		return
	}

	log.Info(fmt.Sprintf("restoring numlock state (on: %t)", before), logger.Debug)
	err = ind.Toggle()
	if err != nil {
		log.Info(fmt.Sprintf("cannot restore numlock state: %v", err), logger.Warning)
	}
}
