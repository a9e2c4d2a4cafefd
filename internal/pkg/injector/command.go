package injector

import (
	"fmt"
	"strings"
)

// Command is a message accepted by running injector
type Command interface {
	command()
}

// Stop ends injection
type Stop struct{}

// Unknown wraps payload of unrecognized shape, it is logged and ignored
type Unknown struct {
	Payload any
}

func (Stop) command()    {}
func (Unknown) command() {}

func (u Unknown) String() string {
	return fmt.Sprintf("unknown(%v)", u.Payload)
}

// ParseCommand turns arbitrary control payload into Command
func ParseCommand(payload any) Command {
	switch p := payload.(type) {
	case Command:
		return p
	case string:
		if strings.EqualFold(strings.TrimSpace(p), "stop") {
			return Stop{}
		}
	case []byte:
		return ParseCommand(string(p))
	}
	return Unknown{Payload: payload}
}
