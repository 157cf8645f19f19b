package agent

import (
	"errors"
	"fmt"
)

var ErrConfig = errors.New("invalid agent configuration")

// ConfigError reports a troop that parses but cannot be simulated. Agent is
// the troop index of the offending agent, or -1 for troop-wide problems.
type ConfigError struct {
	Agent int
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Agent < 0 {
		return fmt.Sprintf("config: %s", e.Msg)
	}
	return fmt.Sprintf("config: agent %d: %s", e.Agent, e.Msg)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}
