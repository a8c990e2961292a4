// Package approval implements the approval subsystem (C6): gating selected
// server-side tool executions behind a human decision, queue or
// conversational style.
package approval

import "fmt"

// Gate describes how a gated action's pending-approval prompt is presented
// and what result is returned on denial.
type Gate struct {
	// Prompt is the human-readable message shown while the call awaits a
	// decision. Must be non-empty; checked at startup by Config.Validate.
	Prompt string
	// DeniedResult is returned as the action's result when the decision is
	// a rejection. Defaults to a generic denial message when empty.
	DeniedResult string
}

// Config declares which actions require approval and how.
type Config struct {
	// Confirm maps an action name to its approval Gate. An action absent
	// from this map runs immediately, ungated.
	Confirm map[string]Gate
}

// Validate checks that every configured gate carries a non-empty prompt.
// Call it once at startup before the config is handed to NewGated.
func (c Config) Validate() error {
	for name, g := range c.Confirm {
		if g.Prompt == "" {
			return fmt.Errorf("approval: gate for action %q has no prompt", name)
		}
	}
	return nil
}

// Required reports whether actionName is gated by this config.
func (c Config) Required(actionName string) bool {
	_, ok := c.Confirm[actionName]
	return ok
}
