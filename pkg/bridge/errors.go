// Copyright 2025-2026 Mantene

package bridge

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a missing or invalid configuration field.
// Construction of a Bridge does not complete when one is returned.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// ErrReconnectExhausted is reported by the legacy transport when it has
// given up reconnecting. It is the one transport error that is fatal for
// the owning bridge.
var ErrReconnectExhausted = errors.New("irc reconnect attempts exhausted")
