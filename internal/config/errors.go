package config

import (
	"fmt"
	"strings"
)

// LoadError wraps a failure while reading or decoding configuration.
type LoadError struct {
	Op  string // read, env, unmarshal
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Op, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ValidationError lists every invalid configuration value.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "invalid configuration: " + e.Errors[0]
	}
	return fmt.Sprintf("invalid configuration (%d problems):\n  - %s",
		len(e.Errors), strings.Join(e.Errors, "\n  - "))
}
