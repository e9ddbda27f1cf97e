package policy

import (
	"errors"
	"fmt"
	"strings"
)

// Mode decides what happens when a checker itself fails.
type Mode string

const (
	// ModeFailClosed surfaces checker errors to the caller.
	ModeFailClosed Mode = "fail-closed"
	// ModeFailOpen logs checker errors and continues with the next checker.
	ModeFailOpen Mode = "fail-open"
)

// ParseMode converts a textual representation into a Mode constant.
func ParseMode(value string) (Mode, error) {
	mode := Mode(strings.TrimSpace(strings.ToLower(value)))
	if mode == "" {
		return "", errors.New("mode is required")
	}
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid mode %q", value)
	}
	return mode, nil
}

// IsValid reports whether the mode is recognised.
func (m Mode) IsValid() bool {
	switch m {
	case ModeFailClosed, ModeFailOpen:
		return true
	default:
		return false
	}
}
