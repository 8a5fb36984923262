package notes

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidID indicates that a resource identifier is not a positive integer.
var ErrInvalidID = errors.New("notes: invalid id")

// ParseID validates a path identifier for notebooks, notes and enhancements.
func ParseID(rawInput string) (uint64, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidID)
	}
	value, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil || value == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, rawInput)
	}
	return value, nil
}
