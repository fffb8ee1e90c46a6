package commands

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrTaskIDRequired indicates no task id was provided.
var ErrTaskIDRequired = errors.New("task id required")

// ParseTaskID parses the leading task id from args and returns the rest.
// Ids are the numbers shown by list, temporary ids included.
func ParseTaskID(args []string) (int64, []string, error) {
	if len(args) == 0 {
		return 0, nil, ErrTaskIDRequired
	}
	if !isAllDigits(args[0]) {
		return 0, nil, fmt.Errorf("invalid task id: %s", args[0])
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id < 1 {
		return 0, nil, fmt.Errorf("invalid task id: %s", args[0])
	}
	return id, args[1:], nil
}

// isAllDigits returns true if s consists only of ASCII digits and is non-empty.
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
