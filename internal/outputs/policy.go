package outputs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownPolicy is returned for unrecognized conflict policy names.
	ErrUnknownPolicy = errors.New("unknown conflict policy")
	// ErrExists is returned under PolicyFail when the artifact is already on disk.
	ErrExists = errors.New("artifact already exists")
	// ErrMissingDir is returned when directory creation is disabled and the
	// artifact directory does not exist.
	ErrMissingDir = errors.New("output directory missing")
)

// Policy decides what happens when an artifact path is already taken.
type Policy string

const (
	PolicyFail      Policy = "fail"
	PolicyOverwrite Policy = "overwrite"
	PolicySkip      Policy = "skip"
	PolicyIncrement Policy = "increment"
)

// ParsePolicy converts a config value into a Policy.
func ParsePolicy(value string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(value))) {
	case PolicyFail:
		return PolicyFail, nil
	case PolicyOverwrite:
		return PolicyOverwrite, nil
	case PolicySkip:
		return PolicySkip, nil
	case PolicyIncrement:
		return PolicyIncrement, nil
	default:
		return "", fmt.Errorf("%w %q (supported: fail, overwrite, skip, increment)", ErrUnknownPolicy, value)
	}
}

func (p Policy) String() string { return string(p) }
