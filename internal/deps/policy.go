package deps

import (
	"fmt"
	"strings"
)

// Policy decides whether Ensure may mutate the host.
type Policy int

const (
	// PolicyAsk installs only after the consent callback agrees.
	PolicyAsk Policy = iota
	// PolicyAlways installs without asking.
	PolicyAlways
	// PolicyNever only reports what is missing.
	PolicyNever
)

func (p Policy) String() string {
	switch p {
	case PolicyAlways:
		return "always"
	case PolicyNever:
		return "never"
	default:
		return "ask"
	}
}

// ParsePolicy accepts "ask", "always" and "never".
func ParsePolicy(value string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "ask":
		return PolicyAsk, nil
	case "always", "yes":
		return PolicyAlways, nil
	case "never", "no":
		return PolicyNever, nil
	default:
		return PolicyAsk, fmt.Errorf("deps: unknown install policy %q", value)
	}
}
