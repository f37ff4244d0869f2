package deps

import (
	"errors"
	"fmt"
	"strings"
)

// Failure records one name that could not be installed.
type Failure struct {
	Name    string
	Package string
	Backend string
	Err     error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s via %s: %v", f.Name, f.Backend, f.Err)
}

// Outcome summarizes a Report.
type Outcome string

const (
	OutcomeSatisfied Outcome = "satisfied"
	OutcomeInstalled Outcome = "installed"
	OutcomeMissing   Outcome = "missing"
	OutcomeDeclined  Outcome = "declined"
	OutcomePartial   Outcome = "partial failure"
)

// Report is the result of one Ensure call.
type Report struct {
	Backend   string
	Present   []string
	Installed []string
	Missing   []string
	Declined  []string
	Failed    []Failure
}

// Outcome classifies the report. Any failure makes it partial.
func (r Report) Outcome() Outcome {
	switch {
	case len(r.Failed) > 0:
		return OutcomePartial
	case len(r.Declined) > 0:
		return OutcomeDeclined
	case len(r.Missing) > 0:
		return OutcomeMissing
	case len(r.Installed) > 0:
		return OutcomeInstalled
	default:
		return OutcomeSatisfied
	}
}

// Resolved lists names that are present after the call.
func (r Report) Resolved() []string {
	out := append([]string(nil), r.Present...)
	return append(out, r.Installed...)
}

// Err joins every install failure, or returns nil.
func (r Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// Markdown renders the report as a small table.
func (r Report) Markdown() string {
	var b strings.Builder
	b.WriteString("## Dependencies\n\n")
	if r.Backend != "" {
		fmt.Fprintf(&b, "Backend: `%s` · Result: **%s**\n\n", r.Backend, r.Outcome())
	} else {
		fmt.Fprintf(&b, "Result: **%s**\n\n", r.Outcome())
	}
	b.WriteString("| Name | Status |\n|---|---|\n")
	row := func(name, status string) {
		fmt.Fprintf(&b, "| %s | %s |\n", name, status)
	}
	for _, name := range r.Present {
		row(name, "present")
	}
	for _, name := range r.Installed {
		row(name, "installed")
	}
	for _, name := range r.Missing {
		row(name, "missing")
	}
	for _, name := range r.Declined {
		row(name, "declined")
	}
	for _, f := range r.Failed {
		row(f.Name, "failed: "+strings.ReplaceAll(f.Err.Error(), "|", "/"))
	}
	return b.String()
}
