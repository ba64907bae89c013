// Package doctor runs diagnostic checks for the envgod CLI. Checks never
// print secret values.
package doctor

import (
	"context"
	"fmt"
	"io"

	"github.com/rusamer/envgod/internal/ui"
)

// Status is the outcome of a check.
type Status int

const (
	StatusOK Status = iota
	StatusWarn
	StatusFail
)

func (s Status) tag() string {
	switch s {
	case StatusWarn:
		return ui.WarnTag()
	case StatusFail:
		return ui.FailTag()
	}
	return ui.OKTag()
}

// Result is what a check found. Detail lines are printed under the summary.
type Result struct {
	Status  Status
	Summary string
	Detail  []string
}

// Check is one diagnostic.
type Check interface {
	// Name is the section heading, e.g. "Keychain".
	Name() string
	Run(ctx context.Context) Result
}

// Registry holds checks in registration order.
type Registry struct {
	checks []Check
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends c.
func (r *Registry) Register(c Check) {
	r.checks = append(r.checks, c)
}

// Checks returns the registered checks.
func (r *Registry) Checks() []Check {
	return r.checks
}

// Run executes every check, writing a section per check to w, and returns
// the number of failed checks.
func (r *Registry) Run(ctx context.Context, w io.Writer) int {
	failed := 0
	for _, c := range r.checks {
		res := c.Run(ctx)
		if res.Status == StatusFail {
			failed++
		}
		ui.Section(w, c.Name())
		fmt.Fprintf(w, "%s %s\n", res.Status.tag(), res.Summary)
		for _, line := range res.Detail {
			fmt.Fprintf(w, "  %s\n", line)
		}
		fmt.Fprintln(w)
	}
	return failed
}
