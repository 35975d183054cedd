package migration

import (
	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/lpdoc/pkg/version"
)

// Registry knows all migration steps.
type Registry struct {
	// Unstable adds the step to the format under development. Documents
	// upgraded with it cannot be opened by released versions.
	Unstable bool

	// Logger receives progress of the steps. May be nil.
	Logger logrus.FieldLogger
}

// All returns every step in ascending order.
func (r Registry) All() []Migration {
	steps := []Migration{
		NewV01(r.Logger),
		NewV02(r.Logger),
		NewV1(r.Logger),
	}

	if r.Unstable {
		steps = append(steps, NewUnstable(r.Logger))
	}

	return steps
}

// Migrations returns the steps needed to upgrade a document of version v, in
// the order they must be applied. It is empty for documents that are up to
// date.
func (r Registry) Migrations(v version.Version) []Migration {
	var steps []Migration

	for _, step := range r.All() {
		if !step.From().Less(v) {
			steps = append(steps, step)
		}
	}

	return steps
}
