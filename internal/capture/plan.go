package capture

import (
	"fmt"

	"github.com/andresmejia3/signcap/internal/labels"
)

// LabelPlan is how much of a label is already on disk.
type LabelPlan struct {
	Spec     labels.Spec
	Existing int
}

// Skip reports whether the label already has its target.
func (p LabelPlan) Skip() bool { return p.Existing >= p.Spec.Target }

// Remaining is the number of sequences still to record.
func (p LabelPlan) Remaining() int { return max(p.Spec.Target-p.Existing, 0) }

// Indices lists the indices that will be recorded, in order.
func (p LabelPlan) Indices() []int {
	out := make([]int, 0, p.Remaining())
	for i := p.Existing; i < p.Spec.Target; i++ {
		out = append(out, i)
	}
	return out
}

// Plan counts what is already persisted for each label so an interrupted
// run picks up at the next free index.
func Plan(store Store, specs []labels.Spec) ([]LabelPlan, error) {
	plans := make([]LabelPlan, 0, len(specs))
	for _, spec := range specs {
		n, err := store.CountExisting(spec.Name)
		if err != nil {
			return nil, fmt.Errorf("count existing sequences for %q: %w", spec.Name, err)
		}
		plans = append(plans, LabelPlan{Spec: spec, Existing: n})
	}
	return plans, nil
}

// TotalRemaining sums Remaining over plans.
func TotalRemaining(plans []LabelPlan) int {
	total := 0
	for _, p := range plans {
		total += p.Remaining()
	}
	return total
}
