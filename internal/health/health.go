// Package health derives the three-level health indicator from the current
// unresolved entry set. The aggregate is recomputed from scratch on every
// evaluation rather than tracked incrementally.
package health

import (
	"github.com/meridianapps/resilience-core/internal/model"
)

// Evaluate returns the health state for the given unresolved entries and the
// number of interventions recorded this session.
//
// red iff any unresolved entry is critical; else yellow iff any unresolved
// entry exists or any intervention has been recorded; else green. A single
// critical entry forces red regardless of how many lower-severity entries
// coexist. De-escalation happens only through explicit resolve or clear.
func Evaluate(unresolved []model.LogEntry, sessionInterventions int) model.HealthState {
	state := model.HealthGreen
	for _, e := range unresolved {
		if e.Severity == model.SeverityCritical {
			return model.HealthRed
		}
		state = model.HealthYellow
	}
	if sessionInterventions > 0 {
		state = model.HealthYellow
	}
	return state
}
