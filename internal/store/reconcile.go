package store

import (
	"github.com/meridianapps/resilience-core/internal/model"
)

// Reconcile merges one incoming remote record into a local intervention
// collection. If a record with the same id is already present the input
// collection is returned unchanged and merged is false. Otherwise the record
// is prepended and the result trimmed to limit, oldest dropped first.
//
// The function is pure so the push-merge path can be tested without any
// network layer.
func Reconcile(local []model.Intervention, incoming model.Intervention, limit int) (next []model.Intervention, merged bool) {
	for _, iv := range local {
		if iv.ID == incoming.ID {
			return local, false
		}
	}
	return prepend(local, incoming, limit), true
}
