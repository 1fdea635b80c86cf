package planner

import (
	"repoquery/internal/descriptor"
	"repoquery/internal/repoerr"
)

// PlanLimits bounds the size of a descriptor. Zero disables a limit.
type PlanLimits struct {
	MaxJoins      int
	MaxParameters int
	MaxLimit      int
}

func validateLimits(d *descriptor.Descriptor, limits PlanLimits) error {
	if limits.MaxJoins > 0 && len(d.Relations) > limits.MaxJoins {
		return repoerr.InvalidArgument("query exceeds maximum joins of %d (joins: %d)", limits.MaxJoins, len(d.Relations))
	}
	if limits.MaxParameters > 0 && len(d.Parameters) > limits.MaxParameters {
		return repoerr.InvalidArgument("query exceeds maximum parameters of %d (parameters: %d)", limits.MaxParameters, len(d.Parameters))
	}
	if limits.MaxLimit > 0 && d.Limit != nil && *d.Limit > limits.MaxLimit {
		return repoerr.InvalidArgument("query exceeds maximum limit of %d (limit: %d)", limits.MaxLimit, *d.Limit)
	}
	return nil
}
