package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"repoquery/internal/descriptor"
	"repoquery/internal/repoerr"
)

func TestValidateLimits(t *testing.T) {
	limits := PlanLimits{MaxJoins: 2, MaxParameters: 2, MaxLimit: 100}

	assert.NoError(t, validateLimits(descriptor.New().WithLimit(100), limits))
	assert.NoError(t, validateLimits(descriptor.New().WithLimit(1000), PlanLimits{}))

	err := validateLimits(descriptor.New().WithLimit(101), limits)
	assert.ErrorIs(t, err, repoerr.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "maximum limit of 100")

	d := descriptor.New().Where("a", 1).Where("b", 2).Where("c", 3)
	assert.ErrorIs(t, validateLimits(d, limits), repoerr.ErrInvalidArgument)

	d = descriptor.New()
	for _, name := range []string{"a", "b", "c"} {
		d.Join(name, descriptor.RelationOptions{})
	}
	assert.ErrorIs(t, validateLimits(d, limits), repoerr.ErrInvalidArgument)
}
