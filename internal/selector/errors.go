package selector

import (
	"fmt"

	"github.com/dlorp/synapse-engine-sub002/pkg/types"
)

// noModelsAvailableError signals that a tier has no enabled, ready model.
// It carries which other tiers do have availability so callers can fall
// back deliberately.
type noModelsAvailableError struct {
	tier       types.Tier
	alternates []types.Tier
}

func (e noModelsAvailableError) Error() string {
	if len(e.alternates) == 0 {
		return fmt.Sprintf("no models available in tier %q (no other tier has availability)", e.tier)
	}
	return fmt.Sprintf("no models available in tier %q (available tiers: %v)", e.tier, e.alternates)
}

// ErrNoModelsAvailable constructs a noModelsAvailableError.
func ErrNoModelsAvailable(tier types.Tier, alternates []types.Tier) error {
	return noModelsAvailableError{tier: tier, alternates: alternates}
}

// IsNoModelsAvailable reports whether err indicates an empty tier.
func IsNoModelsAvailable(err error) bool {
	_, ok := err.(noModelsAvailableError)
	return ok
}

// AlternateTiers extracts the availability diagnostic from a
// noModelsAvailableError; nil for any other error.
func AlternateTiers(err error) []types.Tier {
	if e, ok := err.(noModelsAvailableError); ok {
		return e.alternates
	}
	return nil
}
