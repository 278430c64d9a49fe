package enums

import "fmt"

// MutationOutcome labels how an optimistic mutation settled.
type MutationOutcome string

const (
	MutationOutcomeConfirmed  MutationOutcome = "confirmed"
	MutationOutcomeRolledBack MutationOutcome = "rolled_back"
	MutationOutcomeReloaded   MutationOutcome = "reloaded"
)

var validMutationOutcomes = []MutationOutcome{
	MutationOutcomeConfirmed,
	MutationOutcomeRolledBack,
	MutationOutcomeReloaded,
}

// IsValid reports whether the value is a known MutationOutcome.
func (m MutationOutcome) IsValid() bool {
	for _, candidate := range validMutationOutcomes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMutationOutcome converts raw input into a MutationOutcome.
func ParseMutationOutcome(value string) (MutationOutcome, error) {
	for _, candidate := range validMutationOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid mutation outcome %q", value)
}
