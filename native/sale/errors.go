package sale

import (
	"fmt"
	"math/big"
)

// The error taxonomy below mirrors the failure classes of the sale:
// configuration, authorization, stage, validation and state-invariant
// violations. Every error aborts the whole operation with no partial effect.

// ConfigurationError reports a malformed configuration payload (bad ordering,
// zero identities, zero or duplicate Merkle root).
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("sale: invalid %s: %s", e.Field, e.Reason)
}

// AuthorizationError reports a caller lacking the role an operation requires.
type AuthorizationError struct {
	Role string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("sale: caller lacks %s", e.Role)
}

// StageError reports an operation attempted outside its valid phase.
type StageError struct {
	Current  Stage
	Required Stage
	Exact    bool
}

func (e *StageError) Error() string {
	if e.Exact {
		return fmt.Sprintf("sale: stage is %s, operation requires exactly %s", e.Current, e.Required)
	}
	return fmt.Sprintf("sale: stage is %s, operation requires at least %s", e.Current, e.Required)
}

// ValidationError reports a rejected deposit. Limit carries the violated
// bound (e.g. the exact remaining allowance) so a caller can retry without a
// separate query.
type ValidationError struct {
	Reason string
	Limit  *big.Int
}

func (e *ValidationError) Error() string {
	if e.Limit != nil {
		return fmt.Sprintf("sale: %s (limit %s)", e.Reason, e.Limit)
	}
	return fmt.Sprintf("sale: %s", e.Reason)
}

// StateInvariantError flags cap or tier arithmetic that should be
// structurally unreachable given the enforced preconditions. It is a
// defensive assertion, not a user-facing path.
type StateInvariantError struct {
	Detail string
}

func (e *StateInvariantError) Error() string {
	return fmt.Sprintf("sale: state invariant violated: %s", e.Detail)
}
