package rpc

import (
	"encoding/hex"
	"errors"

	"tokensale/native/common"
	"tokensale/native/sale"
)

func hexRoot(root [32]byte) string {
	return hex.EncodeToString(root[:])
}

// depositErrorClass buckets deposit failures for the error counter.
func depositErrorClass(err error) string {
	var (
		validationErr *sale.ValidationError
		stageErr      *sale.StageError
		invariantErr  *sale.StateInvariantError
		configErr     *sale.ConfigurationError
	)
	switch {
	case errors.Is(err, common.ErrPaused):
		return "paused"
	case errors.As(err, &stageErr):
		return "stage"
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &configErr):
		return "configuration"
	case errors.As(err, &invariantErr):
		return "invariant"
	default:
		return "internal"
	}
}
