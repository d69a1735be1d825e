package consensus

import (
	"errors"
	"fmt"
)

var (
	ErrBlockNotFound         = errors.New("unknown trust block")
	ErrValidatorNotFound     = errors.New("unknown validator")
	ErrBlockAlreadyFinalized = errors.New("block already finalized")
	ErrAlreadyValidated      = errors.New("validator already voted on this block")
)

// InsufficientValidatorLevelError reports a validator who has not given
// enough help to vouch for this block type.
type InsufficientValidatorLevelError struct {
	Have int
	Need int
}

func (e *InsufficientValidatorLevelError) Error() string {
	return fmt.Sprintf("insufficient validator level: have %d, need %d", e.Have, e.Need)
}
