package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownBlockType = errors.New("unrecognized block type")
	ErrRateLimited      = errors.New("block creation rate limit exceeded")

	// ErrMiningExhausted is a liveness bound on the nonce search, not an
	// expected outcome; callers may retry.
	ErrMiningExhausted = errors.New("mining attempt cap exhausted")
)

// InsufficientWorkError reports the numeric shortfall between an actor's
// accumulated work and the requirement for the requested block type.
type InsufficientWorkError struct {
	Have int64
	Need int64
}

func (e *InsufficientWorkError) Error() string {
	return fmt.Sprintf("insufficient work: have %d, need %d", e.Have, e.Need)
}
