package governance

import (
	"errors"
	"fmt"
)

var (
	ErrProposalNotFound    = errors.New("unknown proposal")
	ErrProposalNotInVoting = errors.New("proposal is not accepting votes")
	ErrVotingClosed        = errors.New("proposal voting deadline has passed")
	ErrCommentNotFound     = errors.New("unknown proposal comment")
	ErrReplyDepthExceeded  = errors.New("replies to replies are not supported")
)

// InsufficientReputationError reports an author below the proposal gate.
type InsufficientReputationError struct {
	Have int64
	Need int64
}

func (e *InsufficientReputationError) Error() string {
	return fmt.Sprintf("insufficient reputation: have %d, need %d", e.Have, e.Need)
}

// InsufficientVoteCreditsError reports a quadratic vote whose cost exceeds
// the voter's remaining budget.
type InsufficientVoteCreditsError struct {
	Cost      int64
	Available int64
}

func (e *InsufficientVoteCreditsError) Error() string {
	return fmt.Sprintf("insufficient vote credits: cost %d, available %d", e.Cost, e.Available)
}
