package ledger

import (
	"context"
	"fmt"
)

const verifyBatchSize = 500

// VerifyChain walks the whole ledger in height order and checks that each
// block's height increments by one, its previous-hash links to its
// predecessor, and its hash both recomputes from its fields and satisfies
// the difficulty recorded at creation time. Returns the first violation.
func (l *Ledger) VerifyChain(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "VerifyChain")
	defer span.End()

	expectHeight := uint64(1)
	prevHash := GenesisPrevHash

	cursor := uint64(0)
	for {
		batch, err := l.ListBlocks(ctx, cursor, verifyBatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		for i := range batch {
			b := &batch[i]
			if b.Height != expectHeight {
				return fmt.Errorf("chain gap at height %d: expected %d", b.Height, expectHeight)
			}
			if b.PrevHash != prevHash {
				return fmt.Errorf("broken link at height %d: prev_hash %s does not match %s", b.Height, b.PrevHash, prevHash)
			}
			if got := BlockHash(b); got != b.Hash {
				return fmt.Errorf("hash mismatch at height %d: stored %s, computed %s", b.Height, b.Hash, got)
			}
			if !HashMeetsDifficulty(b.Hash, b.Difficulty) {
				return fmt.Errorf("difficulty violation at height %d: %s does not satisfy %d", b.Height, b.Hash, b.Difficulty)
			}

			expectHeight = b.Height + 1
			prevHash = b.Hash
			cursor = b.Height
		}
	}
}
