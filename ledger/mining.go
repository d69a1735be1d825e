package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/goodturn-social/goodturn/models"
)

// GenesisPrevHash is the sentinel previous-hash for the first block.
var GenesisPrevHash = strings.Repeat("0", 64)

// MaxMiningAttempts bounds the nonce search so block creation can never
// spin indefinitely.
const MaxMiningAttempts = 10_000

// BlockHash computes the deterministic digest over a block's canonical
// serialization, including the nonce. Any field change invalidates it.
func BlockHash(b *models.TrustBlock) string {
	canonical := fmt.Sprintf("%d|%s|%s|%d|%s|%d|%d",
		b.Height, b.PrevHash, b.Type, b.ActorUID, b.Content, b.CreatedAt.Unix(), b.Nonce)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// HashMeetsDifficulty reports whether a hex digest has the required run of
// leading zero characters.
func HashMeetsDifficulty(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if difficulty > len(hash) {
		return false
	}
	return strings.HasPrefix(hash, strings.Repeat("0", difficulty))
}

// mine searches nonce values from zero until the block hash satisfies the
// difficulty predicate, setting Nonce and Hash on success. The search is
// CPU-bound and must never run inside a database transaction.
func mine(b *models.TrustBlock) error {
	for nonce := uint64(0); nonce < MaxMiningAttempts; nonce++ {
		b.Nonce = nonce
		h := BlockHash(b)
		if HashMeetsDifficulty(h, b.Difficulty) {
			b.Hash = h
			miningAttempts.Observe(float64(nonce + 1))
			return nil
		}
	}
	miningExhausted.Inc()
	return ErrMiningExhausted
}
