package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var blocksCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_blocks_created",
	Help: "Number of trust blocks appended, by type",
}, []string{"type"})

var miningAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "ledger_mining_attempts",
	Help:    "Nonce search attempts per successfully mined block",
	Buckets: prometheus.ExponentialBuckets(1, 4, 8),
})

var miningExhausted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ledger_mining_exhausted",
	Help: "Number of block creations that hit the mining attempt cap",
})

var appendConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ledger_append_conflicts",
	Help: "Number of height conflicts on concurrent block appends",
})
