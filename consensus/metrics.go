package consensus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var validationsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "consensus_validations_recorded",
	Help: "Number of validation votes recorded, by decision",
}, []string{"decision"})

var finalizations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "consensus_finalizations",
	Help: "Number of blocks finalized, by outcome",
}, []string{"status"})
