package governance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var proposalsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "governance_proposals_created",
	Help: "Number of proposals created, by type",
}, []string{"type"})

var proposalVotes = promauto.NewCounter(prometheus.CounterOpts{
	Name: "governance_proposal_votes",
	Help: "Number of quadratic votes recorded",
})

var proposalsApproved = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "governance_proposals_approved",
	Help: "Number of proposals approved, by type",
}, []string{"type"})

var proposalsRejected = promauto.NewCounter(prometheus.CounterOpts{
	Name: "governance_proposals_rejected",
	Help: "Number of proposals rejected at the voting deadline",
})

var executionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "governance_execution_failures",
	Help: "Number of proposal executions that failed after approval",
}, []string{"type"})
