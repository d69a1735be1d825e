package jury

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var casesOpened = promauto.NewCounter(prometheus.CounterOpts{
	Name: "jury_cases_opened",
	Help: "Number of moderation cases opened",
})

var votesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "jury_votes_recorded",
	Help: "Number of moderation votes recorded, by decision",
}, []string{"decision"})

var casesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "jury_cases_executed",
	Help: "Number of moderation cases executed, by decision",
}, []string{"decision"})

var casesExpired = promauto.NewCounter(prometheus.CounterOpts{
	Name: "jury_cases_expired",
	Help: "Number of cases force-executed at deadline below quorum",
})
