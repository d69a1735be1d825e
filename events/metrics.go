package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "events_broadcast",
	Help: "Number of engine events broadcast, by kind",
}, []string{"kind"})

var eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "events_dropped",
	Help: "Number of events dropped due to slow subscribers",
})
