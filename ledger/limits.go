package ledger

import (
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

// actorLimits throttles block creation per actor. The limiter map is lazily
// populated; abandoned actors cost one small struct each.
type actorLimits struct {
	limiters *xsync.MapOf[uint64, *rate.Limiter]

	perMinute rate.Limit
	burst     int
}

func newActorLimits() *actorLimits {
	return &actorLimits{
		limiters:  xsync.NewMapOf[uint64, *rate.Limiter](),
		perMinute: rate.Limit(10.0 / 60.0),
		burst:     5,
	}
}

func (a *actorLimits) allow(uid uint64) bool {
	lim, _ := a.limiters.LoadOrCompute(uid, func() *rate.Limiter {
		return rate.NewLimiter(a.perMinute, a.burst)
	})
	return lim.Allow()
}
