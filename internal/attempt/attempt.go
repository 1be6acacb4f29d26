package attempt

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/goods-scheduler/internal/exchange"
)

// Runner executes one exchange try: a jittered pre-fire delay, then the
// provider call. The delay spreads concurrent attempts so a batch firing at
// the same instant does not trip the remote service's abuse protection.
type Runner struct {
	Provider exchange.Provider
	MinDelay time.Duration
	MaxDelay time.Duration
	Log      logrus.FieldLogger
}

// Run never returns an error and never panics past this boundary: every
// failure path terminates in a status value so the engine's dispatch loop
// cannot be broken by a bad attempt.
func (r Runner) Run(ctx context.Context, plan exchange.Plan) (status exchange.Status, res exchange.Result) {
	log := r.logger().WithFields(logrus.Fields{
		"account": plan.Account.UID,
		"good":    plan.Good.Name,
	})
	defer func() {
		if p := recover(); p != nil {
			log.Errorf("attempt panicked: %v", p)
			status = exchange.StatusNetworkError
			res = exchange.Result{Plan: plan, Status: status, CompletedAt: time.Now()}
		}
	}()

	if r.Provider == nil {
		status = exchange.StatusInitRequired
		return status, exchange.Result{Plan: plan, Status: status, CompletedAt: time.Now()}
	}

	delay := r.drawDelay()
	log.WithField("jitter", delay.String()).Info("timer fired, starting exchange")
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}

	var err error
	status, err = r.Provider.Exchange(ctx, plan)
	if err != nil {
		log.WithError(err).Warn("exchange call failed")
		status = exchange.StatusNetworkError
	}
	res = exchange.Result{Plan: plan, Status: status, CompletedAt: time.Now()}
	log.WithField("status", string(status)).Info("exchange request finished")
	return status, res
}

// drawDelay picks uniformly from [MinDelay, MaxDelay].
func (r Runner) drawDelay() time.Duration {
	lo, hi := r.MinDelay, r.MaxDelay
	if lo < 0 {
		lo = 0
	}
	if hi < lo {
		hi = lo
	}
	if hi == lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
}

func (r Runner) logger() logrus.FieldLogger {
	if r.Log != nil {
		return r.Log
	}
	return logrus.StandardLogger()
}
