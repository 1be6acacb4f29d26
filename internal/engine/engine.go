package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/example/goods-scheduler/internal/bus"
	"github.com/example/goods-scheduler/internal/config"
	"github.com/example/goods-scheduler/internal/exchange"
	"github.com/example/goods-scheduler/internal/probe"
)

const defaultProbeInterval = 30 * time.Second

var (
	ErrNotInitialized = errors.New("engine not initialized")
	ErrRunning        = errors.New("engine is running")
)

// AttemptRunner executes one exchange try for a plan.
type AttemptRunner interface {
	Run(ctx context.Context, plan exchange.Plan) (exchange.Status, exchange.Result)
}

// ProbeRunner measures reachability of the exchange API host.
type ProbeRunner interface {
	Measure(ctx context.Context) probe.Result
}

// Engine owns the timetable: one one-shot job per plan firing at the plan's
// target time, plus one recurring connectivity-probe job. A single driver
// goroutine does all timetable bookkeeping; each due job body is dispatched on
// its own goroutine so one slow attempt never delays another plan's fire time
// or the probe cadence. Outcomes flow to the bus, never back to the caller.
type Engine struct {
	runner AttemptRunner
	prober ProbeRunner
	bus    *bus.Bus
	log    logrus.FieldLogger

	mu            sync.Mutex
	jobs          map[uuid.UUID]*job
	loc           *time.Location
	probeEnabled  bool
	probeInterval time.Duration
	initialized   bool
	running       bool
	cancel        context.CancelFunc
	lastProbe     probe.Result

	wg   sync.WaitGroup // driver + probe loops, not attempt bodies
	wake chan struct{}

	now func() time.Time
}

func New(runner AttemptRunner, prober ProbeRunner, b *bus.Bus, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		runner: runner,
		prober: prober,
		bus:    b,
		log:    log,
		jobs:   make(map[uuid.UUID]*job),
		wake:   make(chan struct{}, 1),
		now:    time.Now,
	}
}

// Initialize builds the timetable from plans and preference. A target time
// already in the past is registered anyway and fires on the first driver tick
// (catch-up: a human may start the engine slightly late). Timezone resolution
// failure is a configuration error and aborts startup.
func (e *Engine) Initialize(plans []exchange.Plan, pref config.Preference) error {
	loc, err := time.LoadLocation(pref.Timezone)
	if err != nil {
		return fmt.Errorf("%w: resolve timezone %q: %v", config.ErrInvalid, pref.Timezone, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrRunning
	}

	e.loc = loc
	e.probeEnabled = pref.EnableConnectionTest && e.prober != nil
	e.probeInterval = pref.ConnectionTestInterval
	if e.probeInterval <= 0 {
		e.probeInterval = defaultProbeInterval
	}
	e.lastProbe = probe.Untested()

	e.jobs = make(map[uuid.UUID]*job, len(plans))
	for _, p := range plans {
		if _, dup := e.jobs[p.ID]; dup {
			e.log.WithField("plan", p.ID).Warn("engine: duplicate plan skipped")
			continue
		}
		e.jobs[p.ID] = &job{plan: p, fireAt: p.TargetTime(), state: JobPending}
	}
	e.initialized = true
	e.log.WithField("plans", len(e.jobs)).Info("engine: timetable initialized")
	return nil
}

// Start begins dispatching due jobs and returns immediately. Calling it on a
// running engine is a no-op.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return ErrNotInitialized
	}
	if e.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true

	e.wg.Add(1)
	go e.run(ctx)
	if e.probeEnabled {
		e.wg.Add(1)
		go e.runProbe(ctx)
	}
	e.log.Info("engine: started")
	return nil
}

// Stop halts dispatch: pending one-shot jobs are removed from the timetable
// and the recurring probe is cancelled. Attempts whose bodies are already
// executing are left to finish; their outcomes still reach the bus.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.cancel = nil
	for id, j := range e.jobs {
		if j.state == JobPending {
			delete(e.jobs, id)
		}
	}
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
	e.log.Info("engine: stopped")
}

// AddPlan registers a one-shot job on an initialized engine. A plan whose
// target time has already passed fires immediately, never silently dropped.
func (e *Engine) AddPlan(p exchange.Plan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return ErrNotInitialized
	}
	if _, dup := e.jobs[p.ID]; dup {
		return fmt.Errorf("plan %s already scheduled", p.ID)
	}
	e.jobs[p.ID] = &job{plan: p, fireAt: p.TargetTime(), state: JobPending}
	e.wakeDriver()
	return nil
}

// Snapshot returns the timetable as stable copies, sorted by fire time.
func (e *Engine) Snapshot() []JobView {
	e.mu.Lock()
	out := make([]JobView, 0, len(e.jobs))
	for _, j := range e.jobs {
		out = append(out, JobView{Plan: j.plan, FireAt: j.fireAt, State: j.state})
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, k int) bool { return out[i].FireAt.Before(out[k].FireAt) })
	return out
}

// LastProbe returns the most recent probe result, Untested before the first
// cycle completes.
func (e *Engine) LastProbe() probe.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastProbe
}

// Location reports the timezone the engine renders times in.
func (e *Engine) Location() *time.Location {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loc == nil {
		return time.Local
	}
	return e.loc
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	for {
		e.dispatchDue()

		next, ok := e.nextFireTime()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-e.wake:
			}
			continue
		}

		d := time.Until(next)
		if d < 0 {
			d = 0
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-e.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// dispatchDue marks every due pending job as fired and launches its attempt
// body. Marking happens before launch, so a plan can never be dispatched
// twice.
func (e *Engine) dispatchDue() {
	now := e.now()

	e.mu.Lock()
	var due []exchange.Plan
	for _, j := range e.jobs {
		if j.state == JobPending && !j.fireAt.After(now) {
			j.state = JobFired
			due = append(due, j.plan)
		}
	}
	loc := e.loc
	e.mu.Unlock()

	for _, plan := range due {
		plan := plan
		e.log.WithFields(logrus.Fields{
			"plan":   plan.ID,
			"good":   plan.Good.Name,
			"target": plan.TargetTime().In(loc).Format(time.RFC3339),
		}).Info("engine: one-shot job due")
		// Attempts run on a background context: Stop halts scheduling of
		// new work but never interrupts an in-flight exchange call.
		go func() {
			_, res := e.runner.Run(context.Background(), plan)
			e.bus.Publish(bus.AttemptCompleted, res)
		}()
	}
}

func (e *Engine) runProbe(ctx context.Context) {
	defer e.wg.Done()
	t := time.NewTicker(e.probeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			res := e.prober.Measure(ctx)
			e.mu.Lock()
			e.lastProbe = res
			e.mu.Unlock()
			e.bus.Publish(bus.ProbeCompleted, res)
		}
	}
}

func (e *Engine) nextFireTime() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var next time.Time
	found := false
	for _, j := range e.jobs {
		if j.state != JobPending {
			continue
		}
		if !found || j.fireAt.Before(next) {
			next = j.fireAt
			found = true
		}
	}
	return next, found
}

func (e *Engine) wakeDriver() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}
