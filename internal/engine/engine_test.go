package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/goods-scheduler/internal/bus"
	"github.com/example/goods-scheduler/internal/config"
	"github.com/example/goods-scheduler/internal/exchange"
	"github.com/example/goods-scheduler/internal/probe"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls map[uuid.UUID]int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{calls: make(map[uuid.UUID]int)}
}

func (f *fakeRunner) Run(ctx context.Context, plan exchange.Plan) (exchange.Status, exchange.Result) {
	f.mu.Lock()
	f.calls[plan.ID]++
	f.mu.Unlock()
	return exchange.StatusSuccess, exchange.Result{Plan: plan, Status: exchange.StatusSuccess, CompletedAt: time.Now()}
}

func (f *fakeRunner) callCount(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type fakeProber struct {
	res probe.Result
}

func (f fakeProber) Measure(ctx context.Context) probe.Result { return f.res }

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func planAt(target time.Time) exchange.Plan {
	return exchange.Plan{
		ID:      uuid.New(),
		Account: exchange.Account{UID: "123456"},
		Good:    exchange.Good{ID: "g1", Name: "test good", Category: exchange.CategoryVirtual, Time: target},
	}
}

func testPref() config.Preference {
	return config.Preference{Timezone: "UTC"}
}

// newTestEngine wires an engine whose attempt results land on the returned
// channel.
func newTestEngine(t *testing.T, runner AttemptRunner, prober ProbeRunner) (*Engine, <-chan exchange.Result) {
	t.Helper()
	b := bus.New(quietLog())
	results := make(chan exchange.Result, 128)
	b.Subscribe(bus.AttemptCompleted, func(payload any) {
		if res, ok := payload.(exchange.Result); ok {
			results <- res
		}
	})
	return New(runner, prober, b, quietLog()), results
}

func TestInitializeBadTimezoneIsConfigurationError(t *testing.T) {
	e, _ := newTestEngine(t, newFakeRunner(), nil)
	err := e.Initialize(nil, config.Preference{Timezone: "Mars/Olympus"})
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestStartBeforeInitialize(t *testing.T) {
	e, _ := newTestEngine(t, newFakeRunner(), nil)
	assert.ErrorIs(t, e.Start(), ErrNotInitialized)
}

func TestPastDuePlanFiresImmediately(t *testing.T) {
	runner := newFakeRunner()
	e, results := newTestEngine(t, runner, nil)

	p := planAt(time.Now().Add(-time.Hour))
	require.NoError(t, e.Initialize([]exchange.Plan{p}, testPref()))
	require.NoError(t, e.Start())
	defer e.Stop()

	select {
	case res := <-results:
		assert.Equal(t, p.ID, res.Plan.ID)
		assert.Equal(t, exchange.StatusSuccess, res.Status)
	case <-time.After(time.Second):
		t.Fatal("past-due plan did not fire")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t, newFakeRunner(), nil)
	require.NoError(t, e.Initialize(nil, testPref()))
	require.NoError(t, e.Start())
	require.NoError(t, e.Start())
	e.Stop()
}

func TestConcurrentPlansFireIndependently(t *testing.T) {
	const n = 50
	runner := newFakeRunner()
	e, results := newTestEngine(t, runner, nil)

	target := time.Now().Add(50 * time.Millisecond)
	ps := make([]exchange.Plan, n)
	for i := range ps {
		ps[i] = planAt(target)
	}
	require.NoError(t, e.Initialize(ps, testPref()))
	require.NoError(t, e.Start())
	defer e.Stop()

	seen := make(map[uuid.UUID]int, n)
	deadline := time.After(3 * time.Second)
	for len(seen) < n {
		select {
		case res := <-results:
			seen[res.Plan.ID]++
			assert.Equal(t, "123456", res.Plan.Account.UID)
		case <-deadline:
			t.Fatalf("only %d of %d plans produced a result", len(seen), n)
		}
	}
	for _, p := range ps {
		assert.Equal(t, 1, seen[p.ID], "exactly one result per plan")
		assert.Equal(t, 1, runner.callCount(p.ID), "exactly one dispatch per plan")
	}
}

func TestStopRemovesPendingJobs(t *testing.T) {
	runner := newFakeRunner()
	e, results := newTestEngine(t, runner, nil)

	p := planAt(time.Now().Add(time.Hour))
	require.NoError(t, e.Initialize([]exchange.Plan{p}, testPref()))
	require.NoError(t, e.Start())
	e.Stop()

	assert.Empty(t, e.Snapshot(), "pending jobs must be dropped on stop")

	// Restarting must not refire removed jobs.
	require.NoError(t, e.Start())
	defer e.Stop()
	select {
	case <-results:
		t.Fatal("removed job refired after restart")
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, 0, runner.callCount(p.ID))
}

func TestStopDoesNotDropFiredEntries(t *testing.T) {
	runner := newFakeRunner()
	e, results := newTestEngine(t, runner, nil)

	p := planAt(time.Now().Add(-time.Minute))
	require.NoError(t, e.Initialize([]exchange.Plan{p}, testPref()))
	require.NoError(t, e.Start())
	<-results
	e.Stop()

	snap := e.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, JobFired, snap[0].State)
}

func TestAddPlanPastDueFiresImmediately(t *testing.T) {
	runner := newFakeRunner()
	e, results := newTestEngine(t, runner, nil)

	require.NoError(t, e.Initialize(nil, testPref()))
	require.NoError(t, e.Start())
	defer e.Stop()

	p := planAt(time.Now().Add(-time.Second))
	require.NoError(t, e.AddPlan(p))

	select {
	case res := <-results:
		assert.Equal(t, p.ID, res.Plan.ID)
	case <-time.After(time.Second):
		t.Fatal("late-registered past-due plan was silently dropped")
	}
}

func TestAddPlanRejectsDuplicate(t *testing.T) {
	e, _ := newTestEngine(t, newFakeRunner(), nil)
	require.NoError(t, e.Initialize(nil, testPref()))

	p := planAt(time.Now().Add(time.Hour))
	require.NoError(t, e.AddPlan(p))
	assert.Error(t, e.AddPlan(p))
}

func TestSnapshotOrderedByFireTime(t *testing.T) {
	e, _ := newTestEngine(t, newFakeRunner(), nil)

	later := planAt(time.Now().Add(2 * time.Hour))
	sooner := planAt(time.Now().Add(time.Hour))
	require.NoError(t, e.Initialize([]exchange.Plan{later, sooner}, testPref()))

	snap := e.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, sooner.ID, snap[0].Plan.ID)
	assert.Equal(t, later.ID, snap[1].Plan.ID)
	assert.Equal(t, JobPending, snap[0].State)
}

func TestDuplicatePlansCollapseToOneJob(t *testing.T) {
	e, _ := newTestEngine(t, newFakeRunner(), nil)

	p := planAt(time.Now().Add(time.Hour))
	require.NoError(t, e.Initialize([]exchange.Plan{p, p}, testPref()))
	assert.Len(t, e.Snapshot(), 1)
}

func TestProbePublishesAndUpdatesLastValue(t *testing.T) {
	b := bus.New(quietLog())
	probes := make(chan probe.Result, 16)
	b.Subscribe(bus.ProbeCompleted, func(payload any) {
		if res, ok := payload.(probe.Result); ok {
			probes <- res
		}
	})

	want := probe.Result{State: probe.StateOK, LatencyMS: 12.34, CheckedAt: time.Now()}
	e := New(newFakeRunner(), fakeProber{res: want}, b, quietLog())

	pref := testPref()
	pref.EnableConnectionTest = true
	pref.ConnectionTestInterval = 20 * time.Millisecond
	require.NoError(t, e.Initialize(nil, pref))

	assert.Equal(t, probe.StateUntested, e.LastProbe().State)

	require.NoError(t, e.Start())
	defer e.Stop()

	select {
	case res := <-probes:
		assert.Equal(t, probe.StateOK, res.State)
		assert.Equal(t, 12.34, res.LatencyMS)
	case <-time.After(time.Second):
		t.Fatal("probe cycle never published")
	}
	assert.Eventually(t, func() bool {
		return e.LastProbe().State == probe.StateOK
	}, time.Second, 10*time.Millisecond)
}

func TestStopCancelsProbe(t *testing.T) {
	b := bus.New(quietLog())
	var mu sync.Mutex
	count := 0
	b.Subscribe(bus.ProbeCompleted, func(any) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	e := New(newFakeRunner(), fakeProber{res: probe.Result{State: probe.StateOK}}, b, quietLog())
	pref := testPref()
	pref.EnableConnectionTest = true
	pref.ConnectionTestInterval = 10 * time.Millisecond
	require.NoError(t, e.Initialize(nil, pref))
	require.NoError(t, e.Start())

	time.Sleep(50 * time.Millisecond)
	e.Stop()

	mu.Lock()
	stopped := count
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	after := count
	mu.Unlock()
	assert.Equal(t, stopped, after, "probe must not fire after stop")
}
