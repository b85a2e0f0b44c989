package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tokenguard/internal/audit"
	"github.com/dropDatabas3/tokenguard/internal/cache"
	"github.com/dropDatabas3/tokenguard/internal/challenge"
	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
	"github.com/dropDatabas3/tokenguard/internal/event"
	"github.com/dropDatabas3/tokenguard/internal/store/memory"
)

func naive(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCalculateNextTimestamp(t *testing.T) {
	cases := []struct {
		interval string
		last     string
		want     string
	}{
		{"0 8 * * *", "2018-06-25 08:04:30", "2018-06-26 08:00:00"},
		{"0 8 * * *", "2018-06-24 07:05:37", "2018-06-24 08:00:00"},
		{"0 0 * * 1-5", "2018-06-29 00:00:00", "2018-07-02 00:00:00"},
		{"5 0 * 8 *", "2017-08-31 00:06:00", "2018-08-01 00:05:00"},
	}
	for _, tc := range cases {
		t.Run(tc.interval+"@"+tc.last, func(t *testing.T) {
			task := &repository.PeriodicTask{
				Name:     "t",
				Interval: tc.interval,
				LastRuns: map[string]time.Time{"foo": naive(tc.last)},
			}
			next, err := CalculateNextTimestamp(task, "foo")
			require.NoError(t, err)
			assert.Equal(t, naive(tc.want), next)
			assert.Equal(t, time.UTC, next.Location())
		})
	}
}

func TestCalculateNextTimestampIgnoresZone(t *testing.T) {
	zone := time.FixedZone("UTC+3", 3*3600)
	task := &repository.PeriodicTask{
		Interval: "0 8 * * *",
		LastRuns: map[string]time.Time{"foo": time.Date(2018, 6, 24, 7, 5, 37, 0, zone)},
	}
	next, err := CalculateNextTimestamp(task, "foo")
	require.NoError(t, err)
	assert.Equal(t, naive("2018-06-24 08:00:00"), next)
}

func TestCalculateNextTimestampErrors(t *testing.T) {
	task := &repository.PeriodicTask{
		Interval: "every two days",
		LastRuns: map[string]time.Time{"foo": naive("2018-06-25 08:04:30")},
	}
	_, err := CalculateNextTimestamp(task, "foo")
	assert.ErrorIs(t, err, ErrInvalidInterval)

	task.Interval = "0 8 * * *"
	_, err = CalculateNextTimestamp(task, "bar")
	assert.ErrorIs(t, err, ErrNoLastRun)
}

type fixture struct {
	conn    *memory.Conn
	sched   *Scheduler
	modules *Modules
	runner  *Runner
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	conn := memory.New()
	ledgers, err := audit.NewFactory(audit.Options{Repo: conn.Audit(), ServerName: "node1"})
	require.NoError(t, err)
	mods := NewModules(ModuleDeps{
		Challenges: challenge.New(conn.Challenges()),
		Audit:      ledgers,
		Tokens:     conn.Tokens(),
		Cache:      cache.NewMemory(""),
		Now:        func() time.Time { return now },
	})
	s := New(conn.PeriodicTasks(), mods)
	r := NewRunner(s, mods)
	r.now = func() time.Time { return now }
	return &fixture{conn: conn, sched: s, modules: mods, runner: r}
}

// failing es un módulo que siempre falla.
type failing struct{}

func (failing) Name() string               { return "failing" }
func (failing) Options() map[string]string { return nil }
func (failing) Run(context.Context, *repository.PeriodicTask) error {
	return errors.New("boom")
}

func (f *fixture) saveTask(t *testing.T, task repository.PeriodicTask) int64 {
	t.Helper()
	id, err := f.conn.PeriodicTasks().Save(context.Background(), &task)
	require.NoError(t, err)
	return id
}

func TestRecordRunFailurePolicy(t *testing.T) {
	ctx := context.Background()
	last := naive("2018-06-25 08:04:30")
	now := naive("2018-06-26 09:00:00")

	for _, retry := range []bool{false, true} {
		f := newFixture(t, now)
		f.modules.m["failing"] = failing{}
		id := f.saveTask(t, repository.PeriodicTask{
			Name: "task", Active: true, RetryIfFailed: retry, Interval: "0 8 * * *",
			Nodes: []string{"foo"}, TaskModule: "failing",
			LastRuns: map[string]time.Time{"foo": last},
		})

		n, err := f.runner.RunDue(ctx, "foo", now)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := f.sched.Get(ctx, id)
		require.NoError(t, err)
		if retry {
			assert.Equal(t, last, got.LastRuns["foo"], "retry keeps last run")
		} else {
			assert.Equal(t, now, got.LastRuns["foo"], "failure still advances")
		}
	}
}

func TestDueFiltersByNodeAndTime(t *testing.T) {
	ctx := context.Background()
	now := naive("2018-06-26 09:00:00")
	f := newFixture(t, now)

	f.saveTask(t, repository.PeriodicTask{
		Name: "due", Active: true, Interval: "0 8 * * *", Nodes: []string{"foo"},
		TaskModule: ModuleChallengeCleanup, Ordering: 2,
		LastRuns: map[string]time.Time{"foo": naive("2018-06-25 08:04:30")},
	})
	f.saveTask(t, repository.PeriodicTask{
		Name: "not-yet", Active: true, Interval: "0 8 * * *", Nodes: []string{"foo"},
		TaskModule: ModuleChallengeCleanup,
		LastRuns:   map[string]time.Time{"foo": naive("2018-06-26 08:30:00")},
	})
	f.saveTask(t, repository.PeriodicTask{
		Name: "other-node", Active: true, Interval: "0 8 * * *", Nodes: []string{"bar"},
		TaskModule: ModuleChallengeCleanup,
		LastRuns:   map[string]time.Time{"bar": naive("2018-06-25 08:04:30")},
	})
	f.saveTask(t, repository.PeriodicTask{
		Name: "inactive", Active: false, Interval: "0 8 * * *", Nodes: []string{"foo"},
		TaskModule: ModuleChallengeCleanup,
		LastRuns:   map[string]time.Time{"foo": naive("2018-06-25 08:04:30")},
	})
	f.saveTask(t, repository.PeriodicTask{
		Name: "broken", Active: true, Interval: "every two days", Nodes: []string{"foo"},
		TaskModule: ModuleChallengeCleanup,
		LastRuns:   map[string]time.Time{"foo": naive("2018-06-25 08:04:30")},
	})

	due, err := f.sched.Due(ctx, "foo", now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due", due[0].Name)
}

func TestSaveValidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Now())

	_, err := f.sched.Save(ctx, &repository.PeriodicTask{Name: "x", Interval: "bogus", Nodes: []string{"a"}, TaskModule: ModuleSimpleStats})
	assert.ErrorIs(t, err, repository.ErrInvalidInput)
	_, err = f.sched.Save(ctx, &repository.PeriodicTask{Name: "x", Interval: "* * * * *", TaskModule: ModuleSimpleStats})
	assert.ErrorIs(t, err, repository.ErrInvalidInput)
	_, err = f.sched.Save(ctx, &repository.PeriodicTask{Name: "x", Interval: "* * * * *", Nodes: []string{"a"}, TaskModule: "nope"})
	assert.ErrorIs(t, err, repository.ErrInvalidInput)

	id, err := f.sched.Save(ctx, &repository.PeriodicTask{Name: "x", Interval: "*/5 * * * *", Nodes: []string{"a", "b"}, TaskModule: ModuleSimpleStats})
	require.NoError(t, err)
	got, err := f.sched.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, got.LastRuns, 2)

	next, err := f.sched.Next(got)
	require.NoError(t, err)
	assert.Len(t, next, 2)
}

func TestRunTaskRequiresNode(t *testing.T) {
	ctx := context.Background()
	now := naive("2018-06-26 09:00:00")
	f := newFixture(t, now)
	id := f.saveTask(t, repository.PeriodicTask{
		Name: "stats", Active: true, Interval: "0 8 * * *", Nodes: []string{"foo"},
		TaskModule: ModuleSimpleStats,
	})

	assert.ErrorIs(t, f.runner.RunTask(ctx, id, "bar"), repository.ErrInvalidInput)
	require.NoError(t, f.runner.RunTask(ctx, id, "foo"))

	got, err := f.sched.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, now, got.LastRuns["foo"])
}

func TestChallengeCleanupModule(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	f := newFixture(t, now.Add(time.Hour))

	store := challenge.New(f.conn.Challenges(), challenge.WithClock(func() time.Time { return now }))
	_, err := store.Create(ctx, "HOTP0001", "otp", nil, time.Minute)
	require.NoError(t, err)

	task := &repository.PeriodicTask{Name: "cleanup"}
	require.NoError(t, f.modules.Get(ModuleChallengeCleanup).Run(ctx, task))

	left, err := store.ForSerial(ctx, "HOTP0001")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestEventCounterModuleResets(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory("")
	mods := NewModules(ModuleDeps{Cache: c})

	_, err := c.Incr(ctx, event.CounterKeyPrefix+"fails", 3)
	require.NoError(t, err)

	task := &repository.PeriodicTask{Name: "cnt", Options: map[string]string{"counters": "fails, other", "reset_cnt": "true"}}
	require.NoError(t, mods.Get(ModuleEventCounter).Run(ctx, task))

	v, err := event.ReadCounter(ctx, c, "fails")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestModuleWithoutDependencyFails(t *testing.T) {
	mods := NewModules(ModuleDeps{})
	for _, name := range mods.Names() {
		err := mods.Get(name).Run(context.Background(), &repository.PeriodicTask{Name: name})
		assert.ErrorIs(t, err, errMissingDep, name)
	}
}

func TestParseAge(t *testing.T) {
	d, err := ParseAge("30d")
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, d)

	d, err = ParseAge("12h")
	require.NoError(t, err)
	assert.Equal(t, 12*time.Hour, d)

	_, err = ParseAge("xd")
	assert.Error(t, err)
}

func TestLoopStopsOnCancel(t *testing.T) {
	f := newFixture(t, time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.runner.Loop(ctx, "foo", 5*time.Millisecond) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}
