package temporal

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bradleyjkemp/cupaloy"
	"github.com/infolead/router/go/kanban"
	"github.com/infolead/router/go/quota"
	"github.com/infolead/router/go/tier"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, now func() time.Time) *Scheduler {
	var dir = t.TempDir()
	var tracker, err = quota.NewTracker(quota.Config{
		StatePath: filepath.Join(dir, "quota-tracking.json"),
		Now:       now,
	})
	require.NoError(t, err)

	s, err := NewScheduler(Config{
		StatePath: filepath.Join(dir, "temporal-queues.json"),
		Location:  time.UTC,
		Now:       now,
	}, tracker)
	require.NoError(t, err)
	return s
}

func at(hour int) func() time.Time {
	return func() time.Time {
		return time.Date(2025, 6, 10, hour, 30, 0, 0, time.UTC)
	}
}

func item(id, desc string, priority int, deps ...string) Item {
	return Item{
		WorkItem: kanban.WorkItem{
			ID:                  id,
			Description:         desc,
			Priority:            priority,
			EstimatedComplexity: 2,
			Dependencies:        deps,
		},
	}
}

func TestClassifyTiming(t *testing.T) {
	var cases = []struct {
		request string
		flags   Flags
		expect  Timing
	}{
		{"help me pick a database", Flags{}, Sync},
		{"delete old branches", Flags{}, Sync},
		{"search for unused exports across the repo", Flags{}, Async},
		{"list all TODO markers", Flags{}, Async},
		{"rename the config field", Flags{}, Either},
		{"rename the config field", Flags{BatchMode: true}, Async},
		{"search for unused exports", Flags{RequiresApproval: true}, Sync},
	}
	for _, tc := range cases {
		require.Equal(t, tc.expect, ClassifyTiming(tc.request, tc.flags), tc.request)
	}
}

func TestEstimateTier(t *testing.T) {
	require.Equal(t, tier.Strong, EstimateTier("Formalize the retry proof"))
	require.Equal(t, tier.Mid, EstimateTier("Analyze allocation hotspots"))
	require.Equal(t, tier.Cheap, EstimateTier("Fix the typo in README"))
}

func TestAddWorkRoutesByTiming(t *testing.T) {
	var s = newTestScheduler(t, at(14)) // active hours

	require.NoError(t, s.AddWork(item("sync-1", "review the schema migration", 5)))
	require.NoError(t, s.AddWork(item("async-1", "audit dependency licenses", 5)))
	require.NoError(t, s.AddWork(item("either-1", "rename the config field", 5)))

	var q, err = s.Snapshot()
	require.NoError(t, err)
	require.Len(t, q.SyncQueue, 2) // sync-1 plus either-1 during active hours
	require.Len(t, q.AsyncQueue, 1)
	require.Equal(t, "async-1", q.AsyncQueue[0].ID)
}

func TestAddWorkEitherOutsideActiveHours(t *testing.T) {
	var s = newTestScheduler(t, at(23))

	require.NoError(t, s.AddWork(item("either-1", "rename the config field", 5)))

	var q, err = s.Snapshot()
	require.NoError(t, err)
	require.Empty(t, q.SyncQueue)
	require.Len(t, q.AsyncQueue, 1)
}

func TestAddWorkRejectsDuplicateAndInvalid(t *testing.T) {
	var s = newTestScheduler(t, at(23))

	require.NoError(t, s.AddWork(item("w-1", "audit dependency licenses", 5)))
	require.Error(t, s.AddWork(item("w-1", "audit dependency licenses", 5)))
	require.Error(t, s.AddWork(item("w-2", "", 5)))
}

func TestScheduleOvernightPriorityAndBudgets(t *testing.T) {
	var s = newTestScheduler(t, at(20))

	var low = item("low", "scan all handlers for missing timeouts", 3)
	var high = item("high", "audit dependency licenses", 9)
	high.EstimatedDurationMinutes = 25
	require.NoError(t, s.AddWork(low))
	require.NoError(t, s.AddWork(high))

	var scheduled, err = s.ScheduleOvernightWork()
	require.NoError(t, err)
	require.Len(t, scheduled, 2)
	require.Equal(t, "high", scheduled[0].ID)
	require.Equal(t, StatusScheduled, scheduled[0].Status)
	require.NotEmpty(t, scheduled[0].ScheduledFor)
}

func TestScheduleOvernightTimeBudget(t *testing.T) {
	// 23:30 leaves 30 minutes to midnight.
	var s = newTestScheduler(t, at(23))

	var big = item("big", "benchmark the query planner", 9)
	big.EstimatedDurationMinutes = 45
	var small = item("small", "scan all handlers for missing timeouts", 3)
	small.EstimatedDurationMinutes = 20
	require.NoError(t, s.AddWork(big))
	require.NoError(t, s.AddWork(small))

	var scheduled, err = s.ScheduleOvernightWork()
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	require.Equal(t, "small", scheduled[0].ID)

	var q, qerr = s.Snapshot()
	require.NoError(t, qerr)
	require.Len(t, q.AsyncQueue, 1)
	require.Equal(t, "big", q.AsyncQueue[0].ID)
	require.Equal(t, kanban.StatusQueued, q.AsyncQueue[0].Status)
}

func TestScheduleOvernightDependencyGate(t *testing.T) {
	var s = newTestScheduler(t, at(20))

	require.NoError(t, s.AddWork(item("child", "scan all handlers", 8, "parent")))

	var scheduled, err = s.ScheduleOvernightWork()
	require.NoError(t, err)
	require.Empty(t, scheduled)

	// Once the parent is recorded complete, the child schedules.
	require.NoError(t, s.withQueues(func(q *Queues) error {
		q.CompletedOvernight = append(q.CompletedOvernight, item("parent", "gather handler inventory", 5))
		return nil
	}))
	scheduled, err = s.ScheduleOvernightWork()
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	require.Equal(t, "child", scheduled[0].ID)
}

func TestScheduleOvernightIdempotent(t *testing.T) {
	var s = newTestScheduler(t, at(20))

	require.NoError(t, s.AddWork(item("a", "audit dependency licenses", 7)))
	require.NoError(t, s.AddWork(item("b", "scan all handlers for missing timeouts", 4)))

	var first, err = s.ScheduleOvernightWork()
	require.NoError(t, err)
	second, err := s.ScheduleOvernightWork()
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		require.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestMarkCompletedTruncatesResult(t *testing.T) {
	var s = newTestScheduler(t, at(20))

	require.NoError(t, s.AddWork(item("a", "audit dependency licenses", 7)))
	_, err := s.ScheduleOvernightWork()
	require.NoError(t, err)

	var long string
	for i := 0; i < 60; i++ {
		long += "0123456789"
	}
	require.NoError(t, s.MarkCompleted("a", long))

	var q, qerr = s.Snapshot()
	require.NoError(t, qerr)
	require.Empty(t, q.ScheduledAsync)
	require.Len(t, q.CompletedOvernight, 1)
	require.Len(t, q.CompletedOvernight[0].Result, maxStoredResult)
	require.Equal(t, kanban.StatusCompleted, q.CompletedOvernight[0].Status)

	require.Error(t, s.MarkCompleted("a", "again"))
}

func TestMarkFailed(t *testing.T) {
	var s = newTestScheduler(t, at(20))

	require.NoError(t, s.AddWork(item("a", "audit dependency licenses", 7)))
	_, err := s.ScheduleOvernightWork()
	require.NoError(t, err)

	require.NoError(t, s.MarkFailed("a", "agent crashed"))
	var q, qerr = s.Snapshot()
	require.NoError(t, qerr)
	require.Len(t, q.FailedWork, 1)
	require.Equal(t, "agent crashed", q.FailedWork[0].Error)
}

func TestOvernightRunExecutesInDependencyOrder(t *testing.T) {
	var s = newTestScheduler(t, at(20))

	require.NoError(t, s.AddWork(item("first", "gather handler inventory", 5)))
	require.NoError(t, s.AddWork(item("second", "scan all handlers", 8, "first")))
	_, err := s.ScheduleOvernightWork()
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	var exec = NewOvernightExecutor(ExecutorConfig{ResultsDir: t.TempDir()}, s,
		func(ctx context.Context, tr tier.Tier, w Item) (string, error) {
			mu.Lock()
			order = append(order, w.ID)
			mu.Unlock()
			return "done: " + w.ID, nil
		})

	var summary, runErr = exec.Run(context.Background())
	require.NoError(t, runErr)
	require.Equal(t, []string{"first", "second"}, order)
	require.Equal(t, "done: first", summary.Results["first"].Result)

	var q, qerr = s.Snapshot()
	require.NoError(t, qerr)
	require.Empty(t, q.ScheduledAsync)
	require.Len(t, q.CompletedOvernight, 2)
}

func TestOvernightRunFailsDependencyCycle(t *testing.T) {
	var s = newTestScheduler(t, at(20))

	// X and Y depend on each other; neither may start, and the run
	// must finish with both failed rather than hanging.
	require.NoError(t, s.withQueues(func(q *Queues) error {
		var x = item("X", "scan all handlers", 5, "Y")
		var y = item("Y", "audit dependency licenses", 5, "X")
		x.Status, y.Status = StatusScheduled, StatusScheduled
		q.ScheduledAsync = append(q.ScheduledAsync, x, y)
		return nil
	}))

	var exec = NewOvernightExecutor(ExecutorConfig{}, s,
		func(ctx context.Context, tr tier.Tier, w Item) (string, error) {
			t.Fatalf("work %s must not execute", w.ID)
			return "", nil
		})
	var summary, err = exec.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, "Blocked by: [Y]", summary.Results["X"].Error)
	require.Equal(t, "Blocked by: [X]", summary.Results["Y"].Error)

	var q, qerr = s.Snapshot()
	require.NoError(t, qerr)
	require.Empty(t, q.ScheduledAsync)
	require.Len(t, q.FailedWork, 2)
}

func TestOvernightRunContinuesPastFailures(t *testing.T) {
	var s = newTestScheduler(t, at(20))

	require.NoError(t, s.AddWork(item("bad", "audit dependency licenses", 9)))
	require.NoError(t, s.AddWork(item("good", "scan all handlers", 5)))
	_, err := s.ScheduleOvernightWork()
	require.NoError(t, err)

	var exec = NewOvernightExecutor(ExecutorConfig{MaxConcurrent: 1}, s,
		func(ctx context.Context, tr tier.Tier, w Item) (string, error) {
			if w.ID == "bad" {
				return "", fmt.Errorf("agent exited 1")
			}
			return "ok", nil
		})
	var summary, runErr = exec.Run(context.Background())
	require.NoError(t, runErr)
	require.Equal(t, "agent exited 1", summary.Results["bad"].Error)
	require.Equal(t, "ok", summary.Results["good"].Result)

	var q, qerr = s.Snapshot()
	require.NoError(t, qerr)
	require.Len(t, q.FailedWork, 1)
	require.Len(t, q.CompletedOvernight, 1)
}

func TestOvernightRunDrainsBacklogBeyondConcurrency(t *testing.T) {
	var s = newTestScheduler(t, at(20))

	// Five independent items against a single slot: the launch loop
	// must keep collecting outcomes while the semaphore is full.
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AddWork(item(fmt.Sprintf("w-%d", i), "scan all handlers", 5)))
	}
	_, err := s.ScheduleOvernightWork()
	require.NoError(t, err)

	var ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var exec = NewOvernightExecutor(ExecutorConfig{MaxConcurrent: 1}, s,
		func(ctx context.Context, tr tier.Tier, w Item) (string, error) { return "ok", nil })
	var summary, runErr = exec.Run(ctx)
	require.NoError(t, runErr)
	require.Len(t, summary.Results, 5)

	var q, qerr = s.Snapshot()
	require.NoError(t, qerr)
	require.Empty(t, q.ScheduledAsync)
	require.Len(t, q.CompletedOvernight, 5)
}

func TestOvernightRunWritesSummaryFile(t *testing.T) {
	var s = newTestScheduler(t, at(20))

	require.NoError(t, s.AddWork(item("a", "audit dependency licenses", 7)))
	_, err := s.ScheduleOvernightWork()
	require.NoError(t, err)

	var dir = t.TempDir()
	var exec = NewOvernightExecutor(ExecutorConfig{ResultsDir: dir}, s,
		func(ctx context.Context, tr tier.Tier, w Item) (string, error) { return "ok", nil })
	_, runErr := exec.Run(context.Background())
	require.NoError(t, runErr)

	var matches, globErr = filepath.Glob(filepath.Join(dir, "results-*.json"))
	require.NoError(t, globErr)
	require.Len(t, matches, 1)
}

func TestEveningReport(t *testing.T) {
	var s = newTestScheduler(t, at(20))

	var work = item("a", "analyze allocation hotspots", 7)
	work.EstimatedQuota = 8
	require.NoError(t, s.AddWork(work))
	_, err := s.ScheduleOvernightWork()
	require.NoError(t, err)

	var report, repErr = s.EveningReport()
	require.NoError(t, repErr)
	require.Len(t, report.Scheduled, 1)
	require.Equal(t, 8, report.EstimatedQuota[tier.Mid])
	require.Equal(t, quota.Unlimited, report.QuotaRemaining[tier.Cheap])

	var rendered = report.Render()
	require.Contains(t, rendered, "analyze allocation hotspots")
	require.Contains(t, rendered, "Quota budget")
}

func TestEveningReportRenderSnapshot(t *testing.T) {
	var report = EveningReport{
		Scheduled: []Item{{
			WorkItem: kanban.WorkItem{
				ID:          "w1",
				Description: "refactor the quota store",
				Priority:    7,
			},
			EstimatedQuota:           8,
			EstimatedDurationMinutes: 25,
		}},
		Deferred:       2,
		EstimatedQuota: map[tier.Tier]int{tier.Mid: 8},
		QuotaRemaining: map[tier.Tier]int{
			tier.Cheap:  quota.Unlimited,
			tier.Mid:    900,
			tier.Strong: 180,
		},
		GeneratedAt: "2025-06-10 20:30",
	}
	cupaloy.SnapshotT(t, report.Render())
}
