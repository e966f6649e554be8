package kanban

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/infolead/router/go/statefile"
	"github.com/stretchr/testify/require"
)

func testCoordinator(t *testing.T, wip int) *Coordinator {
	t.Helper()
	var c, err = NewCoordinator(Config{
		StatePath: filepath.Join(t.TempDir(), "work-queue.json"),
		WIPLimit:  wip,
		Lock:      statefile.Config{LockTimeout: time.Second, PollInterval: 5 * time.Millisecond},
	})
	require.NoError(t, err)
	return c
}

func item(id string, priority int, deps ...string) WorkItem {
	return WorkItem{
		ID:                  id,
		Description:         "work " + id,
		Priority:            priority,
		EstimatedComplexity: 3,
		Dependencies:        deps,
		Status:              StatusQueued,
	}
}

func ids(items []WorkItem) []string {
	var out []string
	for _, w := range items {
		out = append(out, w.ID)
	}
	return out
}

func TestBuilderNormalizesAliases(t *testing.T) {
	var w, err = BuildFromJSON([]byte(`{"task_id":"t-1","task_name":"rename helpers","agent_assigned":"cheap-general"}`))
	require.NoError(t, err)
	require.Equal(t, "t-1", w.ID)
	require.Equal(t, "rename helpers", w.Description)
	require.Equal(t, "cheap-general", w.Agent)
	require.Equal(t, 5, w.Priority)
	require.Equal(t, 3, w.EstimatedComplexity)

	// Canonical names win over aliases.
	w, err = BuildFromJSON([]byte(`{"id":"a","task_id":"b","description":"canonical","task_name":"alias"}`))
	require.NoError(t, err)
	require.Equal(t, "a", w.ID)
	require.Equal(t, "canonical", w.Description)

	// A fresh id is minted when none is given.
	w, err = BuildFromJSON([]byte(`{"description":"anonymous"}`))
	require.NoError(t, err)
	require.NotEmpty(t, w.ID)

	_, err = BuildFromJSON([]byte(`{"id":"x","description":"bad","priority":11}`))
	require.Error(t, err)
}

func TestUnblockingFirstScheduling(t *testing.T) {
	var c = testCoordinator(t, 2)

	// A:p5 unblocks B; C:p5 unblocks nobody. With W=2 the first pass
	// starts A (unblocking=1 beats the priority tie) and then B's
	// dependency holds it QUEUED, so C fills the second slot.
	var _, err = c.Add(item("A", 5))
	require.NoError(t, err)
	_, err = c.Add(item("B", 8, "A"))
	require.NoError(t, err)
	started, err := c.Add(item("C", 5))
	require.NoError(t, err)
	require.Equal(t, []string{"C"}, ids(started))

	sum, err := c.Summary()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"A", "C"}, ids(sum.Active))
	require.Equal(t, []string{"B"}, ids(sum.Queued))

	// Completing A frees a slot and B becomes eligible.
	started, err = c.Complete("A")
	require.NoError(t, err)
	require.Equal(t, []string{"B"}, ids(started))

	sum, err = c.Summary()
	require.NoError(t, err)
	require.Equal(t, 1, sum.Counts[StatusCompleted])
	require.ElementsMatch(t, []string{"B", "C"}, ids(sum.Active))
}

func TestWIPBoundHolds(t *testing.T) {
	var c = testCoordinator(t, 2)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		var _, err = c.Add(item(id, 5))
		require.NoError(t, err)

		var sum, serr = c.Summary()
		require.NoError(t, serr)
		require.LessOrEqual(t, len(sum.Active), 2)
	}

	var sum, err = c.Summary()
	require.NoError(t, err)
	require.Len(t, sum.Active, 2)
	require.Len(t, sum.Queued, 3)
}

func TestPriorityOrderWithoutWaiters(t *testing.T) {
	var c = testCoordinator(t, 1)
	var _, err = c.Add(item("low", 2))
	require.NoError(t, err)

	// "low" is already active; queue two more and drain.
	_, err = c.Add(item("mid", 5))
	require.NoError(t, err)
	_, err = c.Add(item("high", 9))
	require.NoError(t, err)

	started, err := c.Complete("low")
	require.NoError(t, err)
	require.Equal(t, []string{"high"}, ids(started))

	started, err = c.Complete("high")
	require.NoError(t, err)
	require.Equal(t, []string{"mid"}, ids(started))
}

func TestCyclicDependenciesDoNotDeadlock(t *testing.T) {
	var c = testCoordinator(t, 2)
	var _, err = c.Add(item("X", 5, "Y"))
	require.NoError(t, err)
	started, err := c.Add(item("Y", 5, "X"))
	require.NoError(t, err)
	require.Empty(t, started)

	started, err = c.Schedule()
	require.NoError(t, err)
	require.Empty(t, started)

	sum, err := c.Summary()
	require.NoError(t, err)
	require.Equal(t, 2, sum.Counts[StatusQueued])
}

func TestDanglingDependencyNeverSatisfied(t *testing.T) {
	var c = testCoordinator(t, 2)
	var started, err = c.Add(item("W", 5, "ghost"))
	require.NoError(t, err)
	require.Empty(t, started)

	sum, err := c.Summary()
	require.NoError(t, err)
	require.Equal(t, []string{"W"}, ids(sum.Queued))
}

func TestFailIsTerminalForDependents(t *testing.T) {
	var c = testCoordinator(t, 2)
	var _, err = c.Add(item("base", 5))
	require.NoError(t, err)
	_, err = c.Add(item("child", 5, "base"))
	require.NoError(t, err)

	started, err := c.Fail("base", "agent timeout")
	require.NoError(t, err)
	require.Empty(t, started) // child's dependency failed, not completed.

	sum, err := c.Summary()
	require.NoError(t, err)
	require.Equal(t, 1, sum.Counts[StatusFailed])
	require.Equal(t, []string{"child"}, ids(sum.Queued))
}

func TestCompletionTimestampsFollowStatus(t *testing.T) {
	var c = testCoordinator(t, 1)
	var started, err = c.Add(item("only", 5))
	require.NoError(t, err)
	require.NotEmpty(t, started[0].StartedAt)
	require.Empty(t, started[0].CompletedAt)

	_, err = c.Complete("only")
	require.NoError(t, err)

	sum, err := c.Summary()
	require.NoError(t, err)
	require.Equal(t, 1, sum.Counts[StatusCompleted])

	_, err = c.Complete("missing")
	require.Error(t, err)
}

func TestWorkItemJSONRoundTrip(t *testing.T) {
	var in = WorkItem{
		ID: "rt", Description: "round trip", Priority: 7, EstimatedComplexity: 2,
		Dependencies: []string{"a", "b"}, Status: StatusCompleted,
		Agent: "mid-analyst", StartedAt: "2026-08-26T01:00:00Z",
		CompletedAt: "2026-08-26T02:00:00Z",
	}
	var data, err = json.Marshal(in)
	require.NoError(t, err)
	var out WorkItem
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, in, out)
}
