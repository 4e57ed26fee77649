package swarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFairShareFavorsProjectWithFewestCompletions(t *testing.T) {
	q := New()
	q.RegisterAgent("agent-1", AgentPolicy{})

	q.EnqueueSubtask("project-a", "p1", "go", 0)
	q.EnqueueSubtask("project-b", "p2", "go", 0)

	// project-a completes one task, so project-b should win the next claim.
	st, err := q.Claim("agent-1")
	require.NoError(t, err)
	require.Equal(t, "project-a", st.ProjectID)
	require.NoError(t, q.Complete(Result{SubtaskID: st.ID, OK: true}))

	next, err := q.Claim("agent-1")
	require.NoError(t, err)
	require.Equal(t, "project-b", next.ProjectID)
}

func TestClaimTieBrokenByQueuedAtThenPriority(t *testing.T) {
	q := New()
	q.RegisterAgent("agent-1", AgentPolicy{})

	q.EnqueueSubtask("project-a", "low-priority-first", "go", 1)
	time.Sleep(time.Millisecond)
	q.EnqueueSubtask("project-a", "high-priority-second", "go", 5)

	st, err := q.Claim("agent-1")
	require.NoError(t, err)
	require.Equal(t, "low-priority-first", st.Prompt)
}

func TestRequeueStaleReturnsExpiredClaims(t *testing.T) {
	q := New()
	q.RegisterAgent("agent-1", AgentPolicy{})
	q.EnqueueSubtask("project-a", "p1", "go", 0)

	st, err := q.Claim("agent-1")
	require.NoError(t, err)

	q.mu.Lock()
	q.claimed[st.ID].claimedAt = time.Now().Add(-time.Hour)
	q.mu.Unlock()

	requeued := q.RequeueStale(time.Minute)
	require.Equal(t, 1, requeued)

	status := q.Status()
	require.Equal(t, 1, status.Queued)
}

func TestCompleteRejectsUnclaimedSubtask(t *testing.T) {
	q := New()
	err := q.Complete(Result{SubtaskID: "nonexistent"})
	require.ErrorIs(t, err, ErrNotClaimed)
}

func TestSubtaskInExactlyOneState(t *testing.T) {
	q := New()
	q.RegisterAgent("agent-1", AgentPolicy{})
	q.EnqueueSubtask("project-a", "p1", "go", 0)

	status := q.Status()
	require.Equal(t, 1, status.Queued)

	st, err := q.Claim("agent-1")
	require.NoError(t, err)
	require.Empty(t, q.queued)
	require.Len(t, q.claimed, 1)

	require.NoError(t, q.Complete(Result{SubtaskID: st.ID, OK: true}))
	require.Empty(t, q.claimed)
	require.Len(t, q.results, 1)
}
