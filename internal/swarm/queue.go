// Package swarm implements C10, the fair-share task queue: agent
// registration, subtask enqueue/claim/complete, stale-claim requeue, and
// project-fairness scheduling, grounded on the teacher's
// kernel/core/mesh/mesh_coordinator.go job-bookkeeping idiom
// (queued/claimed/completed sets under one exclusive lock).
package swarm

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// SubtaskState is which of the three disjoint sets a subtask currently
// belongs to (spec §4.10 invariant).
type SubtaskState string

const (
	StateQueued    SubtaskState = "queued"
	StateClaimed   SubtaskState = "claimed"
	StateCompleted SubtaskState = "completed"
)

// Subtask is one unit of swarm work.
type Subtask struct {
	ID        string
	ProjectID string
	Prompt    string
	Language  string
	Priority  int
	QueuedAt  time.Time

	state     SubtaskState
	claimedBy string
	claimedAt time.Time
}

// Result is the output of a completed subtask.
type Result struct {
	SubtaskID    string
	Output       string
	OK           bool
	CreditsSpent float64
}

// AgentPolicy describes a registered agent's scheduling hints (resource
// class preference etc). Left opaque; the scheduler doesn't branch on
// its contents today.
type AgentPolicy struct {
	ResourceClass string
}

// Status is the counters snapshot returned by status() (spec §4.10).
type Status struct {
	Queued  int
	Agents  int
	Results int
}

var (
	ErrNoAgent    = fmt.Errorf("swarm: agent not registered")
	ErrNoneQueued = fmt.Errorf("swarm: no subtasks queued")
	ErrNotClaimed = fmt.Errorf("swarm: subtask not claimed")
)

// Queue is the fair-share swarm task scheduler.
type Queue struct {
	mu sync.Mutex

	agents map[string]AgentPolicy

	queued  map[string]*Subtask
	claimed map[string]*Subtask

	results map[string]Result

	projectCompletions map[string]int

	nextID uint64
}

// New creates an empty swarm queue.
func New() *Queue {
	return &Queue{
		agents:             make(map[string]AgentPolicy),
		queued:             make(map[string]*Subtask),
		claimed:            make(map[string]*Subtask),
		results:            make(map[string]Result),
		projectCompletions: make(map[string]int),
	}
}

// RegisterAgent adds agentID to the roster.
func (q *Queue) RegisterAgent(agentID string, policy AgentPolicy) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.agents[agentID] = policy
}

// EnqueueSubtask assigns a fresh id and appends the subtask to the
// queue.
func (q *Queue) EnqueueSubtask(projectID, prompt, language string, priority int) Subtask {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	st := &Subtask{
		ID:        fmt.Sprintf("subtask-%d", q.nextID),
		ProjectID: projectID,
		Prompt:    prompt,
		Language:  language,
		Priority:  priority,
		QueuedAt:  time.Now(),
		state:     StateQueued,
	}
	q.queued[st.ID] = st
	return *st
}

// Claim selects one unclaimed subtask under fair-share scheduling: the
// project with the fewest completions so far wins; ties broken by
// lowest queued-at timestamp, then by priority descending (spec §4.10).
func (q *Queue) Claim(agentID string) (Subtask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.agents[agentID]; !ok {
		return Subtask{}, ErrNoAgent
	}
	if len(q.queued) == 0 {
		return Subtask{}, ErrNoneQueued
	}

	candidates := make([]*Subtask, 0, len(q.queued))
	for _, st := range q.queued {
		candidates = append(candidates, st)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		ca, cb := q.projectCompletions[a.ProjectID], q.projectCompletions[b.ProjectID]
		if ca != cb {
			return ca < cb
		}
		if !a.QueuedAt.Equal(b.QueuedAt) {
			return a.QueuedAt.Before(b.QueuedAt)
		}
		return a.Priority > b.Priority
	})

	winner := candidates[0]
	winner.state = StateClaimed
	winner.claimedBy = agentID
	winner.claimedAt = time.Now()

	delete(q.queued, winner.ID)
	q.claimed[winner.ID] = winner

	return *winner, nil
}

// Complete moves a claimed subtask to completed and increments its
// project's completion counter.
func (q *Queue) Complete(result Result) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	st, ok := q.claimed[result.SubtaskID]
	if !ok {
		return ErrNotClaimed
	}
	delete(q.claimed, result.SubtaskID)
	st.state = StateCompleted
	q.results[result.SubtaskID] = result
	q.projectCompletions[st.ProjectID]++
	return nil
}

// RequeueStale returns any claim older than maxAge to the queue and
// reports the count requeued. The original claimer receives no credit
// (spec §4.10).
func (q *Queue) RequeueStale(maxAge time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	requeued := 0
	for id, st := range q.claimed {
		if now.Sub(st.claimedAt) < maxAge {
			continue
		}
		delete(q.claimed, id)
		st.state = StateQueued
		st.claimedBy = ""
		st.claimedAt = time.Time{}
		q.queued[id] = st
		requeued++
	}
	return requeued
}

// Status returns the {queued, agents, results} counters.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{
		Queued:  len(q.queued),
		Agents:  len(q.agents),
		Results: len(q.results),
	}
}

// Result returns a completed subtask's result, if any.
func (q *Queue) Result(subtaskID string) (Result, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.results[subtaskID]
	return r, ok
}
