// Package memory implements store.Store entirely in process memory.
// Safe for concurrent access. Intended for unit testing and development;
// it mirrors the ordering semantics of the redis backend (FIFO ready
// list, priority set ordered by priority then admission sequence,
// delayed set ordered by run time).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	jobq "github.com/rickicode/MikrotikBilling-sub003"
	"github.com/rickicode/MikrotikBilling-sub003/cron"
	"github.com/rickicode/MikrotikBilling-sub003/depend"
	"github.com/rickicode/MikrotikBilling-sub003/dlq"
	"github.com/rickicode/MikrotikBilling-sub003/id"
	"github.com/rickicode/MikrotikBilling-sub003/job"
)

// Compile-time interface checks. The composite store.Store cannot be
// referenced here without an import cycle in tests, so each subsystem is
// verified separately.
var (
	_ job.Store    = (*Store)(nil)
	_ dlq.Store    = (*Store)(nil)
	_ cron.Store   = (*Store)(nil)
	_ depend.Store = (*Store)(nil)
)

// prioEntry is a priority-set member.
type prioEntry struct {
	jobID    string
	priority int
	seq      int64
}

// delayedEntry is a delayed-set member.
type delayedEntry struct {
	jobID string
	runAt time.Time
	seq   int64
}

// completedEntry is a completed-set member.
type completedEntry struct {
	jobID      string
	finishedAt time.Time
}

// queueState holds the per-queue structures.
type queueState struct {
	ready     []string
	priority  []prioEntry
	delayed   []delayedEntry
	active    map[string]struct{}
	completed []completedEntry

	// notify wakes a blocked PopNext after a push.
	notify chan struct{}
}

// Store is a fully in-memory implementation of the engine's composite
// store contract.
type Store struct {
	mu sync.Mutex

	jobs    map[string]*job.Job
	queues  map[string]*queueState
	dlqs    map[string]*dlq.Entry
	dlqIDs  []string // insertion order
	scheds  map[string]*cron.Definition
	deps    map[string]map[string]struct{} // dependent -> blockers
	rdeps   map[string]map[string]struct{} // blocker -> dependents
	dedup   map[string]time.Time           // "queue\x00key" -> expiry
	nextSeq int64
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:   make(map[string]*job.Job),
		queues: make(map[string]*queueState),
		dlqs:   make(map[string]*dlq.Entry),
		scheds: make(map[string]*cron.Definition),
		deps:   make(map[string]map[string]struct{}),
		rdeps:  make(map[string]map[string]struct{}),
		dedup:  make(map[string]time.Time),
	}
}

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// queueState returns (creating if needed) the structures for a queue.
// Callers must hold m.mu.
func (m *Store) queueState(queue string) *queueState {
	qs, ok := m.queues[queue]
	if !ok {
		qs = &queueState{
			active: make(map[string]struct{}),
			notify: make(chan struct{}, 1),
		}
		m.queues[queue] = qs
	}
	return qs
}

func (qs *queueState) wake() {
	select {
	case qs.notify <- struct{}{}:
	default:
	}
}

// ──────────────────────────────────────────────────
// job.Store
// ──────────────────────────────────────────────────

// CreateJob persists the job record and assigns its admission sequence.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return jobq.ErrJobExists
	}
	m.nextSeq++
	j.Seq = m.nextSeq
	cp := *j
	m.jobs[key] = &cp
	return nil
}

// GetJob retrieves a copy of a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, jobq.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// UpdateJob persists changes to an existing job record.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return jobq.ErrJobNotFound
	}
	j.UpdatedAt = time.Now().UTC()
	cp := *j
	m.jobs[key] = &cp
	return nil
}

// DeleteJob removes a job record and any structure memberships.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	j, ok := m.jobs[key]
	if !ok {
		return jobq.ErrJobNotFound
	}
	delete(m.jobs, key)

	if qs, qok := m.queues[j.Queue]; qok {
		qs.removeEverywhere(key)
	}
	return nil
}

func (qs *queueState) removeEverywhere(jobID string) {
	for i, v := range qs.ready {
		if v == jobID {
			qs.ready = append(qs.ready[:i], qs.ready[i+1:]...)
			break
		}
	}
	for i, e := range qs.priority {
		if e.jobID == jobID {
			qs.priority = append(qs.priority[:i], qs.priority[i+1:]...)
			break
		}
	}
	for i, e := range qs.delayed {
		if e.jobID == jobID {
			qs.delayed = append(qs.delayed[:i], qs.delayed[i+1:]...)
			break
		}
	}
	for i, e := range qs.completed {
		if e.jobID == jobID {
			qs.completed = append(qs.completed[:i], qs.completed[i+1:]...)
			break
		}
	}
	delete(qs.active, jobID)
}

// setState updates the stored record's state. Callers must hold m.mu.
func (m *Store) setState(jobID string, state job.State) {
	if j, ok := m.jobs[jobID]; ok {
		j.State = state
		j.UpdatedAt = time.Now().UTC()
	}
}

// PushReady appends the job to the tail of the FIFO ready list.
func (m *Store) PushReady(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return jobq.ErrJobNotFound
	}
	j.State = job.StateWaiting
	m.setState(key, job.StateWaiting)

	qs := m.queueState(j.Queue)
	qs.ready = append(qs.ready, key)
	qs.wake()
	return nil
}

// PushPriority inserts the job into the priority set.
func (m *Store) PushPriority(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return jobq.ErrJobNotFound
	}
	j.State = job.StateWaiting
	m.setState(key, job.StateWaiting)

	qs := m.queueState(j.Queue)
	qs.priority = append(qs.priority, prioEntry{jobID: key, priority: j.Priority, seq: j.Seq})
	qs.wake()
	return nil
}

// PushDelayed inserts the job into the delayed set scored by runAt.
func (m *Store) PushDelayed(_ context.Context, j *job.Job, runAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	stored, ok := m.jobs[key]
	if !ok {
		return jobq.ErrJobNotFound
	}
	j.State = job.StateWaiting
	j.RunAt = runAt
	stored.State = job.StateWaiting
	stored.RunAt = runAt
	stored.UpdatedAt = time.Now().UTC()

	qs := m.queueState(j.Queue)
	qs.delayed = append(qs.delayed, delayedEntry{jobID: key, runAt: runAt, seq: j.Seq})
	return nil
}

// PopNext claims the next dispatchable job: priority set first, then the
// FIFO ready list, blocking up to wait.
func (m *Store) PopNext(ctx context.Context, queue string, wait time.Duration) (*job.Job, error) {
	deadline := time.Now().Add(wait)
	for {
		m.mu.Lock()
		qs := m.queueState(queue)
		notify := qs.notify
		if j := m.popLocked(qs); j != nil {
			m.mu.Unlock()
			return j, nil
		}
		m.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-notify:
			timer.Stop()
		}
	}
}

// popLocked removes and claims the highest-precedence waiting job.
// Callers must hold m.mu.
func (m *Store) popLocked(qs *queueState) *job.Job {
	now := time.Now().UTC()

	if len(qs.priority) > 0 {
		// Highest priority first; FIFO by admission sequence within
		// equal priority.
		best := 0
		for i := 1; i < len(qs.priority); i++ {
			e, b := qs.priority[i], qs.priority[best]
			if e.priority > b.priority || (e.priority == b.priority && e.seq < b.seq) {
				best = i
			}
		}
		key := qs.priority[best].jobID
		qs.priority = append(qs.priority[:best], qs.priority[best+1:]...)
		return m.claimLocked(qs, key, now)
	}

	if len(qs.ready) > 0 {
		key := qs.ready[0]
		qs.ready = qs.ready[1:]
		return m.claimLocked(qs, key, now)
	}
	return nil
}

// claimLocked marks a popped job active. Callers must hold m.mu.
func (m *Store) claimLocked(qs *queueState, key string, now time.Time) *job.Job {
	j, ok := m.jobs[key]
	if !ok {
		return nil // record vanished; treat as empty pop
	}
	j.State = job.StateActive
	started := now
	j.StartedAt = &started
	j.UpdatedAt = now
	qs.active[key] = struct{}{}
	cp := *j
	return &cp
}

// PromoteDue moves due delayed entries into the ready list or priority set.
func (m *Store) PromoteDue(_ context.Context, queue string, now time.Time, priorityEnabled bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := m.queueState(queue)
	var remaining []delayedEntry
	promoted := 0
	for _, e := range qs.delayed {
		if e.runAt.After(now) {
			remaining = append(remaining, e)
			continue
		}
		j, ok := m.jobs[e.jobID]
		if !ok {
			continue
		}
		if priorityEnabled && j.Priority != 0 {
			qs.priority = append(qs.priority, prioEntry{jobID: e.jobID, priority: j.Priority, seq: e.seq})
		} else {
			qs.ready = append(qs.ready, e.jobID)
		}
		promoted++
	}
	qs.delayed = remaining
	if promoted > 0 {
		qs.wake()
	}
	return promoted, nil
}

// TrimReady evicts the oldest ready entries beyond max and marks them dead.
func (m *Store) TrimReady(_ context.Context, queue string, max int) ([]*job.Job, error) {
	if max <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := m.queueState(queue)
	var evicted []*job.Job
	for len(qs.ready) > max {
		key := qs.ready[0]
		qs.ready = qs.ready[1:]
		j, ok := m.jobs[key]
		if !ok {
			continue
		}
		j.State = job.StateDead
		j.UpdatedAt = time.Now().UTC()
		cp := *j
		evicted = append(evicted, &cp)
	}
	return evicted, nil
}

// CompleteJob marks the job completed and records it in the bounded
// completed set.
func (m *Store) CompleteJob(_ context.Context, j *job.Job, retention int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	stored, ok := m.jobs[key]
	if !ok {
		return jobq.ErrJobNotFound
	}

	now := time.Now().UTC()
	finished := now
	if j.FinishedAt != nil {
		finished = *j.FinishedAt
	}
	j.State = job.StateCompleted
	j.FinishedAt = &finished
	*stored = *j
	stored.UpdatedAt = now

	qs := m.queueState(j.Queue)
	delete(qs.active, key)
	if retention > 0 {
		qs.completed = append(qs.completed, completedEntry{jobID: key, finishedAt: finished})
		for len(qs.completed) > retention {
			old := qs.completed[0]
			qs.completed = qs.completed[1:]
			delete(m.jobs, old.jobID)
		}
	} else {
		delete(m.jobs, key)
	}
	return nil
}

// ClearActive removes the job from the active set without completing it.
func (m *Store) ClearActive(_ context.Context, queue string, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := m.queueState(queue)
	delete(qs.active, jobID.String())
	return nil
}

// ActiveCount returns the number of active jobs for the queue.
func (m *Store) ActiveCount(_ context.Context, queue string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.queueState(queue).active)), nil
}

// ClaimDedup records the dedup key with a TTL of window.
func (m *Store) ClaimDedup(_ context.Context, queue, key string, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := queue + "\x00" + key
	now := time.Now()
	if expiry, ok := m.dedup[k]; ok && expiry.After(now) {
		return false, nil
	}
	m.dedup[k] = now.Add(window)
	return true, nil
}

// ReleaseDedup drops a dedup claim before its window expires.
func (m *Store) ReleaseDedup(_ context.Context, queue, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.dedup, queue+"\x00"+key)
	return nil
}

// QueueCounts returns the per-structure sizes for the queue.
func (m *Store) QueueCounts(_ context.Context, queue string) (job.Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := m.queueState(queue)
	counts := job.Counts{
		Ready:     int64(len(qs.ready)),
		Priority:  int64(len(qs.priority)),
		Delayed:   int64(len(qs.delayed)),
		Active:    int64(len(qs.active)),
		Completed: int64(len(qs.completed)),
	}
	for _, e := range m.dlqs {
		if e.Queue == queue {
			counts.Dead++
		}
	}
	return counts, nil
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

// PushDLQ appends an entry to the dead-letter queue.
func (m *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entry.ID.String()
	cp := *entry
	m.dlqs[key] = &cp
	m.dlqIDs = append(m.dlqIDs, key)
	return nil
}

// ListDLQ returns entries matching the given options, oldest first.
func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []*dlq.Entry
	for _, key := range m.dlqIDs {
		e, ok := m.dlqs[key]
		if !ok {
			continue
		}
		if opts.Queue != "" && e.Queue != opts.Queue {
			continue
		}
		cp := *e
		entries = append(entries, &cp)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(entries) {
			return nil, nil
		}
		entries = entries[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// GetDLQ retrieves an entry by ID.
func (m *Store) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, jobq.ErrDLQNotFound
	}
	cp := *e
	return &cp, nil
}

// MarkReplayed records that an entry was replayed.
func (m *Store) MarkReplayed(_ context.Context, entryID id.DLQID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return jobq.ErrDLQNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

// PurgeDLQ removes entries dead-lettered before the given time.
func (m *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	var keep []string
	for _, key := range m.dlqIDs {
		e, ok := m.dlqs[key]
		if !ok {
			continue
		}
		if e.FailedAt.Before(before) {
			delete(m.dlqs, key)
			removed++
			continue
		}
		keep = append(keep, key)
	}
	m.dlqIDs = keep
	return removed, nil
}

// CountDLQ returns the number of dead-letter entries for the queue.
func (m *Store) CountDLQ(_ context.Context, queue string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, e := range m.dlqs {
		if queue == "" || e.Queue == queue {
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// cron.Store
// ──────────────────────────────────────────────────

// RegisterSched persists a new definition.
func (m *Store) RegisterSched(_ context.Context, def *cron.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *def
	m.scheds[def.ID.String()] = &cp
	return nil
}

// GetSched retrieves a definition by ID.
func (m *Store) GetSched(_ context.Context, schedID id.SchedID) (*cron.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	def, ok := m.scheds[schedID.String()]
	if !ok {
		return nil, jobq.ErrSchedNotFound
	}
	cp := *def
	return &cp, nil
}

// ListScheds returns all definitions ordered by ID.
func (m *Store) ListScheds(_ context.Context) ([]*cron.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	defs := make([]*cron.Definition, 0, len(m.scheds))
	for _, def := range m.scheds {
		cp := *def
		defs = append(defs, &cp)
	}
	sort.Slice(defs, func(i, k int) bool { return defs[i].ID.String() < defs[k].ID.String() })
	return defs, nil
}

// UpdateSched persists changes to a definition.
func (m *Store) UpdateSched(_ context.Context, def *cron.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := def.ID.String()
	if _, ok := m.scheds[key]; !ok {
		return jobq.ErrSchedNotFound
	}
	def.UpdatedAt = time.Now().UTC()
	cp := *def
	m.scheds[key] = &cp
	return nil
}

// DeleteSched removes a definition by ID.
func (m *Store) DeleteSched(_ context.Context, schedID id.SchedID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := schedID.String()
	if _, ok := m.scheds[key]; !ok {
		return jobq.ErrSchedNotFound
	}
	delete(m.scheds, key)
	return nil
}

// CountScheds returns the number of definitions for the queue.
func (m *Store) CountScheds(_ context.Context, queue string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, def := range m.scheds {
		if queue == "" || def.Queue == queue {
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// depend.Store
// ──────────────────────────────────────────────────

// AddEdges records that jobID waits on every job in blockers.
func (m *Store) AddEdges(_ context.Context, jobID id.JobID, blockers []id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	depKey := jobID.String()
	set, ok := m.deps[depKey]
	if !ok {
		set = make(map[string]struct{})
		m.deps[depKey] = set
	}
	for _, b := range blockers {
		bKey := b.String()
		set[bKey] = struct{}{}
		rset, rok := m.rdeps[bKey]
		if !rok {
			rset = make(map[string]struct{})
			m.rdeps[bKey] = rset
		}
		rset[depKey] = struct{}{}
	}
	return nil
}

// ResolveCompleted removes the completed job from every dependent's
// blocker set and returns fully released dependents.
func (m *Store) ResolveCompleted(_ context.Context, completed id.JobID) ([]id.JobID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bKey := completed.String()
	dependents, ok := m.rdeps[bKey]
	if !ok {
		return nil, nil
	}
	delete(m.rdeps, bKey)

	var released []id.JobID
	for depKey := range dependents {
		set, dok := m.deps[depKey]
		if !dok {
			continue
		}
		delete(set, bKey)
		if len(set) == 0 {
			delete(m.deps, depKey)
			depID, err := id.ParseJobID(depKey)
			if err != nil {
				continue
			}
			released = append(released, depID)
		}
	}
	return released, nil
}

// Blockers returns the jobs jobID still waits on.
func (m *Store) Blockers(_ context.Context, jobID id.JobID) ([]id.JobID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.deps[jobID.String()]
	if !ok {
		return nil, nil
	}
	blockers := make([]id.JobID, 0, len(set))
	for bKey := range set {
		bID, err := id.ParseJobID(bKey)
		if err != nil {
			continue
		}
		blockers = append(blockers, bID)
	}
	return blockers, nil
}

// CountEdges returns the total number of outstanding edges.
func (m *Store) CountEdges(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, set := range m.deps {
		count += int64(len(set))
	}
	return count, nil
}
