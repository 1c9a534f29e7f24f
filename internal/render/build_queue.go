package render

import (
	"container/heap"
	"time"

	"voxelview.ai/internal/env"
)

const (
	DefaultMaxBuildsPerUpdate = 8
	DefaultBuildBudget        = 4 * time.Millisecond
)

type buildEntry struct {
	seg      *Segment
	priority env.UpdatePriority
	seq      uint64
	index    int
}

// buildHeap orders by priority, then by insertion sequence.
type buildHeap []*buildEntry

func (h buildHeap) Len() int { return len(h) }

func (h buildHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h buildHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *buildHeap) Push(x any) {
	e := x.(*buildEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *buildHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

type BuildQueueConfig struct {
	// MaxBuilds caps builds per Update; <= 0 means no count cap.
	MaxBuilds int
	// Budget caps time spent per Update; <= 0 means no time cap. At least one
	// build runs per Update regardless.
	Budget time.Duration
	Now    func() time.Time
}

// UpdateStats describes the work done by the last Update.
type UpdateStats struct {
	Builds    int
	Failures  int
	SizeDelta int64
	Elapsed   time.Duration
	LastErr   error
}

// BuildQueue holds at most one pending build per segment, most urgent first.
type BuildQueue struct {
	items   buildHeap
	entries map[*Segment]*buildEntry
	seq     uint64

	maxBuilds int
	budget    time.Duration
	now       func() time.Time

	last          UpdateStats
	totalBuilds   uint64
	totalFailures uint64
}

func NewBuildQueue(cfg BuildQueueConfig) *BuildQueue {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxBuilds <= 0 && cfg.Budget <= 0 {
		cfg.MaxBuilds = DefaultMaxBuildsPerUpdate
		cfg.Budget = DefaultBuildBudget
	}
	return &BuildQueue{
		entries:   map[*Segment]*buildEntry{},
		maxBuilds: cfg.MaxBuilds,
		budget:    cfg.Budget,
		now:       cfg.Now,
	}
}

// Enqueue inserts s at priority p, or promotes it if it is already pending at
// a less urgent priority. A request that is not more urgent than the pending
// one is ignored. Reports whether the queue changed.
func (q *BuildQueue) Enqueue(s *Segment, p env.UpdatePriority) bool {
	s.mustBeLive()
	if e, ok := q.entries[s]; ok {
		if !p.MoreUrgentThan(e.priority) {
			return false
		}
		q.seq++
		e.priority = p
		e.seq = q.seq
		heap.Fix(&q.items, e.index)
		s.QueuePriority = p
		return true
	}
	q.seq++
	e := &buildEntry{seg: s, priority: p, seq: q.seq}
	heap.Push(&q.items, e)
	q.entries[s] = e
	s.QueuedForBuild = true
	s.QueuePriority = p
	return true
}

// Cancel drops a pending build for s, if any.
func (q *BuildQueue) Cancel(s *Segment) bool {
	e, ok := q.entries[s]
	if !ok {
		return false
	}
	heap.Remove(&q.items, e.index)
	delete(q.entries, s)
	s.QueuedForBuild = false
	return true
}

func (q *BuildQueue) Contains(s *Segment) bool {
	_, ok := q.entries[s]
	return ok
}

func (q *BuildQueue) PriorityOf(s *Segment) (env.UpdatePriority, bool) {
	e, ok := q.entries[s]
	if !ok {
		return 0, false
	}
	return e.priority, true
}

func (q *BuildQueue) Count() int { return len(q.items) }

func (q *BuildQueue) LastUpdate() UpdateStats { return q.last }

func (q *BuildQueue) Totals() (builds, failures uint64) {
	return q.totalBuilds, q.totalFailures
}

// Update runs pending builds in priority order until the count or time
// budget is spent and returns the net change in segment size. Failed builds
// go back in the queue behind everything already pending at their priority.
func (q *BuildQueue) Update(_ Frame) int64 {
	start := q.now()
	st := UpdateStats{}
	var retry []*buildEntry

	for len(q.items) > 0 {
		if q.maxBuilds > 0 && st.Builds+st.Failures >= q.maxBuilds {
			break
		}
		if q.budget > 0 && st.Builds+st.Failures > 0 && q.now().Sub(start) >= q.budget {
			break
		}
		e := heap.Pop(&q.items).(*buildEntry)
		delete(q.entries, e.seg)
		e.seg.QueuedForBuild = false

		delta, err := e.seg.Build()
		if err != nil {
			st.Failures++
			st.LastErr = err
			retry = append(retry, e)
			continue
		}
		st.Builds++
		st.SizeDelta += delta
	}
	for _, e := range retry {
		q.Enqueue(e.seg, e.priority)
	}

	st.Elapsed = q.now().Sub(start)
	q.last = st
	q.totalBuilds += uint64(st.Builds)
	q.totalFailures += uint64(st.Failures)
	return st.SizeDelta
}

// Clear drops every pending build.
func (q *BuildQueue) Clear() {
	for _, e := range q.items {
		e.seg.QueuedForBuild = false
	}
	q.items = nil
	q.entries = map[*Segment]*buildEntry{}
}
