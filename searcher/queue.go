package searcher

// Candidate pairs an item ID with a distance. During the approximate
// phase the distance comes from table lookups, after re-ranking it is
// exact.
type Candidate struct {
	ID       uint32
	Distance float32
}

// CandidateQueue is a binary heap of candidates with value-based storage
// for cache locality. A max-heap keeps the K smallest distances by
// evicting the largest, a min-heap the other way around.
type CandidateQueue struct {
	isMaxHeap bool
	items     []Candidate
}

// NewMax creates a max-heap with the given initial capacity. Use it to
// collect the closest candidates: the worst one sits on top, ready to be
// evicted.
func NewMax(capacity int) *CandidateQueue {
	return &CandidateQueue{
		isMaxHeap: true,
		items:     make([]Candidate, 0, capacity),
	}
}

// NewMin creates a min-heap with the given initial capacity.
func NewMin(capacity int) *CandidateQueue {
	return &CandidateQueue{
		items: make([]Candidate, 0, capacity),
	}
}

// Len returns the number of candidates in the heap.
func (q *CandidateQueue) Len() int {
	return len(q.items)
}

// TopItem returns the top of the heap without removing it.
func (q *CandidateQueue) TopItem() (Candidate, bool) {
	if len(q.items) == 0 {
		return Candidate{}, false
	}
	return q.items[0], true
}

// PushItem inserts a candidate while maintaining the heap invariant.
func (q *CandidateQueue) PushItem(item Candidate) {
	q.items = append(q.items, item)
	q.siftUp(len(q.items) - 1)
}

// PushItemBounded inserts a candidate into a heap capped at capacity.
// When the heap is full the new candidate replaces the top only if it is
// strictly better; on equal distance the incumbent stays, so insertion
// order never changes the outcome.
func (q *CandidateQueue) PushItemBounded(item Candidate, capacity int) {
	if len(q.items) < capacity {
		q.PushItem(item)
		return
	}

	top, ok := q.TopItem()
	if !ok {
		return
	}

	if q.isMaxHeap {
		// Top is the largest distance, the worst of the kept set.
		if item.Distance < top.Distance {
			q.items[0] = item
			q.siftDown(0)
		}
	} else {
		if item.Distance > top.Distance {
			q.items[0] = item
			q.siftDown(0)
		}
	}
}

// PopItem removes and returns the top of the heap.
func (q *CandidateQueue) PopItem() (Candidate, bool) {
	n := len(q.items)
	if n == 0 {
		return Candidate{}, false
	}

	item := q.items[0]
	q.items[0] = q.items[n-1]
	q.items = q.items[:n-1]

	if len(q.items) > 0 {
		q.siftDown(0)
	}

	return item, true
}

// Reset clears the queue without freeing its memory.
func (q *CandidateQueue) Reset() {
	q.items = q.items[:0]
}

// EnsureCapacity grows the backing slice so the next n pushes do not
// reallocate.
func (q *CandidateQueue) EnsureCapacity(n int) {
	if cap(q.items) < n {
		items := make([]Candidate, len(q.items), n)
		copy(items, q.items)
		q.items = items
	}
}

func (q *CandidateQueue) less(i, j int) bool {
	if q.isMaxHeap {
		return q.items[i].Distance > q.items[j].Distance
	}
	return q.items[i].Distance < q.items[j].Distance
}

func (q *CandidateQueue) swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *CandidateQueue) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !q.less(i, parent) {
			break
		}
		q.swap(i, parent)
		i = parent
	}
}

func (q *CandidateQueue) siftDown(i int) {
	n := len(q.items)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		child := left
		if right := left + 1; right < n && q.less(right, left) {
			child = right
		}
		if !q.less(child, i) {
			break
		}
		q.swap(i, child)
		i = child
	}
}
