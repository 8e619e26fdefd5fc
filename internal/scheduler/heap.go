package scheduler

import "time"

// wakeupEntry is one task's next scheduled fire instant.
type wakeupEntry struct {
	taskID string
	fireAt time.Time
	index  int
}

// wakeupHeap is a container/heap min-heap on fireAt, giving the
// Scheduler O(log n) insert and next-wakeup lookup instead of the
// teacher's fixed-interval poll.
type wakeupHeap []*wakeupEntry

func (h wakeupHeap) Len() int { return len(h) }
func (h wakeupHeap) Less(i, j int) bool {
	return h[i].fireAt.Before(h[j].fireAt)
}
func (h wakeupHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *wakeupHeap) Push(x any) {
	e := x.(*wakeupEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *wakeupHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
