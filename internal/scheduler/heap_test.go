package scheduler

import (
	"container/heap"
	"testing"
	"time"
)

func TestWakeupHeapOrdersByFireAt(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := &wakeupHeap{}
	heap.Init(h)

	entries := []*wakeupEntry{
		{taskID: "c", fireAt: base.Add(3 * time.Minute)},
		{taskID: "a", fireAt: base.Add(1 * time.Minute)},
		{taskID: "b", fireAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		heap.Push(h, e)
	}

	var order []string
	for h.Len() > 0 {
		order = append(order, heap.Pop(h).(*wakeupEntry).taskID)
	}

	want := []string{"a", "b", "c"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("pop order = %v, want %v", order, want)
		}
	}
}

func TestWakeupHeapFixAfterUpdate(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := &wakeupHeap{}
	heap.Init(h)

	late := &wakeupEntry{taskID: "late", fireAt: base.Add(10 * time.Minute)}
	heap.Push(h, late)
	heap.Push(h, &wakeupEntry{taskID: "mid", fireAt: base.Add(5 * time.Minute)})

	late.fireAt = base
	heap.Fix(h, late.index)

	top := (*h)[0]
	if top.taskID != "late" {
		t.Fatalf("root after Fix = %q, want %q", top.taskID, "late")
	}
}
