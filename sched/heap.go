package sched

import (
	"container/heap"

	"github.com/mgouzenko/timepack/process"
)

// waitingItem pairs a process with the monotonic sequence number it was
// enqueued with, so that ties in VRuntimeNS break in FIFO order -- an
// ordered multiset keyed on (vruntime, stable tiebreaker) rather than a
// linear scan.
type waitingItem struct {
	proc *process.Process
	seq  int64
}

// waitingQueue is a min-heap of waitingItems ordered by (VRuntimeNS, seq),
// giving O(log n) insertion and lowest-vruntime selection.
type waitingQueue struct {
	items []*waitingItem
	seq   int64
}

func newWaitingQueue() *waitingQueue {
	q := &waitingQueue{}
	heap.Init(q)
	return q
}

// push inserts p into the queue.
func (q *waitingQueue) push(p *process.Process) {
	q.seq++
	heap.Push(q, &waitingItem{proc: p, seq: q.seq})
}

// popMin removes and returns the process with the lowest vruntime (and
// earliest arrival among ties), or nil if the queue is empty.
func (q *waitingQueue) popMin() *process.Process {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(*waitingItem).proc
}

// peekMin returns, without removing, the process with the lowest vruntime,
// or nil if the queue is empty.
func (q *waitingQueue) peekMin() *process.Process {
	if q.Len() == 0 {
		return nil
	}
	return q.items[0].proc
}

// remove deletes p from the queue if present. It is O(n); used only for the
// rare migration-time removal path, not the scheduling hot loop.
func (q *waitingQueue) remove(p *process.Process) {
	for i, it := range q.items {
		if it.proc == p {
			heap.Remove(q, i)
			return
		}
	}
}

func (q *waitingQueue) all() []*process.Process {
	procs := make([]*process.Process, len(q.items))
	for i, it := range q.items {
		procs[i] = it.proc
	}
	return procs
}

// heap.Interface implementation.

func (q *waitingQueue) Len() int { return len(q.items) }

func (q *waitingQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.proc.VRuntimeNS != b.proc.VRuntimeNS {
		return a.proc.VRuntimeNS < b.proc.VRuntimeNS
	}
	return a.seq < b.seq
}

func (q *waitingQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *waitingQueue) Push(x interface{}) { q.items = append(q.items, x.(*waitingItem)) }

func (q *waitingQueue) Pop() interface{} {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return item
}
