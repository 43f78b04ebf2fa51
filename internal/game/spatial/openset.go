package spatial

import "container/heap"

// openNode is one entry of the A* frontier. The same cell may be pushed more
// than once when a cheaper route is found; stale entries are skipped on pop.
type openNode struct {
	idx int
	g   int
	f   int
	seq uint64 // push order, breaks f ties first-in-first-out
}

// nodeHeap implements heap.Interface ordered by (f, seq).
type nodeHeap []openNode

func (h nodeHeap) Len() int { return len(h) }

func (h nodeHeap) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	return h[i].seq < h[j].seq
}

func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *nodeHeap) Push(x any) { *h = append(*h, x.(openNode)) }

func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// openSet wraps the heap with a monotonic sequence counter.
type openSet struct {
	nodes nodeHeap
	seq   uint64
}

func newOpenSet(capacity int) *openSet {
	return &openSet{nodes: make(nodeHeap, 0, capacity)}
}

func (s *openSet) push(idx, g, f int) {
	s.seq++
	heap.Push(&s.nodes, openNode{idx: idx, g: g, f: f, seq: s.seq})
}

func (s *openSet) pop() openNode {
	return heap.Pop(&s.nodes).(openNode)
}

func (s *openSet) empty() bool { return len(s.nodes) == 0 }
