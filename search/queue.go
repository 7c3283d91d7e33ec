package search

// priorityQueue is a container/heap.Interface min-heap of *State ordered by
// ascending Cost (spec §4.5's "best-first" beam queue), grounded on
// dijkstra.nodePQ's heap shape.
type priorityQueue []*State

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool { return pq[i].Cost < pq[j].Cost }

func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *priorityQueue) Push(x any) {
	*pq = append(*pq, x.(*State))
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}
