package network

// PriorityQueue orders messages by delivery tick. Messages due on the same
// tick leave in the order they were sent.
type PriorityQueue []*MessageToSend

func (pq PriorityQueue) Len() int { return len(pq) }

func (pq PriorityQueue) Less(i, j int) bool {
	if pq[i].CanBeDeliveredAtTick != pq[j].CanBeDeliveredAtTick {
		return pq[i].CanBeDeliveredAtTick < pq[j].CanBeDeliveredAtTick
	}
	return pq[i].Sequence < pq[j].Sequence
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].Index = i
	pq[j].Index = j
}

func (pq *PriorityQueue) Push(x any) {
	n := len(*pq)
	item := x.(*MessageToSend)
	item.Index = n
	*pq = append(*pq, item)
}

func (pq *PriorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	*pq = old[0 : n-1]
	return item
}

func (pq PriorityQueue) Peek() (*MessageToSend, bool) {
	if len(pq) == 0 {
		return nil, false
	}
	return pq[0], true
}
