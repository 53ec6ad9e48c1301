package crawler

// fifo is the BFS queue. Items are processed strictly in enqueue order.
type fifo struct {
	items []QueueItem
	head  int
}

func (q *fifo) push(item QueueItem) {
	q.items = append(q.items, item)
}

func (q *fifo) pop() (QueueItem, bool) {
	if q.head >= len(q.items) {
		return QueueItem{}, false
	}
	item := q.items[q.head]
	q.items[q.head] = QueueItem{}
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return item, true
}

func (q *fifo) len() int {
	return len(q.items) - q.head
}
