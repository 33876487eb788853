package indexbuilder

import "github.com/gzipi/gzipi/internal/rawindex"

// mergeItem is one in-flight candidate in the k-way merge: the next
// unread entry from chunk file `source`.
type mergeItem struct {
	entry  rawindex.Entry
	source int
}

func (m mergeItem) less(other mergeItem) bool {
	return rawindex.Compare(m.entry, other.entry) < 0
}

// mergeHeap is a manual binary min-heap over mergeItem, avoiding the
// interface-boxing container/heap would otherwise impose on every
// push and pop during the merge's hottest loop.
type mergeHeap []mergeItem

func heapInit(h mergeHeap) {
	n := len(h)
	for i := n/2 - 1; i >= 0; i-- {
		siftDown(h, i, n)
	}
}

func heapPush(h *mergeHeap, item mergeItem) {
	*h = append(*h, item)
	siftUp(*h, len(*h)-1)
}

func heapPop(h *mergeHeap) mergeItem {
	old := *h
	n := len(old)
	top := old[0]
	old[0] = old[n-1]
	*h = old[:n-1]
	siftDown(*h, 0, n-1)
	return top
}

func siftUp(h mergeHeap, j int) {
	for {
		i := (j - 1) / 2
		if i == j || !h[j].less(h[i]) {
			break
		}
		h[i], h[j] = h[j], h[i]
		j = i
	}
}

func siftDown(h mergeHeap, i0, n int) {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 {
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && h[j2].less(h[j1]) {
			j = j2
		}
		if !h[j].less(h[i]) {
			break
		}
		h[i], h[j] = h[j], h[i]
		i = j
	}
}
