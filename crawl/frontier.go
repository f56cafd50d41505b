package crawl

import (
	"container/heap"
	"iter"
	"strings"
	"sync"

	"github.com/fwojciec/webscrape"
)

// Compile-time interface verification.
var _ webscrape.URLFrontier = (*Frontier)(nil)

// Order selects the pop discipline of a Frontier.
type Order int

const (
	// BreadthFirst pops URLs in the order they were pushed.
	BreadthFirst Order = iota
	// DepthFirst pops the most recently pushed URL first.
	DepthFirst
	// Priority pops the URL with the lowest Score first; ties keep push order.
	Priority
)

// Frontier is an in-memory URL frontier with exact deduplication.
// It is safe for concurrent use by multiple goroutines.
type Frontier struct {
	order Order

	mu    sync.Mutex
	seen  map[string]int
	queue []webscrape.FrontierItem
	heap  *itemHeap
	seq   uint64

	genMu sync.Mutex
	next  func() (string, bool)
	stop  func()
}

// NewFrontier creates an empty Frontier with the given pop order.
func NewFrontier(order Order) *Frontier {
	h := &itemHeap{}
	heap.Init(h)
	return &Frontier{
		order: order,
		seen:  make(map[string]int),
		heap:  h,
	}
}

// Push adds a URL discovered at depth.
// Returns false if the URL has already been seen; its depth stays the one
// recorded at first discovery.
// URL fragments are stripped before deduplication - URLs differing only by
// fragment are considered duplicates.
func (f *Frontier) Push(rawURL string, depth int) bool {
	rawURL = stripFragment(rawURL)

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.seen[rawURL]; ok {
		return false
	}
	f.seen[rawURL] = depth

	item := webscrape.FrontierItem{URL: rawURL, Depth: depth}
	if f.order == Priority {
		item.Score = Score(rawURL)
		heap.Push(f.heap, heapItem{item: item, seq: f.seq})
		f.seq++
		return true
	}
	f.queue = append(f.queue, item)
	return true
}

// Requeue returns a popped item to the queue without checking whether its
// URL was seen. It is used for items taken but never processed.
func (f *Frontier) Requeue(item webscrape.FrontierItem) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.order == Priority {
		heap.Push(f.heap, heapItem{item: item, seq: f.seq})
		f.seq++
		return
	}
	f.queue = append(f.queue, item)
}

// Pop returns the next URL according to the frontier's order.
// The bool result is false if the frontier is empty.
func (f *Frontier) Pop() (webscrape.FrontierItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case f.order == Priority:
		if f.heap.Len() == 0 {
			return webscrape.FrontierItem{}, false
		}
		hi, _ := heap.Pop(f.heap).(heapItem)
		return hi.item, true
	case len(f.queue) == 0:
		return webscrape.FrontierItem{}, false
	case f.order == DepthFirst:
		item := f.queue[len(f.queue)-1]
		f.queue = f.queue[:len(f.queue)-1]
		return item, true
	default:
		item := f.queue[0]
		f.queue[0] = webscrape.FrontierItem{}
		f.queue = f.queue[1:]
		return item, true
	}
}

// Len returns the number of URLs in the queue.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.order == Priority {
		return f.heap.Len()
	}
	return len(f.queue)
}

// Seen returns the depth at which the URL was first discovered.
// URL fragments are stripped before checking.
func (f *Frontier) Seen(rawURL string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	depth, ok := f.seen[stripFragment(rawURL)]
	return depth, ok
}

// SetGenerator attaches a lazy sequence of seed URLs consumed one at a time
// by PullFromGenerator. Any previous generator is stopped.
func (f *Frontier) SetGenerator(seq iter.Seq[string]) {
	f.genMu.Lock()
	defer f.genMu.Unlock()

	if f.stop != nil {
		f.stop()
	}
	f.next, f.stop = iter.Pull(seq)
}

// PullFromGenerator advances the generator until it yields an unseen URL
// and pushes it at depth 0.
// Returns false once the generator is exhausted or none is attached.
func (f *Frontier) PullFromGenerator() bool {
	f.genMu.Lock()
	defer f.genMu.Unlock()

	for f.next != nil {
		rawURL, ok := f.next()
		if !ok {
			f.stop()
			f.next, f.stop = nil, nil
			return false
		}
		if f.Push(rawURL, 0) {
			return true
		}
	}
	return false
}

// Close stops an attached generator.
func (f *Frontier) Close() {
	f.genMu.Lock()
	defer f.genMu.Unlock()

	if f.stop != nil {
		f.stop()
		f.next, f.stop = nil, nil
	}
}

func stripFragment(rawURL string) string {
	if idx := strings.Index(rawURL, "#"); idx != -1 {
		return rawURL[:idx]
	}
	return rawURL
}

// heapItem orders items by score, then by push sequence.
type heapItem struct {
	item webscrape.FrontierItem
	seq  uint64
}

// itemHeap implements heap.Interface as a min-heap on Score.
type itemHeap []heapItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].item.Score != h[j].item.Score {
		return h[i].item.Score < h[j].item.Score
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) {
	item, _ := x.(heapItem)
	*h = append(*h, item)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}
