package room

import "sync"

// queue is an unbounded FIFO of work run by a single goroutine. push never
// blocks, so callbacks from the relay or the peer session can always
// enqueue even while the consumer is busy.
type queue struct {
	mu    sync.Mutex
	items []func()
	wake  chan struct{}
}

func newQueue() *queue {
	return &queue{wake: make(chan struct{}, 1)}
}

func (q *queue) push(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue) drain() []func() {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}

// run executes queued work in order until stop is closed.
func (q *queue) run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-q.wake:
			for _, fn := range q.drain() {
				select {
				case <-stop:
					return
				default:
				}
				fn()
			}
		}
	}
}
