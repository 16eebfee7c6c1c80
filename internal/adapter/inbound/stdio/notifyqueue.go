package stdio

import "context"

// notificationQueueCapacity is the bounded FIFO size spec.md §4.6 sets for
// each GET listen stream's notification queue.
const notificationQueueCapacity = 256

// notificationQueue is a single GET listener's bounded, drop-oldest FIFO
// of raw notification lines (spec.md §4.6: "if a queue is at capacity,
// drop the oldest entry for that queue only").
type notificationQueue struct {
	ch     chan []byte
	closed chan struct{}
}

func newNotificationQueue() *notificationQueue {
	return &notificationQueue{
		ch:     make(chan []byte, notificationQueueCapacity),
		closed: make(chan struct{}),
	}
}

// enqueue appends line, dropping the oldest queued entry first if the
// queue is full. A closed queue silently discards the line.
func (q *notificationQueue) enqueue(line []byte) {
	select {
	case q.ch <- line:
		return
	case <-q.closed:
		return
	default:
	}
	select {
	case <-q.ch:
	default:
	}
	select {
	case q.ch <- line:
	case <-q.closed:
	default:
	}
}

// dequeue blocks until a line is available, the queue is closed, or ctx is
// cancelled.
func (q *notificationQueue) dequeue(ctx context.Context) ([]byte, bool) {
	select {
	case line := <-q.ch:
		return line, true
	case <-q.closed:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

func (q *notificationQueue) close() {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
}

// notificationHub tracks every live queue for a bridge so the stdout
// dispatcher can broadcast a single notification line to all of them
// (spec.md §4.6: duplicate broadcast, each GET stream receives independently).
type notificationHub struct {
	register   chan *notificationQueue
	unregister chan *notificationQueue
	broadcast  chan []byte
	closeAll   chan struct{}
}

func newNotificationHub() *notificationHub {
	h := &notificationHub{
		register:   make(chan *notificationQueue),
		unregister: make(chan *notificationQueue),
		broadcast:  make(chan []byte, 64),
		closeAll:   make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *notificationHub) run() {
	queues := make(map[*notificationQueue]struct{})
	for {
		select {
		case q := <-h.register:
			queues[q] = struct{}{}
		case q := <-h.unregister:
			delete(queues, q)
		case line := <-h.broadcast:
			for q := range queues {
				q.enqueue(line)
			}
		case <-h.closeAll:
			for q := range queues {
				q.close()
			}
			return
		}
	}
}

func (h *notificationHub) newQueue() *notificationQueue {
	q := newNotificationQueue()
	select {
	case h.register <- q:
	case <-h.closeAll:
		q.close()
	}
	return q
}

func (h *notificationHub) removeQueue(q *notificationQueue) {
	q.close()
	select {
	case h.unregister <- q:
	case <-h.closeAll:
	}
}

func (h *notificationHub) publish(line []byte) {
	select {
	case h.broadcast <- line:
	case <-h.closeAll:
	}
}

func (h *notificationHub) closeHub() {
	select {
	case <-h.closeAll:
	default:
		close(h.closeAll)
	}
}
