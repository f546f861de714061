package signaling

import "sync"

// sendQueue is a FIFO of outbound frames for one client, optionally bounded
// by message count.
//
// It lets the hub hand off frames without ever blocking on a slow
// connection.
type sendQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	closed   bool

	// limit is the max number of queued frames; 0 means unbounded.
	limit  int
	frames [][]byte
}

func newSendQueue(limit int) *sendQueue {
	q := &sendQueue{limit: limit}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends frame unless the queue is closed or full. It never blocks.
func (q *sendQueue) Enqueue(frame []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || (q.limit > 0 && len(q.frames) >= q.limit) {
		return false
	}

	q.frames = append(q.frames, frame)
	q.notEmpty.Signal()
	return true
}

// Dequeue blocks until a frame is available or the queue is closed. Frames
// still queued at Close are discarded.
func (q *sendQueue) Dequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.frames) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.closed {
		return nil, false
	}
	frame := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return frame, true
}

func (q *sendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

func (q *sendQueue) Close() {
	q.mu.Lock()
	q.closed = true
	for i := range q.frames {
		q.frames[i] = nil
	}
	q.frames = nil
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}
