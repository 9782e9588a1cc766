package narrate

import (
	"io"
	"sync"
)

// pcmQueue is an unbounded FIFO byte buffer between the websocket read loop
// and the audio player. Audio arrives far faster than real-time playback, so
// Write must never block: otherwise the read loop would stall at playback
// rate and stop answering protocol keep-alives. The player drains the queue
// through Read on its own goroutine.
type pcmQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newPCMQueue() *pcmQueue {
	q := &pcmQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Write appends p without blocking. After Close it fails with
// io.ErrClosedPipe.
func (q *pcmQueue) Write(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, io.ErrClosedPipe
	}
	q.buf = append(q.buf, p...)
	q.cond.Signal()
	return len(p), nil
}

// Read blocks until data is available or the queue is closed. A closed queue
// drains its remaining bytes before reporting io.EOF.
func (q *pcmQueue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) == 0 {
		if q.closed {
			return 0, io.EOF
		}
		q.cond.Wait()
	}
	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	return n, nil
}

// Close marks the end of the stream and wakes any blocked reader. Idempotent.
func (q *pcmQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
