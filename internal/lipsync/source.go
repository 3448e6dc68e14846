package lipsync

import (
	"errors"
	"sync"
)

// Common errors
var (
	ErrSourceClosed   = errors.New("frame source closed")
	ErrSessionActive  = errors.New("lip sync session already active")
	ErrSourceRequired = errors.New("frame source required")
)

// Block is one mono audio sample block. A nil Block on the channel is the
// end-of-stream sentinel; it is the only shutdown signal consumers rely on.
type Block []float64

// FrameSource produces a lazy, time-paced sequence of sample blocks
// terminated by a nil sentinel. Stop requests cooperative cancellation;
// the sentinel is still delivered so downstream consumers terminate
// deterministically.
type FrameSource interface {
	Blocks() <-chan Block
	Stop()
}

// QueueSource is a bounded hand-off channel fed by an external producer
// (microphone callback, decoder, test). The producer calls Push per block
// and Finish exactly once when the stream ends.
type QueueSource struct {
	ch chan Block

	mu       sync.Mutex
	finished bool
}

// NewQueueSource creates a queue with the given capacity (minimum 1).
func NewQueueSource(capacity int) *QueueSource {
	if capacity < 1 {
		capacity = 1
	}
	return &QueueSource{ch: make(chan Block, capacity)}
}

// Blocks returns the consumer side of the queue.
func (q *QueueSource) Blocks() <-chan Block {
	return q.ch
}

// Push hands a block to the consumer, blocking when the queue is full.
// Returns ErrSourceClosed once Finish or Stop has run.
func (q *QueueSource) Push(b Block) error {
	if b == nil {
		return nil
	}
	q.mu.Lock()
	if q.finished {
		q.mu.Unlock()
		return ErrSourceClosed
	}
	q.mu.Unlock()
	q.ch <- b
	return nil
}

// TryPush is Push without backpressure: the block is dropped when the
// consumer is behind. Reports whether the block was enqueued.
func (q *QueueSource) TryPush(b Block) bool {
	if b == nil {
		return false
	}
	q.mu.Lock()
	if q.finished {
		q.mu.Unlock()
		return false
	}
	q.mu.Unlock()
	select {
	case q.ch <- b:
		return true
	default:
		return false
	}
}

// Finish emits the end sentinel. Idempotent.
func (q *QueueSource) Finish() {
	q.mu.Lock()
	if q.finished {
		q.mu.Unlock()
		return
	}
	q.finished = true
	q.mu.Unlock()
	q.ch <- nil
}

// Stop drains any queued blocks and emits the sentinel so the consumer
// observes shutdown on its next receive.
func (q *QueueSource) Stop() {
	q.mu.Lock()
	alreadyDone := q.finished
	q.finished = true
	q.mu.Unlock()

	for {
		select {
		case b := <-q.ch:
			if b == nil {
				// sentinel already queued; put it back and stop draining
				q.ch <- nil
				return
			}
		default:
			if !alreadyDone {
				q.ch <- nil
			}
			return
		}
	}
}
