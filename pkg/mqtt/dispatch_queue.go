package mqtt

import (
	"fmt"
	"sync"
)

// OverflowPolicy decides what a bounded DispatchQueue does when it is full.
type OverflowPolicy int

const (
	// OverflowBlock makes Enqueue wait until the consumer frees a slot.
	OverflowBlock OverflowPolicy = iota
	// OverflowDropOldest evicts the oldest queued message to make room.
	OverflowDropOldest
)

// QueueOptions bounds the dispatch queue. MaxMessages 0 means unbounded.
type QueueOptions struct {
	MaxMessages int
	Overflow    OverflowPolicy
}

// DispatchQueue hands inbound messages from the transport's goroutines to the
// message callback on a single dedicated goroutine, in FIFO order. Enqueue only
// holds a short critical section, so the transport keeps servicing keepalives
// while user code processes messages.
//
// Stop must not be called from inside the message callback.
type DispatchQueue struct {
	log  LogCallbacks
	sink MessageCallbacks
	opts QueueOptions

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	messages []*Message
	exit     bool
	dropped  uint64

	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

// NewDispatchQueue creates the queue and starts its consumer goroutine.
func NewDispatchQueue(log LogCallbacks, sink MessageCallbacks, opts QueueOptions) *DispatchQueue {
	q := newDispatchQueue(log, sink, opts)
	q.start()
	return q
}

func newDispatchQueue(log LogCallbacks, sink MessageCallbacks, opts QueueOptions) *DispatchQueue {
	if log == nil {
		log = defaultCallbacks{}
	}
	q := &DispatchQueue{
		log:  log,
		sink: sink,
		opts: opts,
		done: make(chan struct{}),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

func (q *DispatchQueue) start() {
	q.mu.Lock()
	q.started = true
	q.mu.Unlock()
	go q.run()
}

// Enqueue transfers msg into the queue and wakes the consumer. It returns false
// when the queue has been stopped and the message was discarded.
func (q *DispatchQueue) Enqueue(msg *Message) bool {
	q.mu.Lock()
	if q.exit {
		q.mu.Unlock()
		q.log.Log(LogDebug, "Dispatch queue stopped, discarding MQTT message")
		return false
	}

	evicted := 0
	if limit := q.opts.MaxMessages; limit > 0 {
		switch q.opts.Overflow {
		case OverflowDropOldest:
			for len(q.messages) >= limit {
				q.messages[0] = nil
				q.messages = q.messages[1:]
				q.dropped++
				evicted++
			}
		default:
			for len(q.messages) >= limit && !q.exit {
				q.notFull.Wait()
			}
			if q.exit {
				q.mu.Unlock()
				q.log.Log(LogDebug, "Dispatch queue stopped, discarding MQTT message")
				return false
			}
		}
	}

	q.messages = append(q.messages, msg)
	q.mu.Unlock()
	q.notEmpty.Signal()

	if evicted > 0 {
		q.log.Log(LogWarning, fmt.Sprintf("Dispatch queue full, dropped %d oldest MQTT messages", evicted))
	}
	return true
}

// Len returns the number of queued, not yet delivered messages.
func (q *DispatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Dropped returns how many messages were evicted or lost on shutdown.
func (q *DispatchQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Stop signals the consumer, waits for it to exit and discards what is left.
// Safe to call more than once.
func (q *DispatchQueue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.exit = true
		started := q.started
		q.mu.Unlock()
		q.notEmpty.Broadcast()
		q.notFull.Broadcast()

		if started {
			<-q.done
		}

		q.mu.Lock()
		lost := len(q.messages)
		q.messages = nil
		q.dropped += uint64(lost)
		q.mu.Unlock()

		if lost > 0 {
			q.log.Log(LogWarning, fmt.Sprintf("Lost %d MQTT messages in queue on shutdown", lost))
		}
	})
}

func (q *DispatchQueue) run() {
	defer close(q.done)
	q.log.Log(LogDebug, "Starting MQTT message dispatcher")

	q.mu.Lock()
	for {
		for len(q.messages) == 0 && !q.exit {
			q.notEmpty.Wait()
		}
		if q.exit {
			break
		}
		msg := q.messages[0]
		q.messages[0] = nil
		q.messages = q.messages[1:]
		remaining := len(q.messages)
		q.mu.Unlock()
		q.notFull.Signal()

		q.log.Log(LogTrace, fmt.Sprintf("Number of MQTT messages still to be processed: %d", remaining))
		q.deliver(msg)

		q.mu.Lock()
	}
	q.mu.Unlock()

	q.log.Log(LogInfo, "Exiting MQTT message dispatcher")
}

// deliver runs the message callback; a panic in user code is logged and the
// dispatcher keeps going.
func (q *DispatchQueue) deliver(msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Log(LogError, fmt.Sprintf("MQTT message handler panic recovered on topic %q: %v", msg.Topic(), r))
		}
	}()
	q.sink.OnMqttMessage(msg)
}
