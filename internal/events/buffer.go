package events

import "sync"

type message struct {
	Kind string
	Data []byte
}

// buffer is an unbounded FIFO of pending messages.
type buffer struct {
	lock    sync.Mutex
	pending []*message
	closed  bool
}

func newBuffer() *buffer {
	return &buffer{}
}

// PushBack queues msg and returns the number of pending messages.
// ok is false once the buffer is closed.
func (b *buffer) PushBack(msg *message) (size int, ok bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return len(b.pending), false
	}
	b.pending = append(b.pending, msg)
	return len(b.pending), true
}

// Close makes every later PushBack fail. Pending messages can still be popped.
func (b *buffer) Close() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.closed = true
}

// Pop returns the oldest message, or nil when the buffer is empty.
func (b *buffer) Pop() *message {
	b.lock.Lock()
	defer b.lock.Unlock()

	if len(b.pending) == 0 {
		return nil
	}
	msg := b.pending[0]
	b.pending[0] = nil
	b.pending = b.pending[1:]
	if len(b.pending) == 0 {
		// release the backing array once drained
		b.pending = nil
	}
	return msg
}

func (b *buffer) Size() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.pending)
}
