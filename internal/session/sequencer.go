package session

// sequencer releases values in strictly increasing sequence order. Values
// pushed out of order are buffered until every smaller sequence number has
// been released. It is not safe for concurrent use; the actor's run loop
// owns it.
type sequencer[T any] struct {
	next    uint64
	pending map[uint64]T
}

func newSequencer[T any](first uint64) *sequencer[T] {
	return &sequencer[T]{next: first, pending: make(map[uint64]T)}
}

// push records v under seq and returns every value now deliverable, in order.
// Sequence numbers already released or already pending are ignored.
func (s *sequencer[T]) push(seq uint64, v T) []T {
	if seq < s.next {
		return nil
	}
	if _, dup := s.pending[seq]; dup {
		return nil
	}
	s.pending[seq] = v

	var ready []T
	for {
		val, ok := s.pending[s.next]
		if !ok {
			return ready
		}
		delete(s.pending, s.next)
		ready = append(ready, val)
		s.next++
	}
}

// waiting returns the number of buffered values.
func (s *sequencer[T]) waiting() int { return len(s.pending) }
