package modelclient

import (
	"context"
	"io"
	"sync"
)

// ResponseStream is a cancellable, single-consumer sequence of fragments.
// Producers push fragments with Push and finish with Finish or Fail; the
// consumer pulls with Next until io.EOF or an error. Closing the stream
// releases the producer.
type ResponseStream struct {
	ch     chan Fragment
	done   chan struct{}
	closeO sync.Once

	mu  sync.Mutex
	err error
}

// NewResponseStream creates a stream with the given buffer size.
func NewResponseStream(buffer int) *ResponseStream {
	if buffer <= 0 {
		buffer = 64
	}
	return &ResponseStream{
		ch:   make(chan Fragment, buffer),
		done: make(chan struct{}),
	}
}

// Push delivers one fragment to the consumer. It returns false if the
// stream has been closed and the producer should stop.
func (s *ResponseStream) Push(f Fragment) bool {
	select {
	case <-s.done:
		return false
	case s.ch <- f:
		return true
	}
}

// Finish marks the normal end of the fragment sequence.
func (s *ResponseStream) Finish() {
	s.closeO.Do(func() {
		close(s.ch)
	})
}

// Fail terminates the stream with a transport or provider error.
func (s *ResponseStream) Fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.Finish()
}

// Next returns the next fragment, io.EOF at the end of a normal sequence,
// or the terminal error. Context cancellation aborts the wait.
func (s *ResponseStream) Next(ctx context.Context) (*Fragment, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case f, ok := <-s.ch:
		if !ok {
			s.mu.Lock()
			err := s.err
			s.mu.Unlock()
			if err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		return &f, nil
	}
}

// Close abandons the stream; pending producer pushes unblock and fail.
func (s *ResponseStream) Close() {
	s.mu.Lock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.mu.Unlock()
}

// Client is the provider-agnostic Model Client contract. Stream submits the
// conversation plus tool schema and returns the lazy fragment sequence.
type Client interface {
	Stream(ctx context.Context, req Request) (*ResponseStream, error)
}
