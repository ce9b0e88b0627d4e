package modelclient

import (
	"context"
	"sync"
)

// ScriptedClient replays predetermined fragment sequences, one per Stream
// call, in order. It is used by engine tests and by front ends that want a
// deterministic dry-run mode.
type ScriptedClient struct {
	mu        sync.Mutex
	responses [][]Fragment
	errs      []error
	requests  []Request
	calls     int
}

// NewScriptedClient creates a client that replays the given sequences.
func NewScriptedClient(responses ...[]Fragment) *ScriptedClient {
	return &ScriptedClient{responses: responses}
}

// EnqueueError makes the next Stream call fail with err before producing
// any fragment.
func (c *ScriptedClient) EnqueueError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

// Enqueue appends another fragment sequence to replay.
func (c *ScriptedClient) Enqueue(frags []Fragment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, frags)
}

// Requests returns the requests observed so far.
func (c *ScriptedClient) Requests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Request, len(c.requests))
	copy(out, c.requests)
	return out
}

// Calls returns how many times Stream has been invoked.
func (c *ScriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Stream implements Client.
func (c *ScriptedClient) Stream(ctx context.Context, req Request) (*ResponseStream, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.calls++

	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		c.mu.Unlock()
		return nil, err
	}

	var frags []Fragment
	if len(c.responses) > 0 {
		frags = c.responses[0]
		c.responses = c.responses[1:]
	} else {
		// Out of script: reply with an empty completion so the turn ends.
		frags = []Fragment{CompletionFragment(Usage{})}
	}
	c.mu.Unlock()

	stream := NewResponseStream(len(frags) + 1)
	go func() {
		for _, f := range frags {
			if !stream.Push(f) {
				return
			}
		}
		stream.Finish()
	}()
	return stream, nil
}
