package modelclient

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseStreamDeliversInOrder(t *testing.T) {
	s := NewResponseStream(4)
	go func() {
		s.Push(TextFragment("one"))
		s.Push(TextFragment("two"))
		s.Push(CompletionFragment(Usage{TotalTokens: 3}))
		s.Finish()
	}()

	ctx := context.Background()
	f, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one", f.Text)

	f, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "two", f.Text)

	f, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, FragmentCompletion, f.Kind)
	assert.Equal(t, int64(3), f.Usage.TotalTokens)

	_, err = s.Next(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestResponseStreamFail(t *testing.T) {
	s := NewResponseStream(1)
	wantErr := &ServerError{ProviderError{ClientError: ClientError{Message: "boom"}, Retryable: true}}
	go func() {
		s.Push(TextFragment("partial"))
		s.Fail(wantErr)
	}()

	ctx := context.Background()
	f, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "partial", f.Text)

	_, err = s.Next(ctx)
	assert.Equal(t, wantErr, err)
}

func TestResponseStreamCloseReleasesProducer(t *testing.T) {
	s := NewResponseStream(1)
	s.Push(TextFragment("fills the buffer"))

	blocked := make(chan bool)
	go func() {
		blocked <- s.Push(TextFragment("would block"))
	}()
	s.Close()

	select {
	case ok := <-blocked:
		assert.False(t, ok, "Push must report the stream as closed")
	case <-time.After(time.Second):
		t.Fatal("producer was not released by Close")
	}
}

func TestResponseStreamNextHonorsContext(t *testing.T) {
	s := NewResponseStream(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScriptedClientReplaysSequences(t *testing.T) {
	client := NewScriptedClient(
		[]Fragment{TextFragment("first"), CompletionFragment(Usage{})},
		[]Fragment{TextFragment("second"), CompletionFragment(Usage{})},
	)

	ctx := context.Background()
	for _, want := range []string{"first", "second"} {
		stream, err := client.Stream(ctx, Request{Model: "m"})
		require.NoError(t, err)
		f, err := stream.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, f.Text)
		stream.Close()
	}
	assert.Equal(t, 2, client.Calls())
	assert.Equal(t, "m", client.Requests()[0].Model)
}

func TestJoinText(t *testing.T) {
	assert.Equal(t, "ab", JoinText([]Fragment{TextFragment("a"), TextFragment("b")}))
}

func TestUsageAdd(t *testing.T) {
	sum := Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}.
		Add(Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30})
	assert.Equal(t, Usage{InputTokens: 11, OutputTokens: 22, TotalTokens: 33}, sum)
}
