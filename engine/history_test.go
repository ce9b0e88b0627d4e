package engine

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/conductor/modelclient"
	"github.com/martinemde/conductor/tools"
)

func TestStoreAppendGet(t *testing.T) {
	s := NewStore()
	assert.Equal(t, 0, s.Len())

	i0 := s.Append(NewUserEntry("hello"))
	i1 := s.Append(NewAssistantEntry("hi", "", nil, modelclient.Usage{TotalTokens: 5}))
	i2 := s.Append(NewToolCallEntry(ToolCallRecord{
		CallID:       "c1",
		Kind:         tools.KindFunction,
		Name:         "shell",
		RawArguments: json.RawMessage(`{"command": ["pwd"]}`),
		State:        tools.StateSucceeded,
		Content:      "/work",
		Success:      true,
	}))

	assert.Equal(t, []int{0, 1, 2}, []int{i0, i1, i2})
	assert.Equal(t, 3, s.Len())

	e, ok := s.Get(0)
	require.True(t, ok)
	require.Equal(t, EntryUser, e.Kind)
	assert.Equal(t, "hello", e.User.Content)

	e, ok = s.Get(1)
	require.True(t, ok)
	require.Equal(t, EntryAssistant, e.Kind)
	assert.Equal(t, "hi", e.Assistant.Content)
	assert.Equal(t, int64(5), e.Assistant.Usage.TotalTokens)

	e, ok = s.Get(2)
	require.True(t, ok)
	require.Equal(t, EntryToolCall, e.Kind)
	assert.Equal(t, "c1", e.ToolCall.CallID)
	assert.Equal(t, "/work", e.ToolCall.Content)
	assert.True(t, e.ToolCall.Success)

	_, ok = s.Get(3)
	assert.False(t, ok)
	_, ok = s.Get(-1)
	assert.False(t, ok)
}

func TestStoreSnapshotIsCopy(t *testing.T) {
	s := NewStore()
	s.Append(NewUserEntry("one"))
	snap := s.Snapshot()
	s.Append(NewUserEntry("two"))

	assert.Len(t, snap, 1)
	assert.Equal(t, 2, s.Len())
}

func TestStoreConcurrentReaders(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			s.Append(NewUserEntry(fmt.Sprintf("entry %d", i)))
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				n := s.Len()
				if n > 0 {
					_, ok := s.Get(n - 1)
					assert.True(t, ok)
				}
				s.Snapshot()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, s.Len())
}
