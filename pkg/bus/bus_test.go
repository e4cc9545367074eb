package bus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitWithoutSinks(t *testing.T) {
	Reset()
	// Must not panic or block.
	Emit(TypeMessage, map[string]any{"content": "hi"})
}

func TestEmitFansOut(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	var mu sync.Mutex
	var got []Event
	Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})
	Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})

	Emit(TypeWorkspace, map[string]any{"slug": "kitchen"})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, TypeWorkspace, got[0].Type)
	assert.Equal(t, "kitchen", got[0].Data["slug"])
	assert.NotZero(t, got[0].Time)
}

func TestPanickingSinkIsIsolated(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	Subscribe(func(Event) { panic("bad sink") })

	delivered := false
	Subscribe(func(Event) { delivered = true })

	Emit(TypeStatus, nil)
	assert.True(t, delivered)
}
