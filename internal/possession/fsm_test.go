package possession

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitialStateIsIdle(t *testing.T) {
	m := NewManager()
	assert.Equal(t, Idle, m.Current())
	assert.False(t, m.Possessed(), "Актёр изначально свободен")
}

func TestTransitions(t *testing.T) {
	m := NewManager()
	var seen []string
	m.OnChange(func(from, to State) {
		seen = append(seen, from.Name()+"->"+to.Name())
	})

	assert.True(t, m.Possess())
	assert.False(t, m.Possess(), "Повторный захват ничего не делает")
	assert.True(t, m.Possessed())

	assert.True(t, m.Release())
	assert.False(t, m.Release(), "Повторное освобождение ничего не делает")

	assert.Equal(t, Possessed, m.Toggle())
	assert.Equal(t, Idle, m.Toggle())

	assert.Equal(t, []string{
		"idle->possessed",
		"possessed->idle",
		"idle->possessed",
		"possessed->idle",
	}, seen)
	assert.Equal(t, uint64(4), m.Transitions())
}

func TestSet(t *testing.T) {
	m := NewManager()
	assert.True(t, m.Set(true))
	assert.False(t, m.Set(true))
	assert.True(t, m.Set(false))
	assert.Equal(t, "idle", m.Current().Name())
}
