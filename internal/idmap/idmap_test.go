package idmap

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	im := New()
	old := uuid.New()
	neu := uuid.New()
	_, ok := im.Get("account", old)
	require.False(t, ok)

	im.Put("account", old, neu)
	got, ok := im.Get("account", old)
	require.True(t, ok)
	require.Equal(t, neu, got)
}

func TestDistinctEntitiesDoNotCollide(t *testing.T) {
	im := New()
	id := uuid.New()
	a := uuid.New()
	c := uuid.New()
	im.Put("account", id, a)
	im.Put("contact", id, c)

	got, ok := im.Get("account", id)
	require.True(t, ok)
	require.Equal(t, a, got)

	got, ok = im.Get("contact", id)
	require.True(t, ok)
	require.Equal(t, c, got)
}

func TestLastWriterWinsIdempotent(t *testing.T) {
	im := New()
	old := uuid.New()
	first := uuid.New()
	second := uuid.New()
	im.Put("account", old, first)
	im.Put("account", old, second)

	got, ok := im.Get("account", old)
	require.True(t, ok)
	require.Equal(t, second, got)
}

func TestConcurrentPutGet(t *testing.T) {
	im := New()
	var wg sync.WaitGroup
	n := 500
	olds := make([]uuid.UUID, n)
	news := make([]uuid.UUID, n)
	for i := 0; i < n; i++ {
		olds[i] = uuid.New()
		news[i] = uuid.New()
	}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			im.Put("account", olds[i], news[i])
		}(i)
	}
	wg.Wait()

	require.Equal(t, n, im.EntityLen("account"))
	for i := 0; i < n; i++ {
		got, ok := im.Get("account", olds[i])
		require.True(t, ok)
		require.Equal(t, news[i], got)
	}
}
