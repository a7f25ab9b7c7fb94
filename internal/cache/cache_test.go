package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpires(t *testing.T) {
	c := NewTTLCache[string, int]()
	c.Set("a", 1, 10*time.Millisecond)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestLoaderCollapsesConcurrentMisses(t *testing.T) {
	l := NewLoader[string](time.Minute)
	var calls int32
	start := make(chan struct{})

	load := func(context.Context) (string, bool, error) {
		atomic.AddInt32(&calls, 1)
		<-start
		return "shop", true, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, found, err := l.Get(context.Background(), "shop/a", load)
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "shop", v)
		}()
	}
	time.Sleep(10 * time.Millisecond)
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// cached now
	_, found, err := l.Get(context.Background(), "shop/a", func(context.Context) (string, bool, error) {
		t.Fatal("unexpected load")
		return "", false, nil
	})
	require.NoError(t, err)
	assert.True(t, found)
}

func TestLoaderDoesNotCacheMisses(t *testing.T) {
	l := NewLoader[int](time.Minute)
	var calls int
	load := func(context.Context) (int, bool, error) {
		calls++
		return 0, false, nil
	}
	_, found, _ := l.Get(context.Background(), "k", load)
	assert.False(t, found)
	_, _, _ = l.Get(context.Background(), "k", load)
	assert.Equal(t, 2, calls)

	l.Invalidate("k")
}
