package cache

import (
	"io/ioutil"
	"os"
	"sync"
	"testing"

	"github.com/gossiplearn/gossiplearn/src/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSnapshot struct {
	Params   []float64
	NUpdates int
}

func TestInmemPutPop(t *testing.T) {
	c := NewInmemCache()

	snap := &testSnapshot{Params: []float64{1, 2, 3}, NUpdates: 7}

	key, err := c.Put(snap)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	got, err := c.Pop(key)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
	assert.Equal(t, 0, c.Len())

	_, err = c.Pop(key)
	require.Error(t, err)
	assert.True(t, common.Is(err, common.CacheMiss))
}

func TestInmemDistinctKeysForIdenticalContent(t *testing.T) {
	c := NewInmemCache()

	k1, err := c.Put(&testSnapshot{Params: []float64{1}})
	require.NoError(t, err)
	k2, err := c.Put(&testSnapshot{Params: []float64{1}})
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
	assert.Equal(t, 2, c.Len())
}

func TestInmemConcurrentPop(t *testing.T) {
	c := NewInmemCache()

	key, err := c.Put(&testSnapshot{Params: []float64{42}})
	require.NoError(t, err)

	const workers = 16

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Pop(key)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.True(t, common.Is(err, common.CacheMiss))
		}
	}
	assert.Equal(t, 1, successes)
}

func TestBadgerPutPop(t *testing.T) {
	dir, err := ioutil.TempDir("", "badger_cache")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	c, err := NewBadgerCache(dir, func() interface{} { return new(testSnapshot) })
	require.NoError(t, err)
	defer c.Close()

	snap := &testSnapshot{Params: []float64{0.5, -1.5}, NUpdates: 3}

	key, err := c.Put(snap)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	got, err := c.Pop(key)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
	assert.Equal(t, 0, c.Len())

	_, err = c.Pop(key)
	require.Error(t, err)
	assert.True(t, common.Is(err, common.CacheMiss))
}
