package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeIndex struct {
	hashes map[string]bool
}

func (f fakeIndex) TorrentExists(_ context.Context, h string) bool {
	return f.hashes[h]
}

func TestTracker_SeenAndAdd(t *testing.T) {
	tr := New(nil)
	assert.False(t, tr.Seen("ABC"))

	tr.Add("ABC", "", "  def ")
	assert.True(t, tr.Seen("abc"))
	assert.True(t, tr.Seen("DEF"))
	assert.False(t, tr.Seen(""))
	assert.Equal(t, 2, tr.Len())

	tr.Reset()
	assert.False(t, tr.Seen("abc"))
	assert.Zero(t, tr.Len())
}

func TestTracker_TryAddOnce(t *testing.T) {
	tr := New(nil)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.TryAdd("hash") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
	assert.False(t, tr.TryAdd(""))
}

func TestTracker_Indexed(t *testing.T) {
	tr := New(fakeIndex{hashes: map[string]bool{"persisted": true}})
	ctx := context.Background()

	assert.False(t, tr.Seen("persisted"))
	assert.True(t, tr.Indexed(ctx, "persisted"))
	assert.True(t, tr.Seen("persisted"))

	assert.False(t, tr.Indexed(ctx, "fresh"))
	assert.False(t, tr.Seen("fresh"))

	assert.False(t, New(nil).Indexed(ctx, "persisted"))
}
