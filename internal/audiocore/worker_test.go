package audiocore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPreservesOrder(t *testing.T) {
	t.Parallel()

	var got []int
	w := newWorker(64, func(it workItem) {
		if it.kind == workSync {
			close(it.done)
			return
		}
		got = append(got, it.frames)
	})
	w.start()
	defer w.close()

	for i := range 50 {
		require.True(t, w.tryPost(workItem{kind: workUpdateStats, frames: i}))
	}
	require.True(t, w.flush())

	want := make([]int, 50)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestWorkerDropsWhenFull(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	w := newWorker(1, func(it workItem) {
		switch it.kind {
		case workSync:
			close(it.done)
		case workResetStats:
			close(started)
			<-release
		}
	})
	w.start()

	require.True(t, w.tryPost(workItem{kind: workResetStats}))
	<-started

	assert.True(t, w.tryPost(workItem{kind: workUpdateStats}), "fills the queue")
	assert.False(t, w.tryPost(workItem{kind: workUpdateStats}))
	assert.Equal(t, uint64(1), w.droppedCount())

	close(release)
	require.True(t, w.flush())
	w.close()

	assert.False(t, w.tryPost(workItem{kind: workUpdateStats}))
	assert.False(t, w.post(workItem{kind: workUpdateStats}))
	assert.False(t, w.flush())
	assert.Equal(t, uint64(1), w.droppedCount(), "posts after close are not drops")
}
