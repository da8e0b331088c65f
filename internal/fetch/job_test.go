package fetch

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingHandler struct {
	finished atomic.Int32
	done     atomic.Int32
	mu       sync.Mutex
	paths    []string
	states   []State
}

func (h *countingHandler) Finished(path string) {
	h.finished.Add(1)
	h.mu.Lock()
	h.paths = append(h.paths, path)
	h.mu.Unlock()
}

func (h *countingHandler) Done(state State) {
	h.done.Add(1)
	h.mu.Lock()
	h.states = append(h.states, state)
	h.mu.Unlock()
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(Pending, Fetching))
	assert.True(t, CanTransition(Fetching, Finished))
	assert.True(t, CanTransition(Fetching, Cancelled))
	assert.False(t, CanTransition(Fetching, Pending))
	assert.False(t, CanTransition(Finished, Error))
	assert.False(t, CanTransition(Cancelled, Finished))

	for _, s := range []State{Finished, Error, Duplicate, Cancelled} {
		assert.True(t, s.Terminal(), s.String())
	}
	assert.False(t, Pending.Terminal())
	assert.False(t, Fetching.Terminal())
	assert.Equal(t, "unknown", State(42).String())
}

func TestJob_FinishedHandledOnce(t *testing.T) {
	h := &countingHandler{}
	j := NewJob(h, nil)

	assert.True(t, j.Observe(Fetching, ""))
	assert.True(t, j.Observe(Finished, "/tmp/a.torrent"))
	assert.False(t, j.Observe(Finished, "/tmp/b.torrent"))
	assert.False(t, j.Observe(Error, ""))

	assert.Equal(t, int32(1), h.finished.Load())
	assert.Equal(t, int32(1), h.done.Load())
	assert.Equal(t, []string{"/tmp/a.torrent"}, h.paths)
	assert.Equal(t, []State{Finished}, h.states)
	assert.Equal(t, Finished, j.State())
}

func TestJob_ErrorSkipsFinished(t *testing.T) {
	h := &countingHandler{}
	j := NewJob(h, nil)

	j.Observe(Fetching, "")
	j.Observe(Error, "")
	j.Observe(Finished, "/tmp/late.torrent")

	assert.Zero(t, h.finished.Load())
	assert.Equal(t, []State{Error}, h.states)
}

func TestJob_ConcurrentTerminalReports(t *testing.T) {
	h := &countingHandler{}
	j := NewJob(h, nil)
	notify := j.Notify()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 4 {
			case 0:
				notify(Finished, "/tmp/x.torrent")
			case 1:
				notify(Error, "")
			case 2:
				notify(Cancelled, "")
			default:
				notify(Fetching, "")
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), h.done.Load())
	assert.LessOrEqual(t, h.finished.Load(), int32(1))
	assert.True(t, j.State().Terminal())
}

type panickingHandler struct{ done atomic.Int32 }

func (h *panickingHandler) Finished(string) { panic("boom") }
func (h *panickingHandler) Done(State)      { h.done.Add(1) }

func TestJob_PanicInFinishedStillCompletes(t *testing.T) {
	h := &panickingHandler{}
	j := NewJob(h, nil)

	assert.NotPanics(t, func() { j.Observe(Finished, "/tmp/x.torrent") })
	assert.Equal(t, int32(1), h.done.Load())
}
