package fetch

import (
	"log/slog"
	"sync/atomic"
)

// Notify receives the state changes of one fetch. path is set only when
// state is Finished and names the fetched metadata document.
type Notify func(state State, path string)

// Handler reacts to the outcome of a Job. Finished runs at most once, on the
// first Finished observation. Done runs exactly once, on the first terminal
// state, after Finished when both apply.
type Handler interface {
	Finished(path string)
	Done(state State)
}

// Job tracks one fetch through its state machine. Observe may be called from
// any goroutine and any number of times; only valid transitions apply.
type Job struct {
	state   atomic.Int32
	handler Handler
	logger  *slog.Logger
}

// NewJob returns a Pending job reporting to h.
func NewJob(h Handler, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{handler: h, logger: logger}
}

// State returns the current state.
func (j *Job) State() State {
	return State(j.state.Load())
}

// Notify returns Observe as a callback for a fetch Service.
func (j *Job) Notify() Notify {
	return func(state State, path string) { j.Observe(state, path) }
}

// Observe applies a reported state. It returns true if the report caused a
// transition. Reports that repeat the current state or that would leave a
// terminal state are ignored.
func (j *Job) Observe(next State, path string) bool {
	for {
		cur := j.State()
		if !CanTransition(cur, next) {
			if cur != next {
				j.logger.Debug("ignoring fetch state", "from", cur, "to", next)
			}
			return false
		}
		if !j.state.CompareAndSwap(int32(cur), int32(next)) {
			continue
		}
		if next == Finished {
			j.finish(path)
		}
		if next.Terminal() {
			j.handler.Done(next)
		}
		return true
	}
}

func (j *Job) finish(path string) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("fetch completion handler panicked", "path", path, "panic", r)
		}
	}()
	j.handler.Finished(path)
}
