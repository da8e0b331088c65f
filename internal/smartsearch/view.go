package smartsearch

import "sync"

// LiveView is the result panel a deep search reports into. Mutating calls
// arrive through a Dispatcher; CurrentBatch and Closed may be called from
// any goroutine.
type LiveView interface {
	CurrentBatch() []Result
	Closed() bool
	IncrementInFlight()
	DecrementInFlight()
	AddDeepResult(DeepResult)
}

// Dispatcher runs callbacks on the single goroutine that owns a LiveView.
type Dispatcher interface {
	Dispatch(fn func())
}

// SerialDispatcher runs dispatched callbacks one at a time, in order, on its
// own goroutine. Dispatch never blocks.
type SerialDispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

func NewSerialDispatcher() *SerialDispatcher {
	d := &SerialDispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.loop()
	return d
}

func (d *SerialDispatcher) Dispatch(fn func()) {
	d.enqueue(fn)
}

func (d *SerialDispatcher) enqueue(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.queue = append(d.queue, fn)
	d.cond.Signal()
	return true
}

func (d *SerialDispatcher) loop() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		fn()
	}
}

// Wait blocks until every callback dispatched so far has run.
func (d *SerialDispatcher) Wait() {
	ch := make(chan struct{})
	if d.enqueue(func() { close(ch) }) {
		<-ch
	}
}

// Close runs the remaining queue and stops the goroutine. Later dispatches
// are dropped.
func (d *SerialDispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.done
}

// Panel is a thread-safe LiveView backed by memory.
type Panel struct {
	mu       sync.Mutex
	batch    []Result
	deep     []DeepResult
	inFlight int
	closed   bool
	onChange func()
}

func NewPanel() *Panel {
	return &Panel{}
}

// OnChange registers fn to be called after every mutation.
func (p *Panel) OnChange(fn func()) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

func (p *Panel) changed() {
	p.mu.Lock()
	fn := p.onChange
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Add appends backend results to the current batch.
func (p *Panel) Add(results ...Result) {
	p.mu.Lock()
	p.batch = append(p.batch, results...)
	p.mu.Unlock()
	p.changed()
}

func (p *Panel) CurrentBatch() []Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Result(nil), p.batch...)
}

func (p *Panel) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close marks the panel closed; running deep searches stop surfacing.
func (p *Panel) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.changed()
}

func (p *Panel) IncrementInFlight() {
	p.mu.Lock()
	p.inFlight++
	p.mu.Unlock()
	p.changed()
}

func (p *Panel) DecrementInFlight() {
	p.mu.Lock()
	if p.inFlight > 0 {
		p.inFlight--
	}
	p.mu.Unlock()
	p.changed()
}

// InFlight returns the number of fetches not yet finished.
func (p *Panel) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

func (p *Panel) AddDeepResult(r DeepResult) {
	p.mu.Lock()
	p.deep = append(p.deep, r)
	p.mu.Unlock()
	p.changed()
}

// DeepResults returns the surfaced matches in arrival order.
func (p *Panel) DeepResults() []DeepResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]DeepResult(nil), p.deep...)
}
