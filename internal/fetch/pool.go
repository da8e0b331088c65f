package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Luchitomori/frostwire-desktop/internal/client"
	"github.com/Luchitomori/frostwire-desktop/internal/metrics"
)

const (
	DefaultWorkers = 8
	DefaultTimeout = 30 * time.Second
)

var (
	// ErrDuplicate is returned when the same document is already being fetched.
	ErrDuplicate = errors.New("fetch already in progress")
	// ErrUnsupportedURI is returned for URIs that are neither http(s) nor magnet.
	ErrUnsupportedURI = errors.New("unsupported fetch URI")
	// ErrNoSwarm is returned for magnet fetches when swarm lookups are disabled.
	ErrNoSwarm = errors.New("swarm fetching disabled")
)

// Service starts asynchronous metadata fetches. Fetch returns an error only
// when the fetch could not be started; otherwise every outcome, including
// failures, is reported through notify.
type Service interface {
	Fetch(ctx context.Context, uri string, notify Notify) error
}

// Downloader fetches .torrent documents over HTTP.
type Downloader interface {
	Download(ctx context.Context, uri, dir string) (string, error)
}

// MagnetFetcher resolves magnet links through the swarm.
type MagnetFetcher interface {
	FetchMagnet(ctx context.Context, magnet, dir string) (string, error)
}

// Pool runs fetches on a bounded set of workers. A fetch that has started
// is not interrupted by its caller's context; it ends on success, failure,
// timeout or Close.
type Pool struct {
	workers *ants.Pool
	http    Downloader
	swarm   MagnetFetcher
	dir     string
	timeout time.Duration
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	inflight map[string]struct{}
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

func WithTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPool creates a pool of size workers saving documents into dir. swarm
// may be nil, in which case magnet fetches fail.
func NewPool(size int, dir string, http Downloader, swarm MagnetFetcher, opts ...PoolOption) (*Pool, error) {
	if size <= 0 {
		size = DefaultWorkers
	}
	p := &Pool{
		http:     http,
		swarm:    swarm,
		dir:      dir,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	workers, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(r any) {
			p.logger.Error("fetch worker panicked", "panic", r)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fetch pool: %w", err)
	}
	p.workers = workers
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p, nil
}

// Fetch schedules uri. A uri already in flight is reported as Duplicate.
func (p *Pool) Fetch(ctx context.Context, uri string, notify Notify) error {
	if err := ctx.Err(); err != nil {
		notify(Cancelled, "")
		return nil
	}
	if !p.claim(uri) {
		notify(Duplicate, "")
		return nil
	}

	metrics.FetchesInFlight.Inc()
	err := p.workers.Submit(func() {
		defer metrics.FetchesInFlight.Dec()
		defer p.release(uri)
		p.run(uri, notify)
	})
	if err != nil {
		metrics.FetchesInFlight.Dec()
		p.release(uri)
		return fmt.Errorf("scheduling fetch of %s: %w", uri, err)
	}
	return nil
}

func (p *Pool) claim(uri string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inflight[uri]; ok {
		return false
	}
	p.inflight[uri] = struct{}{}
	return true
}

func (p *Pool) release(uri string) {
	p.mu.Lock()
	delete(p.inflight, uri)
	p.mu.Unlock()
}

func (p *Pool) run(uri string, notify Notify) {
	notify(Fetching, "")

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	transport := transportOf(uri)
	start := time.Now()
	path, err := p.fetch(ctx, uri)
	metrics.FetchDuration.WithLabelValues(transport).Observe(time.Since(start).Seconds())

	state := stateOf(p.ctx, err)
	metrics.FetchesTotal.WithLabelValues(transport, state.String()).Inc()
	if state == Error {
		p.logger.Debug("metadata fetch failed", "uri", uri, "error", err)
	}
	notify(state, path)
}

func (p *Pool) fetch(ctx context.Context, uri string) (string, error) {
	switch transportOf(uri) {
	case "magnet":
		return p.fetchMagnet(ctx, uri)
	case "http":
		path, err := p.http.Download(ctx, uri, p.dir)
		var magnetErr *client.MagnetError
		if errors.As(err, &magnetErr) && p.swarm != nil {
			return p.fetchMagnet(ctx, magnetErr.URI)
		}
		return path, err
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedURI, uri)
}

func (p *Pool) fetchMagnet(ctx context.Context, magnet string) (string, error) {
	if p.swarm == nil {
		return "", ErrNoSwarm
	}
	return p.swarm.FetchMagnet(ctx, magnet, p.dir)
}

func stateOf(poolCtx context.Context, err error) State {
	switch {
	case err == nil:
		return Finished
	case errors.Is(err, ErrDuplicate):
		return Duplicate
	case poolCtx.Err() != nil:
		return Cancelled
	}
	return Error
}

func transportOf(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "invalid"
	}
	switch strings.ToLower(u.Scheme) {
	case "magnet":
		return "magnet"
	case "http", "https":
		return "http"
	}
	return "invalid"
}

// Close cancels running fetches and stops the workers.
func (p *Pool) Close() error {
	p.cancel()
	return p.workers.ReleaseTimeout(5 * time.Second)
}
