package smartsearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Luchitomori/frostwire-desktop/internal/config"
	"github.com/Luchitomori/frostwire-desktop/internal/dedup"
	"github.com/Luchitomori/frostwire-desktop/internal/fetch"
	"github.com/Luchitomori/frostwire-desktop/internal/index"
	"github.com/Luchitomori/frostwire-desktop/internal/metrics"
)

// Settings tune local and deep search.
type Settings struct {
	StartDelay        time.Duration
	RoundDelay        time.Duration
	Rounds            int
	MaxTorrentsToScan int
	ResultsLimit      int
}

func DefaultSettings() Settings {
	return Settings{
		StartDelay:        3 * time.Second,
		RoundDelay:        3 * time.Second,
		Rounds:            3,
		MaxTorrentsToScan: 4,
		ResultsLimit:      256,
	}
}

// SettingsFromConfig reads the smart search knobs out of cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		StartDelay:        cfg.StartDelay(),
		RoundDelay:        cfg.RoundDelay(),
		Rounds:            cfg.DeepSearchRounds,
		MaxTorrentsToScan: cfg.MaxTorrentsToScan,
		ResultsLimit:      cfg.FullTextResultsLimit,
	}
}

// Coordinator is the entry point for local and deep search.
type Coordinator struct {
	store    *index.Store
	tracker  *dedup.Tracker
	fetcher  fetch.Service
	backends BackendRegistry
	settings Settings
	logger   *slog.Logger

	dispatcher     Dispatcher
	ownsDispatcher bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithSettings(s Settings) Option {
	return func(c *Coordinator) { c.settings = s }
}

// WithDispatcher sets the default dispatcher for sessions that do not carry
// their own.
func WithDispatcher(d Dispatcher) Option {
	return func(c *Coordinator) { c.dispatcher = d }
}

func New(store *index.Store, tracker *dedup.Tracker, fetcher fetch.Service, backends BackendRegistry, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		tracker:  tracker,
		fetcher:  fetcher,
		backends: backends,
		settings: DefaultSettings(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dispatcher == nil {
		c.dispatcher = NewSerialDispatcher()
		c.ownsDispatcher = true
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Search looks query up in the local index. Rows that fail to decode or
// whose backend is unknown or disabled are skipped. Results are ordered by
// descending seeds.
func (c *Coordinator) Search(ctx context.Context, query string) []LocalResult {
	start := time.Now()
	hits := c.store.SearchFiles(ctx, query, c.settings.ResultsLimit)
	metrics.LocalSearchDuration.Observe(time.Since(start).Seconds())

	results := make([]LocalResult, 0, len(hits))
	for _, h := range hits {
		t, err := index.DecodeTorrent(h.TorrentPayload)
		if err != nil {
			c.logger.Warn("skipping stored torrent", "torrent_id", h.TorrentID, "error", err)
			continue
		}
		f, err := index.DecodeFile(h.FilePayload)
		if err != nil {
			c.logger.Warn("skipping stored file", "file_id", h.FileID, "error", err)
			continue
		}
		b, ok := c.backends.Lookup(t.SourceID)
		if !ok || !b.Enabled() {
			continue
		}
		c.tracker.Add(t.InfoHash)
		results = append(results, LocalResult{Torrent: t, File: f, Backend: b.Name()})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Torrent.Seeds > results[j].Torrent.Seeds
	})
	return results
}

// IndexTorrent persists the torrent behind r using the parsed document.
// The document's info hash wins over the one reported by the backend.
// backend may be nil.
func (c *Coordinator) IndexTorrent(ctx context.Context, r Result, doc *fetch.Document, backend Backend) error {
	if doc == nil {
		return errors.New("no document to index")
	}
	hash := doc.InfoHash
	if hash == "" {
		hash = r.InfoHash
	}
	if c.tracker.Indexed(ctx, hash) {
		return fmt.Errorf("%w: %s", index.ErrAlreadyIndexed, hash)
	}

	t := index.Torrent{
		InfoHash:   hash,
		Name:       r.Title,
		CreatedAt:  r.CreatedAt,
		Seeds:      r.Seeds,
		Size:       r.Size,
		SourceID:   r.SourceID,
		DetailsURL: r.DetailsURL,
		TorrentURI: r.TorrentURI,
		Vendor:     r.Vendor,
	}
	if t.Name == "" {
		t.Name = doc.Name
	}
	if t.Size <= 0 {
		t.Size = doc.Size
	}
	if backend != nil {
		t.SourceID = backend.ID()
		if t.Vendor == "" {
			t.Vendor = backend.Name()
		}
	}

	if _, err := c.store.IndexTorrent(ctx, t, doc.Files); err != nil {
		return err
	}
	c.tracker.Add(hash)
	metrics.TorrentsIndexed.Inc()
	c.logger.Debug("indexed torrent", "info_hash", hash, "files", len(doc.Files))
	return nil
}

func (c *Coordinator) TotalTorrents(ctx context.Context) int64 {
	return c.store.CountTorrents(ctx)
}

func (c *Coordinator) TotalFiles(ctx context.Context) int64 {
	return c.store.CountFiles(ctx)
}

// ResetDB wipes the index and forgets every known hash.
func (c *Coordinator) ResetDB(ctx context.Context) error {
	if err := c.store.Reset(ctx); err != nil {
		return fmt.Errorf("resetting index: %w", err)
	}
	c.tracker.Reset()
	return nil
}

// Close stops running deep searches and waits for them to return. The store
// and fetch service are left to their owners.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
	if c.ownsDispatcher {
		if d, ok := c.dispatcher.(*SerialDispatcher); ok {
			d.Close()
		}
	}
}

func (c *Coordinator) dispatcherFor(s *Session) Dispatcher {
	if s.Dispatcher != nil {
		return s.Dispatcher
	}
	return c.dispatcher
}
