package smartsearch

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Luchitomori/frostwire-desktop/internal/fetch"
	"github.com/Luchitomori/frostwire-desktop/internal/metrics"
)

// Launch runs DeepSearch on its own goroutine. The returned channel is
// closed when it returns.
func (c *Coordinator) Launch(ctx context.Context, s *Session) <-chan struct{} {
	done := make(chan struct{})
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		c.DeepSearch(ctx, s)
	}()
	return done
}

// DeepSearch waits for results to accumulate, then for each round fetches
// the metadata of the best unseen torrents in the session's view. It returns
// when the rounds are exhausted, the view closes, ctx is done or the
// coordinator is closed. Fetches already issued keep running after it
// returns; their matches are dropped if the view has closed by then.
func (c *Coordinator) DeepSearch(ctx context.Context, s *Session) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	logger := c.logger.With("session", s.ID)
	logger.Debug("deep search started", "query", s.Query, "tokens", s.Tokens())

	if !sleep(ctx, c.settings.StartDelay) {
		return
	}
	for round := 1; round <= c.settings.Rounds; round++ {
		if ctx.Err() != nil || s.View.Closed() {
			logger.Debug("deep search stopped", "round", round)
			return
		}
		s.round.Store(int32(round))
		metrics.DeepSearchRounds.Inc()

		issued := c.scanRound(ctx, s)
		logger.Debug("deep search round", "round", round, "issued", issued)

		if !sleep(ctx, c.settings.RoundDelay) {
			return
		}
	}
	logger.Debug("deep search finished", "rounds", c.settings.Rounds)
}

func (c *Coordinator) scanRound(ctx context.Context, s *Session) int {
	candidates := torrentsBySeeds(s.View.CurrentBatch())

	issued := 0
	for _, r := range candidates {
		if issued >= c.settings.MaxTorrentsToScan || ctx.Err() != nil {
			break
		}
		if b, ok := c.backends.Lookup(r.SourceID); ok && !b.Enabled() {
			continue
		}
		key := dedupKey(r)
		if key == "" || c.tracker.Seen(key) {
			continue
		}
		if r.InfoHash != "" && c.tracker.Indexed(ctx, key) {
			continue
		}
		uri := pickURI(r, s.directUsed)
		if uri == "" {
			continue
		}
		if !c.tracker.TryAdd(key) {
			continue
		}
		c.issue(ctx, s, r, uri)
		issued++
	}
	return issued
}

func (c *Coordinator) issue(ctx context.Context, s *Session, r Result, uri string) {
	job := fetch.NewJob(&completion{c: c, s: s, result: r}, c.logger)
	c.dispatcherFor(s).Dispatch(s.View.IncrementInFlight)
	if err := c.fetcher.Fetch(ctx, uri, job.Notify()); err != nil {
		c.logger.Warn("could not start fetch", "session", s.ID, "uri", uri, "error", err)
		job.Observe(fetch.Error, "")
	}
}

// torrentsBySeeds keeps the torrent results of batch, best seeded first.
func torrentsBySeeds(batch []Result) []Result {
	out := make([]Result, 0, len(batch))
	for _, r := range batch {
		if r.IsTorrent() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seeds > out[j].Seeds })
	return out
}

func dedupKey(r Result) string {
	if h := strings.TrimSpace(r.InfoHash); h != "" {
		return h
	}
	if r.TorrentURI != "" {
		return "uri:" + r.TorrentURI
	}
	return ""
}

// pickURI chooses between the backend's direct URI and a magnet link. Each
// backend gets one direct fetch per session; the rest go to the swarm.
// Results without a usable hash can only be fetched directly.
func pickURI(r Result, directUsed map[int]bool) string {
	magnet := fetch.MagnetURI(r.InfoHash, r.Title)
	if r.TorrentURI != "" && (!directUsed[r.SourceID] || magnet == "") {
		directUsed[r.SourceID] = true
		return r.TorrentURI
	}
	return magnet
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
