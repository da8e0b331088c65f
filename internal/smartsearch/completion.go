package smartsearch

import (
	"context"
	"errors"
	"os"

	"github.com/Luchitomori/frostwire-desktop/internal/fetch"
	"github.com/Luchitomori/frostwire-desktop/internal/index"
	"github.com/Luchitomori/frostwire-desktop/internal/metrics"
)

// completion handles the outcome of one deep-search fetch.
type completion struct {
	c      *Coordinator
	s      *Session
	result Result
}

func (h *completion) Finished(path string) {
	logger := h.c.logger.With("session", h.s.ID, "path", path)
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("could not remove fetched document", "error", err)
		}
	}()

	doc, err := fetch.ParseDocument(path)
	if err != nil {
		logger.Warn("could not parse fetched document", "error", err)
		return
	}
	if h.result.InfoHash == "" {
		h.c.tracker.Add(doc.InfoHash)
	}

	backend, known := h.c.backends.Lookup(h.result.SourceID)
	if known && backend.Enabled() {
		h.surface(doc)
	}

	if err := h.c.IndexTorrent(context.Background(), h.result, doc, backend); err != nil && !errors.Is(err, index.ErrAlreadyIndexed) {
		logger.Warn("could not index torrent", "info_hash", doc.InfoHash, "error", err)
	}
}

func (h *completion) surface(doc *fetch.Document) {
	tokens := h.s.Tokens()
	if len(tokens) == 0 {
		return
	}
	var matches []DeepResult
	for _, f := range doc.Files {
		if h.matches(f, tokens) {
			matches = append(matches, DeepResult{Torrent: h.result, File: f, InfoHash: doc.InfoHash})
		}
	}
	if len(matches) == 0 || h.s.View.Closed() {
		return
	}

	view := h.s.View
	h.c.dispatcherFor(h.s).Dispatch(func() {
		if view.Closed() {
			return
		}
		for _, m := range matches {
			view.AddDeepResult(m)
		}
		metrics.DeepSearchMatches.Add(float64(len(matches)))
	})
}

// matches reports whether f contains every query token and passes the
// session filter. A panicking filter only loses this entry.
func (h *completion) matches(f index.File, tokens []string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.c.logger.Warn("file entry match failed", "session", h.s.ID, "path", f.Path, "panic", r)
			ok = false
		}
	}()
	keywords := index.Sanitize(h.result.Title + " " + f.Path)
	return index.ContainsAll(keywords, tokens) && h.s.allows(h.result, f)
}

func (h *completion) Done(state fetch.State) {
	h.c.logger.Debug("fetch done", "session", h.s.ID, "title", h.result.Title, "state", state)
	h.c.dispatcherFor(h.s).Dispatch(h.s.View.DecrementInFlight)
}
