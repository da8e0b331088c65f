package smartsearch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/require"

	"github.com/Luchitomori/frostwire-desktop/internal/config"
	"github.com/Luchitomori/frostwire-desktop/internal/dedup"
	"github.com/Luchitomori/frostwire-desktop/internal/fetch"
	"github.com/Luchitomori/frostwire-desktop/internal/index"
)

type fakeCall struct {
	uri    string
	notify fetch.Notify
}

// fakeService records fetches. When doc is set every fetch completes with a
// fresh copy of it; otherwise calls stay pending until completed by hand.
type fakeService struct {
	mu    sync.Mutex
	calls []fakeCall
	doc   string
	dir   string
	err   error
}

func (f *fakeService) Fetch(ctx context.Context, uri string, notify fetch.Notify) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{uri: uri, notify: notify})
	f.mu.Unlock()

	if f.doc != "" {
		go func() {
			notify(fetch.Fetching, "")
			path, err := copyDocument(f.doc, f.dir)
			if err != nil {
				notify(fetch.Error, "")
				return
			}
			notify(fetch.Finished, path)
		}()
	}
	return nil
}

func (f *fakeService) uris() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.uri)
	}
	return out
}

func (f *fakeService) call(i int) fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func copyDocument(src, dir string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "fetched-*.torrent")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// writeTorrent builds a metainfo file and returns its path and info hash.
func writeTorrent(t *testing.T, dir, name string, files ...metainfo.FileInfo) (string, string) {
	t.Helper()
	info := metainfo.Info{
		Name:        name,
		PieceLength: 16384,
		Pieces:      make([]byte, 20),
		Files:       files,
	}
	infoBytes, err := bencode.Marshal(info)
	require.NoError(t, err)

	mi := metainfo.MetaInfo{InfoBytes: infoBytes}
	path := filepath.Join(dir, name+".torrent")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, mi.Write(f))
	require.NoError(t, f.Close())
	return path, mi.HashInfoBytes().HexString()
}

type harness struct {
	store      *index.Store
	tracker    *dedup.Tracker
	backends   *Backends
	service    *fakeService
	dispatcher *SerialDispatcher
	coord      *Coordinator
	dir        string
}

func fastSettings() Settings {
	return Settings{
		StartDelay:        5 * time.Millisecond,
		RoundDelay:        20 * time.Millisecond,
		Rounds:            3,
		MaxTorrentsToScan: 4,
		ResultsLimit:      256,
	}
}

func newHarness(t *testing.T, settings Settings) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := index.Open(filepath.Join(dir, "smartsearch.db"))
	require.NoError(t, err)

	h := &harness{
		store:      store,
		tracker:    dedup.New(store),
		backends:   NewBackends(config.DefaultBackends()),
		service:    &fakeService{dir: dir},
		dispatcher: NewSerialDispatcher(),
		dir:        dir,
	}
	h.coord = New(h.store, h.tracker, h.service, h.backends,
		WithSettings(settings),
		WithDispatcher(h.dispatcher),
	)
	t.Cleanup(func() {
		h.coord.Close()
		h.dispatcher.Close()
		h.store.Close()
	})
	return h
}

func (h *harness) index(t *testing.T, hash, name string, seeds, source int, paths ...string) {
	t.Helper()
	files := make([]index.File, 0, len(paths))
	for _, p := range paths {
		files = append(files, index.File{Path: p, Size: 1})
	}
	_, err := h.store.IndexTorrent(context.Background(), index.Torrent{
		InfoHash: hash,
		Name:     name,
		Seeds:    seeds,
		SourceID: source,
	}, files)
	require.NoError(t, err)
}
