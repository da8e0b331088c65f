package smartsearch

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luchitomori/frostwire-desktop/internal/fetch"
	"github.com/Luchitomori/frostwire-desktop/internal/index"
)

func TestCompletion_PanickingEntryDoesNotLoseOthers(t *testing.T) {
	h := newHarness(t, fastSettings())
	docPath, hash := ubuntuDocument(t, t.TempDir())
	path, err := copyDocument(docPath, h.dir)
	require.NoError(t, err)

	panel := NewPanel()
	s := NewSession("ubuntu", panel)
	s.Filter = func(_ Result, f index.File) bool {
		if strings.Contains(f.Path, "README") {
			panic("bad entry")
		}
		return true
	}

	r := Result{Title: "Ubuntu 24.04 Desktop", InfoHash: hash, Seeds: 3, SourceID: 6}
	job := fetch.NewJob(&completion{c: h.coord, s: s, result: r}, nil)
	panel.IncrementInFlight()
	require.True(t, job.Observe(fetch.Finished, path))
	h.dispatcher.Wait()

	deep := panel.DeepResults()
	require.Len(t, deep, 1)
	assert.Equal(t, "ubuntu-24.04-desktop-amd64.iso", deep[0].File.Path)
	assert.Zero(t, panel.InFlight())
	assert.True(t, h.store.TorrentExists(context.Background(), hash))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestCompletion_UnparseableDocument(t *testing.T) {
	h := newHarness(t, fastSettings())
	path := h.dir + "/broken.torrent"
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	panel := NewPanel()
	s := NewSession("ubuntu", panel)
	job := fetch.NewJob(&completion{c: h.coord, s: s, result: Result{Title: "x", SourceID: 6}}, nil)
	panel.IncrementInFlight()
	job.Observe(fetch.Finished, path)
	h.dispatcher.Wait()

	assert.Empty(t, panel.DeepResults())
	assert.Zero(t, panel.InFlight())
	assert.Zero(t, h.coord.TotalTorrents(context.Background()))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestCompletion_QueryWithoutTokensSurfacesNothing(t *testing.T) {
	h := newHarness(t, fastSettings())
	docPath, hash := ubuntuDocument(t, t.TempDir())
	path, err := copyDocument(docPath, h.dir)
	require.NoError(t, err)

	panel := NewPanel()
	s := NewSession("---", panel)
	require.Empty(t, s.Tokens())

	r := Result{Title: "Ubuntu 24.04 Desktop", InfoHash: hash, Seeds: 3, SourceID: 6}
	job := fetch.NewJob(&completion{c: h.coord, s: s, result: r}, nil)
	panel.IncrementInFlight()
	require.True(t, job.Observe(fetch.Finished, path))
	h.dispatcher.Wait()

	assert.Empty(t, panel.DeepResults())
	assert.Zero(t, panel.InFlight())
	assert.True(t, h.store.TorrentExists(context.Background(), hash))
}
