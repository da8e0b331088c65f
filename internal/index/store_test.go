package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "search_db", "smartsearch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ubuntuTorrent(hash string, seeds int) Torrent {
	return Torrent{
		InfoHash:  hash,
		Name:      "Ubuntu 24.04 Desktop",
		CreatedAt: time.Date(2024, 4, 25, 0, 0, 0, 0, time.UTC),
		Seeds:     seeds,
		Size:      6 << 30,
		SourceID:  6,
	}
}

func TestIndexTorrent_ThenExists(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	hash := "3B245504CF5F11BBDBE1201CEA6A6BF45AEE1BC0"
	assert.False(t, s.TorrentExists(ctx, hash))

	id, err := s.IndexTorrent(ctx, ubuntuTorrent(hash, 50), []File{
		{Path: "ubuntu-24.04-desktop-amd64.iso", Size: 6 << 30},
		{Path: "README.txt", Size: 120},
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	assert.True(t, s.TorrentExists(ctx, hash))
	assert.True(t, s.TorrentExists(ctx, "urn:btih:"+hash))
	assert.Equal(t, int64(1), s.CountTorrents(ctx))
	assert.Equal(t, int64(2), s.CountFiles(ctx))
}

func TestIndexTorrent_RejectsDuplicateHash(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	hash := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	_, err := s.IndexTorrent(ctx, ubuntuTorrent(hash, 5), []File{{Path: "a.iso", Size: 1}})
	require.NoError(t, err)

	_, err = s.IndexTorrent(ctx, ubuntuTorrent(hash, 9), []File{{Path: "b.iso", Size: 1}})
	require.ErrorIs(t, err, ErrAlreadyIndexed)
	assert.Equal(t, int64(1), s.CountTorrents(ctx))
	assert.Equal(t, int64(1), s.CountFiles(ctx))
}

func TestIndexTorrent_SkipsInvalidFiles(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.IndexTorrent(ctx, ubuntuTorrent("bbbb", 1), []File{
		{Path: "", Size: 10},
		{Path: "ok.iso", Size: -1},
		{Path: "good.iso", Size: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.CountFiles(ctx))
}

func TestSearchFiles_OrdersBySeedsDescending(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	low := ubuntuTorrent("1111", 10)
	low.Name = "ubuntu server iso"
	high := ubuntuTorrent("2222", 50)
	high.Name = "Ubuntu Desktop ISO"

	_, err := s.IndexTorrent(ctx, low, []File{{Path: "ubuntu-server.iso", Size: 1}})
	require.NoError(t, err)
	_, err = s.IndexTorrent(ctx, high, []File{{Path: "ubuntu-desktop.iso", Size: 1}})
	require.NoError(t, err)
	_, err = s.IndexTorrent(ctx, Torrent{InfoHash: "3333", Name: "Debian", Seeds: 99}, []File{{Path: "debian.iso", Size: 1}})
	require.NoError(t, err)

	hits := s.SearchFiles(ctx, "ubuntu iso", 10)
	require.Len(t, hits, 2)
	assert.Equal(t, 50, hits[0].Seeds)
	assert.Equal(t, 10, hits[1].Seeds)

	tor, err := DecodeTorrent(hits[0].TorrentPayload)
	require.NoError(t, err)
	assert.Equal(t, "2222", tor.InfoHash)
}

func TestSearchFiles_BoundedByLimit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	files := make([]File, 0, 10)
	for i := 0; i < 10; i++ {
		files = append(files, File{Path: "disc/track" + string(rune('a'+i)) + ".flac", Size: 1})
	}
	_, err := s.IndexTorrent(ctx, Torrent{InfoHash: "cccc", Name: "Album", Seeds: 3}, files)
	require.NoError(t, err)

	assert.Len(t, s.SearchFiles(ctx, "album flac", 4), 4)
}

func TestSearchFiles_EmptyOrOperatorOnlyQuery(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.IndexTorrent(ctx, ubuntuTorrent("dddd", 1), []File{{Path: "x.iso", Size: 1}})
	require.NoError(t, err)

	assert.Empty(t, s.SearchFiles(ctx, "", 10))
	assert.Empty(t, s.SearchFiles(ctx, `"*^{}`, 10))
}

func TestOpen_RebuildsOutdatedSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "smartsearch.db")

	s, err := Open(path)
	require.NoError(t, err)
	hash := "eeee"
	_, err = s.IndexTorrent(ctx, ubuntuTorrent(hash, 1), []File{{Path: "x.iso", Size: 1}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	db, err := openDB(path)
	require.NoError(t, err)
	_, err = db.Exec("UPDATE smart_search_meta SET version = 3 WHERE id = 1")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.TorrentExists(ctx, hash))
	assert.Zero(t, s.CountTorrents(ctx))

	rows := s.Query(ctx, "SELECT version, name FROM smart_search_meta")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(SchemaVersion), rows[0][0])
}

func TestOpen_RebuildsCorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "smartsearch.db")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a database file, just some bytes"), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.IndexTorrent(ctx, ubuntuTorrent("ffff", 1), []File{{Path: "x.iso", Size: 1}})
	require.NoError(t, err)
	assert.True(t, s.TorrentExists(ctx, "ffff"))
}

func TestReset_ClearsEverything(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.IndexTorrent(ctx, ubuntuTorrent("abab", 1), []File{{Path: "x.iso", Size: 1}})
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))
	assert.Zero(t, s.CountTorrents(ctx))
	assert.Zero(t, s.CountFiles(ctx))
	assert.Empty(t, s.SearchFiles(ctx, "ubuntu", 10))

	_, err = s.IndexTorrent(ctx, ubuntuTorrent("abab", 1), []File{{Path: "x.iso", Size: 1}})
	require.NoError(t, err)
}

func TestInsert_RejectsNonInsertStatements(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	assert.Equal(t, InvalidID, s.Insert(ctx, "DELETE FROM torrents"))
	assert.Equal(t, InvalidID, s.Insert(ctx, "INSERT INTO no_such_table VALUES (1)"))

	id := s.Insert(ctx, "  insert INTO snapshots (created_at, last_torrent_id) VALUES (?, ?)", 1, 0)
	assert.Positive(t, id)
}

func TestClosedStore_DegradesQuietly(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Close())

	assert.Empty(t, s.Query(ctx, "SELECT 1"))
	assert.Equal(t, InvalidID, s.Insert(ctx, "INSERT INTO snapshots (created_at, last_torrent_id) VALUES (1, 0)"))
	assert.Zero(t, s.CountTorrents(ctx))
	assert.Nil(t, s.SearchFiles(ctx, "ubuntu", 10))

	_, err := s.IndexTorrent(ctx, ubuntuTorrent("abcd", 1), nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSnapshotRollback(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.IndexTorrent(ctx, ubuntuTorrent("0001", 1), []File{{Path: "keep.iso", Size: 1}})
	require.NoError(t, err)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)

	_, err = s.IndexTorrent(ctx, ubuntuTorrent("0002", 1), []File{{Path: "drop.iso", Size: 1}})
	require.NoError(t, err)
	_, err = s.IndexTorrent(ctx, ubuntuTorrent("0003", 1), []File{{Path: "drop2.iso", Size: 1}})
	require.NoError(t, err)

	removed, err := s.Rollback(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	assert.True(t, s.TorrentExists(ctx, "0001"))
	assert.False(t, s.TorrentExists(ctx, "0002"))
	assert.Equal(t, int64(1), s.CountFiles(ctx))
	assert.Empty(t, s.SearchFiles(ctx, "drop", 10))

	_, err = s.Rollback(ctx, snap+100)
	assert.Error(t, err)
}
