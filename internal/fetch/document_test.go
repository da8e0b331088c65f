package fetch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luchitomori/frostwire-desktop/internal/index"
)

func writeTorrent(t *testing.T, dir string, info metainfo.Info) (string, string) {
	t.Helper()
	info.PieceLength = 16384
	info.Pieces = make([]byte, 20)
	infoBytes, err := bencode.Marshal(info)
	require.NoError(t, err)

	mi := metainfo.MetaInfo{InfoBytes: infoBytes}
	path := filepath.Join(dir, info.Name+".torrent")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, mi.Write(f))
	require.NoError(t, f.Close())
	return path, mi.HashInfoBytes().HexString()
}

func TestParseDocument_MultiFile(t *testing.T) {
	path, hash := writeTorrent(t, t.TempDir(), metainfo.Info{
		Name: "Ubuntu Desktop",
		Files: []metainfo.FileInfo{
			{Path: []string{"iso", "ubuntu-24.04-desktop-amd64.iso"}, Length: 100},
			{Path: []string{"SHA256SUMS"}, Length: 5},
		},
	})

	doc, err := ParseDocument(path)
	require.NoError(t, err)
	assert.Equal(t, hash, doc.InfoHash)
	assert.Equal(t, "Ubuntu Desktop", doc.Name)
	assert.Equal(t, int64(105), doc.Size)
	assert.Equal(t, []index.File{
		{Path: "iso/ubuntu-24.04-desktop-amd64.iso", Size: 100},
		{Path: "SHA256SUMS", Size: 5},
	}, doc.Files)
}

func TestParseDocument_SingleFile(t *testing.T) {
	path, _ := writeTorrent(t, t.TempDir(), metainfo.Info{Name: "movie.mkv", Length: 42})

	doc, err := ParseDocument(path)
	require.NoError(t, err)
	assert.Equal(t, []index.File{{Path: "movie.mkv", Size: 42}}, doc.Files)
}

func TestParseDocument_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.torrent")
	require.NoError(t, os.WriteFile(path, []byte("not bencode"), 0o644))

	_, err := ParseDocument(path)
	assert.Error(t, err)
}

func TestMagnetURI(t *testing.T) {
	uri := MagnetURI("3B245504CF5F11BBDBE1201CEA6A6BF45AEE1BC0", "ubuntu")
	assert.Contains(t, uri, "magnet:?xt=urn:btih:3b245504cf5f11bbdbe1201cea6a6bf45aee1bc0")
	assert.Contains(t, uri, "dn=ubuntu")

	assert.Empty(t, MagnetURI("nothex", ""))
	assert.Empty(t, MagnetURI("", ""))
}
