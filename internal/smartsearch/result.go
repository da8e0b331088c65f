// Package smartsearch answers queries from the local torrent index and runs
// deep searches that fetch the file listings of promising live results.
package smartsearch

import (
	"strings"
	"time"

	"github.com/Luchitomori/frostwire-desktop/internal/index"
)

// Result is one candidate produced by a search backend.
type Result struct {
	Title      string    `json:"title"`
	InfoHash   string    `json:"info_hash,omitempty"`
	Size       int64     `json:"size"`
	Seeds      int       `json:"seeds"`
	TorrentURI string    `json:"torrent_uri,omitempty"`
	DetailsURL string    `json:"details_url,omitempty"`
	SourceID   int       `json:"source_id"`
	CreatedAt  time.Time `json:"created_at"`
	Extension  string    `json:"extension,omitempty"`
	Vendor     string    `json:"vendor,omitempty"`
}

// IsTorrent reports whether r describes a torrent rather than, say, a
// streaming result. Results without an extension count as torrents when
// they carry an info hash.
func (r Result) IsTorrent() bool {
	if r.Extension == "" {
		return r.InfoHash != ""
	}
	return strings.Contains(strings.ToLower(r.Extension), "torrent")
}

// LocalResult is a file hit from the local index.
type LocalResult struct {
	Torrent index.Torrent `json:"torrent"`
	File    index.File    `json:"file"`
	Backend string        `json:"backend"`
}

// DeepResult is a file inside a live result's torrent that matched the
// session query.
type DeepResult struct {
	Torrent  Result     `json:"torrent"`
	File     index.File `json:"file"`
	InfoHash string     `json:"info_hash"`
}
