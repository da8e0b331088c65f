package fetch

import (
	"fmt"
	"strings"

	"github.com/anacrolix/torrent/metainfo"

	"github.com/Luchitomori/frostwire-desktop/internal/index"
)

// Document is the parsed content of a fetched .torrent file.
type Document struct {
	InfoHash string
	Name     string
	Size     int64
	Files    []index.File
}

// ParseDocument reads the metainfo file at path and lists its files.
func ParseDocument(path string) (*Document, error) {
	mi, err := metainfo.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return nil, fmt.Errorf("decoding info of %s: %w", path, err)
	}

	doc := &Document{
		InfoHash: mi.HashInfoBytes().HexString(),
		Name:     info.BestName(),
		Size:     info.TotalLength(),
	}
	for _, fi := range info.UpvertedFiles() {
		doc.Files = append(doc.Files, index.File{
			Path: fi.DisplayPath(&info),
			Size: fi.Length,
		})
	}
	return doc, nil
}

// MagnetURI builds a magnet link for infoHash. It returns "" when the hash
// is not a 40-character hex string.
func MagnetURI(infoHash, displayName string) string {
	var ih metainfo.Hash
	if err := ih.FromHexString(strings.TrimSpace(infoHash)); err != nil {
		return ""
	}
	return metainfo.Magnet{InfoHash: ih, DisplayName: displayName}.String()
}
