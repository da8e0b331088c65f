package index

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PayloadVersion is the version written into every stored payload. Rows
// carrying any other version are rejected on read.
const PayloadVersion = 1

var (
	// ErrPayloadVersion reports a payload written under a different contract.
	ErrPayloadVersion = errors.New("unsupported payload version")
	// ErrInvalidPayload reports a payload that decoded but failed validation.
	ErrInvalidPayload = errors.New("invalid payload")
)

// Torrent is the persisted description of an indexed torrent.
type Torrent struct {
	InfoHash   string    `json:"info_hash"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	Seeds      int       `json:"seeds"`
	Size       int64     `json:"size"`
	SourceID   int       `json:"source_id"`
	DetailsURL string    `json:"details_url,omitempty"`
	TorrentURI string    `json:"torrent_uri,omitempty"`
	Vendor     string    `json:"vendor,omitempty"`
}

// File is one entry of an indexed torrent's file listing.
type File struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

type torrentEnvelope struct {
	V int `json:"v"`
	Torrent
}

type fileEnvelope struct {
	V int `json:"v"`
	File
}

// Validate checks the fields a stored torrent must carry.
func (t Torrent) Validate() error {
	switch {
	case strings.TrimSpace(t.InfoHash) == "":
		return fmt.Errorf("%w: empty info hash", ErrInvalidPayload)
	case strings.TrimSpace(t.Name) == "":
		return fmt.Errorf("%w: empty name", ErrInvalidPayload)
	case t.Seeds < 0:
		return fmt.Errorf("%w: negative seeds %d", ErrInvalidPayload, t.Seeds)
	case t.Size < 0:
		return fmt.Errorf("%w: negative size %d", ErrInvalidPayload, t.Size)
	}
	return nil
}

// Validate checks the fields a stored file entry must carry.
func (f File) Validate() error {
	if strings.TrimSpace(f.Path) == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPayload)
	}
	if f.Size < 0 {
		return fmt.Errorf("%w: negative size %d", ErrInvalidPayload, f.Size)
	}
	return nil
}

// EncodeTorrent serializes t under the current payload version.
func EncodeTorrent(t Torrent) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(torrentEnvelope{V: PayloadVersion, Torrent: t})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// EncodeFile serializes f under the current payload version.
func EncodeFile(f File) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(fileEnvelope{V: PayloadVersion, File: f})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeTorrent parses and validates a stored torrent payload. Unknown
// fields are rejected.
func DecodeTorrent(payload string) (Torrent, error) {
	var env torrentEnvelope
	if err := decodeStrict(payload, &env); err != nil {
		return Torrent{}, err
	}
	if env.V != PayloadVersion {
		return Torrent{}, fmt.Errorf("%w: %d", ErrPayloadVersion, env.V)
	}
	if err := env.Torrent.Validate(); err != nil {
		return Torrent{}, err
	}
	return env.Torrent, nil
}

// DecodeFile parses and validates a stored file payload.
func DecodeFile(payload string) (File, error) {
	var env fileEnvelope
	if err := decodeStrict(payload, &env); err != nil {
		return File{}, err
	}
	if env.V != PayloadVersion {
		return File{}, fmt.Errorf("%w: %d", ErrPayloadVersion, env.V)
	}
	if err := env.File.Validate(); err != nil {
		return File{}, err
	}
	return env.File, nil
}

func decodeStrict(payload string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}
