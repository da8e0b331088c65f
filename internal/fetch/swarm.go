package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
)

// Swarm resolves magnet links to metainfo documents by asking peers.
type Swarm struct {
	client *torrent.Client
	logger *slog.Logger
}

// NewSwarm starts a metadata-only BitTorrent client keeping its state in
// dataDir.
func NewSwarm(dataDir string, logger *slog.Logger) (*Swarm, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := torrent.NewDefaultClientConfig()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	cfg.ListenPort = 0
	cfg.NoUpload = true
	cfg.Seed = false

	client, err := torrent.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("starting torrent client: %w", err)
	}
	return &Swarm{client: client, logger: logger}, nil
}

// FetchMagnet waits for the swarm to deliver the info dictionary of magnet
// and writes the resulting metainfo into dir. A magnet already being
// resolved yields ErrDuplicate.
func (s *Swarm) FetchMagnet(ctx context.Context, magnet, dir string) (string, error) {
	m, err := metainfo.ParseMagnetUri(magnet)
	if err != nil {
		return "", fmt.Errorf("parsing magnet: %w", err)
	}
	if _, ok := s.client.Torrent(m.InfoHash); ok {
		return "", ErrDuplicate
	}

	t, err := s.client.AddMagnet(magnet)
	if err != nil {
		return "", fmt.Errorf("adding magnet: %w", err)
	}
	defer t.Drop()

	select {
	case <-t.GotInfo():
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating fetch directory: %w", err)
	}
	f, err := os.CreateTemp(dir, "magnet-*.torrent")
	if err != nil {
		return "", err
	}
	mi := t.Metainfo()
	if err := mi.Write(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing metainfo: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	s.logger.Debug("resolved magnet", "info_hash", m.InfoHash.HexString(), "path", f.Name())
	return f.Name(), nil
}

// Close shuts the client down.
func (s *Swarm) Close() error {
	return errors.Join(s.client.Close()...)
}
