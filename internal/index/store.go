package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// SchemaVersion is the layout this build expects. Stores written with an
	// older version are wiped and rebuilt on open.
	SchemaVersion = 5

	// InvalidID is returned by Insert when nothing was written.
	InvalidID int64 = -2

	// DefaultSlowQueryThreshold is the duration after which a local search
	// is reported as suspicious.
	DefaultSlowQueryThreshold = 3 * time.Second

	storeName    = "smartsearch"
	maxNameChars = 10000
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("index store is closed")
	// ErrAlreadyIndexed is returned when a torrent's info hash is already stored.
	ErrAlreadyIndexed = errors.New("torrent already indexed")

	errNoSchema = errors.New("no schema")
)

// Rows is a generic result set: one slice of column values per row.
type Rows [][]any

// Hit is one (torrent, file) pair produced by a full-text search.
type Hit struct {
	TorrentID      int64
	FileID         int64
	TorrentName    string
	FileName       string
	Seeds          int
	TorrentPayload string
	FilePayload    string
}

// Store is the durable local index of torrents and their files. Every
// public operation holds a single lock.
type Store struct {
	mu        sync.Mutex
	path      string
	db        *sql.DB
	logger    *slog.Logger
	slowQuery time.Duration
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for store diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSlowQueryThreshold sets the duration after which a search logs a
// corruption warning.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.slowQuery = d
		}
	}
}

// Open opens the index at dbPath, creating it if needed. A store whose
// metadata is missing, unreadable, or older than SchemaVersion is rebuilt
// from scratch.
func Open(dbPath string, opts ...Option) (*Store, error) {
	s := &Store{
		path:      dbPath,
		logger:    slog.Default(),
		slowQuery: DefaultSlowQueryThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func openDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func (s *Store) openLocked() error {
	db, err := openDB(s.path)
	if err != nil {
		return err
	}

	version, err := readVersion(db)
	switch {
	case err == nil && version >= SchemaVersion:
		s.db = db
		return nil
	case errors.Is(err, errNoSchema):
		s.logger.Debug("creating index schema", "path", s.path)
	case err != nil:
		s.logger.Warn("index metadata unreadable, rebuilding", "path", s.path, "error", err)
	default:
		s.logger.Info("index schema outdated, rebuilding", "path", s.path, "found", version, "required", SchemaVersion)
	}
	db.Close()
	return s.rebuildLocked()
}

func readVersion(db *sql.DB) (int, error) {
	var tables int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'smart_search_meta'",
	).Scan(&tables); err != nil {
		return 0, err
	}
	if tables == 0 {
		return 0, errNoSchema
	}
	var version int
	if err := db.QueryRow("SELECT version FROM smart_search_meta WHERE id = 1").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

func (s *Store) rebuildLocked() error {
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(s.path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", s.path+suffix, err)
		}
	}

	db, err := openDB(s.path)
	if err != nil {
		return err
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return fmt.Errorf("creating schema: %w", err)
	}
	s.db = db
	return nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE torrents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		info_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		name TEXT NOT NULL,
		seeds INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL
	);

	CREATE INDEX idx_torrents_info_hash ON torrents(info_hash);
	CREATE INDEX idx_torrents_seeds ON torrents(seeds);

	CREATE TABLE files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		torrent_id INTEGER NOT NULL REFERENCES torrents(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		payload TEXT NOT NULL,
		keywords TEXT NOT NULL
	);

	CREATE INDEX idx_files_torrent ON files(torrent_id);

	CREATE VIRTUAL TABLE files_fts USING fts5(
		keywords,
		content=files,
		content_rowid=id,
		tokenize='unicode61 remove_diacritics 2'
	);

	CREATE TRIGGER files_ai AFTER INSERT ON files BEGIN
		INSERT INTO files_fts(rowid, keywords) VALUES (new.id, new.keywords);
	END;

	CREATE TRIGGER files_ad AFTER DELETE ON files BEGIN
		INSERT INTO files_fts(files_fts, rowid, keywords) VALUES('delete', old.id, old.keywords);
	END;

	CREATE TRIGGER files_au AFTER UPDATE ON files BEGIN
		INSERT INTO files_fts(files_fts, rowid, keywords) VALUES('delete', old.id, old.keywords);
		INSERT INTO files_fts(rowid, keywords) VALUES (new.id, new.keywords);
	END;

	CREATE TABLE snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at INTEGER NOT NULL,
		last_torrent_id INTEGER NOT NULL
	);

	CREATE TABLE smart_search_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		name TEXT NOT NULL,
		version INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	_, err := db.Exec(
		"INSERT INTO smart_search_meta (id, name, version) VALUES (1, ?, ?)",
		storeName, SchemaVersion,
	)
	return err
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database. Later calls are no-ops.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Reset destroys every stored record and recreates an empty schema.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("resetting local index", "path", s.path)
	return s.rebuildLocked()
}

// Query runs a read statement. Failures are logged and yield no rows.
func (s *Store) Query(ctx context.Context, statement string, args ...any) Rows {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return Rows{}
	}

	rows, err := s.db.QueryContext(ctx, statement, args...)
	if err != nil {
		s.logger.Warn("index query failed", "error", err)
		return Rows{}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		s.logger.Warn("index query failed", "error", err)
		return Rows{}
	}

	out := Rows{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			s.logger.Warn("index query scan failed", "error", err)
			return Rows{}
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("index query failed", "error", err)
		return Rows{}
	}
	return out
}

// Insert runs an INSERT statement and returns the generated row id, or
// InvalidID when the statement is not an insert or fails.
func (s *Store) Insert(ctx context.Context, statement string, args ...any) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return InvalidID
	}
	id, err := insert(ctx, s.db, statement, args...)
	if err != nil {
		s.logger.Warn("index insert failed", "error", err)
		return InvalidID
	}
	return id
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insert(ctx context.Context, db execer, statement string, args ...any) (int64, error) {
	if !isInsert(statement) {
		return InvalidID, fmt.Errorf("not an insert statement: %.40q", statement)
	}
	res, err := db.ExecContext(ctx, statement, args...)
	if err != nil {
		return InvalidID, err
	}
	return res.LastInsertId()
}

func isInsert(statement string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(statement)), "INSERT")
}

// NormalizeInfoHash returns the canonical stored form of an info hash.
func NormalizeInfoHash(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	return strings.TrimPrefix(value, "urn:btih:")
}

// TorrentExists reports whether a torrent with infoHash has been indexed.
func (s *Store) TorrentExists(ctx context.Context, infoHash string) bool {
	hash := NormalizeInfoHash(infoHash)
	if hash == "" {
		return false
	}
	return len(s.Query(ctx, "SELECT 1 FROM torrents WHERE info_hash = ? LIMIT 1", hash)) > 0
}

// CountTorrents returns the number of indexed torrents.
func (s *Store) CountTorrents(ctx context.Context) int64 {
	return s.count(ctx, "SELECT COUNT(*) FROM torrents")
}

// CountFiles returns the number of indexed files.
func (s *Store) CountFiles(ctx context.Context) int64 {
	return s.count(ctx, "SELECT COUNT(*) FROM files")
}

func (s *Store) count(ctx context.Context, statement string) int64 {
	rows := s.Query(ctx, statement)
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0
	}
	n, _ := rows[0][0].(int64)
	return n
}

// IndexTorrent stores t and its files in one transaction and returns the
// torrent's row id. File entries that fail validation are skipped.
func (s *Store) IndexTorrent(ctx context.Context, t Torrent, files []File) (int64, error) {
	t.InfoHash = NormalizeInfoHash(t.InfoHash)
	torrentPayload, err := EncodeTorrent(t)
	if err != nil {
		return InvalidID, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return InvalidID, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return InvalidID, err
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM torrents WHERE info_hash = ?", t.InfoHash,
	).Scan(&existing); err != nil {
		return InvalidID, err
	}
	if existing > 0 {
		return InvalidID, fmt.Errorf("%w: %s", ErrAlreadyIndexed, t.InfoHash)
	}

	torrentID, err := insert(ctx, tx,
		`INSERT INTO torrents (info_hash, created_at, name, seeds, payload)
		 VALUES (?, ?, substr(?, 1, ?), ?, ?)`,
		t.InfoHash, s.now().UnixMilli(), strings.ToLower(t.Name), maxNameChars, t.Seeds, torrentPayload,
	)
	if err != nil {
		return InvalidID, fmt.Errorf("inserting torrent %s: %w", t.InfoHash, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO files (torrent_id, name, payload, keywords)
		 VALUES (?, substr(?, 1, ?), ?, ?)`,
	)
	if err != nil {
		return InvalidID, err
	}
	defer stmt.Close()

	for _, f := range files {
		filePayload, err := EncodeFile(f)
		if err != nil {
			s.logger.Warn("skipping file entry", "info_hash", t.InfoHash, "path", f.Path, "error", err)
			continue
		}
		keywords := Sanitize(t.Name + " " + f.Path)
		if _, err := stmt.ExecContext(ctx, torrentID, f.Path, maxNameChars, filePayload, keywords); err != nil {
			return InvalidID, fmt.Errorf("inserting file %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return InvalidID, err
	}
	return torrentID, nil
}

// SearchFiles performs the two-phase full-text lookup: matching file ids
// first, then the joined (torrent, file) pairs ordered by descending seeds.
// Both phases are bounded by limit. Failures yield no hits.
func (s *Store) SearchFiles(ctx context.Context, query string, limit int) []Hit {
	if limit <= 0 {
		limit = 50
	}
	match := buildMatchQuery(query)
	if match == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}

	start := s.now()
	ids, err := s.matchFileIDsLocked(ctx, match, limit)
	if err != nil {
		s.logger.Warn("full-text query failed", "query", query, "error", err)
		return nil
	}
	if len(ids) == 0 {
		return nil
	}

	hits, err := s.joinHitsLocked(ctx, ids, limit)
	if err != nil {
		s.logger.Warn("index join failed", "query", query, "error", err)
		return nil
	}

	elapsed := s.now().Sub(start)
	s.logger.Debug("local index search", "query", query, "results", len(hits), "elapsed", elapsed)
	if elapsed > s.slowQuery {
		s.logger.Warn("local index search took too long; the index may be corrupt, consider resetting it",
			"elapsed", elapsed, "path", s.path)
	}
	return hits
}

func (s *Store) matchFileIDsLocked(ctx context.Context, match string, limit int) ([]any, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT rowid FROM files_fts WHERE files_fts MATCH ? LIMIT ?", match, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []any
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) joinHitsLocked(ctx context.Context, ids []any, limit int) ([]Hit, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := append(ids, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, f.id, t.name, f.name, t.seeds, t.payload, f.payload
		FROM files f
		JOIN torrents t ON t.id = f.torrent_id
		WHERE f.id IN (`+placeholders+`)
		ORDER BY t.seeds DESC, f.id ASC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(
			&h.TorrentID, &h.FileID, &h.TorrentName, &h.FileName,
			&h.Seeds, &h.TorrentPayload, &h.FilePayload,
		); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Snapshot records the current end of the index so that everything indexed
// afterwards can be rolled back. It returns the snapshot id.
func (s *Store) Snapshot(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return InvalidID, ErrClosed
	}
	return insert(ctx, s.db,
		`INSERT INTO snapshots (created_at, last_torrent_id)
		 VALUES (?, COALESCE((SELECT MAX(id) FROM torrents), 0))`,
		s.now().UnixMilli(),
	)
}

// Rollback deletes every torrent indexed after the given snapshot, along
// with its files, and forgets later snapshots. It returns the number of
// torrents removed.
func (s *Store) Rollback(ctx context.Context, snapshotID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var lastID int64
	err = tx.QueryRowContext(ctx, "SELECT last_torrent_id FROM snapshots WHERE id = ?", snapshotID).Scan(&lastID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("snapshot %d not found", snapshotID)
	}
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM torrents WHERE id > ?", lastID)
	if err != nil {
		return 0, fmt.Errorf("rolling back to snapshot %d: %w", snapshotID, err)
	}
	removed, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE id > ?", snapshotID); err != nil {
		return 0, err
	}
	return removed, tx.Commit()
}
