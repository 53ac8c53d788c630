// Package store provides SQLite-backed persistence for the creator tracker.
// Uses ncruces/go-sqlite3/driver which provides a database/sql interface.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	"github.com/google/uuid"
	"github.com/ncruces/go-sqlite3"
	"github.com/ncruces/go-sqlite3/driver"
	"github.com/ncruces/go-sqlite3/vfs"
	"github.com/ncruces/go-sqlite3/vfs/memdb"
	"golang.org/x/text/cases"
)

// BaseVersion is the schema version stamped on a freshly created database.
// Migrations take it forward from there.
const BaseVersion = "1.0.0"

// SQLiteStore is the SQLite-backed data store.
// The database is in-memory and pinned to a single connection, so every
// call is serialized through mu.
type SQLiteStore struct {
	mu  sync.RWMutex
	db  *queryLogger
	log *slog.Logger
	now func() time.Time
}

// schema defines the base tables.
// No foreign keys: ownership cascades are done by the application.
const schema = `
CREATE TABLE IF NOT EXISTS version (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    version TEXT NOT NULL,
    iteration INTEGER NOT NULL DEFAULT 0,
    last_modified TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    uuid TEXT NOT NULL DEFAULT '` + NilOwnerUUID + `',
    share_collection INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS creators (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    aliases TEXT DEFAULT '[]',
    date_added TEXT NOT NULL,
    favorite INTEGER NOT NULL DEFAULT 0,
    verified INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_creators_name ON creators(name COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS contents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT NOT NULL,
    tab_label TEXT,
    date_added TEXT NOT NULL,
    creator_id INTEGER NOT NULL,
    favorite INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_contents_creator ON contents(creator_id);

CREATE TABLE IF NOT EXISTS platforms (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS platform_profiles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    link TEXT NOT NULL,
    creator_id INTEGER NOT NULL,
    platform_id INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_profiles_creator ON platform_profiles(creator_id);
`

// NewSQLiteStore creates a fresh in-memory store at BaseVersion with default settings.
func NewSQLiteStore(logger *slog.Logger) (*SQLiteStore, error) {
	s, err := openMemory(logger)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO version (id, version, iteration, last_modified) VALUES (1, ?, 0, ?)`,
		BaseVersion, formatTime(s.now())); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("failed to seed version row: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO settings (id) VALUES (1)`); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("failed to seed settings row: %w", err)
	}
	return s, nil
}

// OpenSnapshot builds a new in-memory store from a serialized database blob.
// The blob must carry the version table; nothing else is checked here.
func OpenSnapshot(ctx context.Context, data []byte, logger *slog.Logger) (*SQLiteStore, error) {
	if len(data) == 0 {
		return nil, errors.New("empty snapshot")
	}
	s, err := openMemory(logger)
	if err != nil {
		return nil, err
	}

	err = s.rawConn(ctx, func(c *sqlite3.Conn) error {
		return deserialize(c, data)
	})
	if err != nil {
		s.db.Close()
		return nil, fmt.Errorf("failed to deserialize snapshot: %w", err)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM version WHERE id = 1`).Scan(&n); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("snapshot has no version table: %w", err)
	}
	if n != 1 {
		s.db.Close()
		return nil, errors.New("snapshot has no version row")
	}
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO settings (id) VALUES (1)`); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("failed to seed settings row: %w", err)
	}
	return s, nil
}

func openMemory(logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	return &SQLiteStore{
		db:  &queryLogger{inner: db, log: logger},
		log: logger,
		now: time.Now,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// =============================================================================
// Snapshot
// =============================================================================

// Export returns the engine's native serialization of the whole database.
func (s *SQLiteStore) Export(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	err := s.rawConn(ctx, func(c *sqlite3.Conn) error {
		var err error
		data, err = serialize(c)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize database: %w", err)
	}
	return data, nil
}

// memdbSector is the memdb VFS allocation unit. Its files only serve reads
// that stay inside one sector.
const memdbSector = 64 << 10

func memdbURI(name string) string {
	return "file:/" + name + "?vfs=memdb"
}

// serialize copies the main database into a scratch memdb file with the
// online backup API and reads the file back.
func serialize(c *sqlite3.Conn) ([]byte, error) {
	name := "leakr-export-" + uuid.NewString()
	memdb.Create(name, nil)
	defer memdb.Delete(name)

	if err := c.Backup("main", memdbURI(name)); err != nil {
		return nil, err
	}

	f, _, err := vfs.Find("memdb").Open("/"+name, vfs.OPEN_MAIN_DB|vfs.OPEN_READONLY)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	size, err := f.Size()
	if err != nil {
		return nil, err
	}
	data := make([]byte, size)
	for off := int64(0); off < size; off += memdbSector {
		end := min(off+memdbSector, size)
		if _, err := f.ReadAt(data[off:end], off); err != nil {
			return nil, fmt.Errorf("read backup at %d: %w", off, err)
		}
	}
	return data, nil
}

// deserialize restores the main database from data through a scratch memdb
// file. data is not retained.
func deserialize(c *sqlite3.Conn, data []byte) error {
	name := "leakr-import-" + uuid.NewString()
	memdb.Create(name, bytes.Clone(data))
	defer memdb.Delete(name)

	return c.Restore("main", memdbURI(name))
}

// Swap replaces this store's database with other's and closes the old one.
// other must not be used afterwards.
func (s *SQLiteStore) Swap(other *SQLiteStore) error {
	if other == s {
		return errors.New("cannot swap a store with itself")
	}
	other.mu.Lock()
	next := other.db
	other.db = nil
	other.mu.Unlock()
	if next == nil {
		return errors.New("replacement store is closed")
	}

	s.mu.Lock()
	old := s.db
	s.db = next
	s.db.log = s.log
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			s.log.Warn("closing replaced database", "error", err)
		}
	}
	return nil
}

// WithTx runs fn inside one transaction. fn's error rolls everything back.
// fn must not call other store methods.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTxLocked(ctx, fn)
}

func (s *SQLiteStore) withTxLocked(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) rawConn(ctx context.Context, fn func(c *sqlite3.Conn) error) error {
	conn, err := s.db.inner.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.Raw(func(dc any) error {
		c, ok := dc.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", dc)
		}
		return fn(c.Raw())
	})
}

// =============================================================================
// Version & Settings
// =============================================================================

// SchemaVersion returns the singleton version row.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (*SchemaVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readVersion(ctx, s.db.QueryRowContext)
}

// ReadVersionTx reads the version row inside tx.
func ReadVersionTx(ctx context.Context, tx *sql.Tx) (*SchemaVersion, error) {
	return readVersion(ctx, tx.QueryRowContext)
}

func readVersion(ctx context.Context, queryRow func(context.Context, string, ...any) *sql.Row) (*SchemaVersion, error) {
	var v SchemaVersion
	var lastModified string
	err := queryRow(ctx, `SELECT version, iteration, last_modified FROM version WHERE id = 1`).
		Scan(&v.Version, &v.Iteration, &lastModified)
	if err != nil {
		return nil, fmt.Errorf("read version row: %w", err)
	}
	v.LastModified = parseTime(lastModified)
	return &v, nil
}

// SetVersionTx stamps the schema version inside tx.
func SetVersionTx(ctx context.Context, tx *sql.Tx, version string) error {
	res, err := tx.ExecContext(ctx, `UPDATE version SET version = ? WHERE id = 1`, version)
	if err != nil {
		return fmt.Errorf("write version row: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return errors.New("version row missing")
	}
	return nil
}

// BumpIteration increments the flush counter, stamps the modification time
// and returns the updated row.
func (s *SQLiteStore) BumpIteration(ctx context.Context, at time.Time) (*SchemaVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE version SET iteration = iteration + 1, last_modified = ? WHERE id = 1`, formatTime(at))
	if err != nil {
		return nil, fmt.Errorf("bump iteration: %w", err)
	}
	return readVersion(ctx, s.db.QueryRowContext)
}

// Settings returns the singleton settings row.
func (s *SQLiteStore) Settings(ctx context.Context) (*Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Settings
	var share int
	err := s.db.QueryRowContext(ctx, `SELECT uuid, share_collection FROM settings WHERE id = 1`).
		Scan(&st.OwnerUUID, &share)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	st.ShareCollection = share != 0
	return &st, nil
}

// SetOwnerUUID links the store to a user identity.
func (s *SQLiteStore) SetOwnerUUID(ctx context.Context, owner string) error {
	id, err := uuid.Parse(owner)
	if err != nil {
		return fmt.Errorf("invalid owner uuid %q: %w", owner, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `UPDATE settings SET uuid = ? WHERE id = 1`, id.String())
	return err
}

// SetShareCollection toggles collection sharing.
func (s *SQLiteStore) SetShareCollection(ctx context.Context, share bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE settings SET share_collection = ? WHERE id = 1`, boolToInt(share))
	return err
}

// =============================================================================
// Creator CRUD
// =============================================================================

const creatorColumns = `id, name, aliases, date_added, favorite, verified`

// AddCreator inserts a creator. Aliases equal to the name or repeated are dropped.
func (s *SQLiteStore) AddCreator(ctx context.Context, name string, aliases []string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("creator name is empty")
	}
	clean := Aliases{List: []string{}}
	for _, a := range aliases {
		a = strings.TrimSpace(a)
		if a == "" || strings.EqualFold(a, name) || clean.Contains(a) {
			continue
		}
		clean.List = append(clean.List, a)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO creators (name, aliases, date_added) VALUES (?, ?, ?)`,
		name, clean.Encode(), formatTime(s.now()))
	if err != nil {
		return 0, fmt.Errorf("insert creator %q: %w", name, err)
	}
	return res.LastInsertId()
}

// GetCreator retrieves a creator by ID.
func (s *SQLiteStore) GetCreator(ctx context.Context, id int64) (*Creator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+creatorColumns+` FROM creators WHERE id = ?`, id)
	c, err := scanCreator(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// FindCreatorByName finds a creator by name (case-insensitive). SQLite's
// NOCASE only folds ASCII, so a non-ASCII name that misses is retried
// against Unicode case folding of every creator name.
func (s *SQLiteStore) FindCreatorByName(ctx context.Context, name string) (*Creator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+creatorColumns+` FROM creators WHERE name = ? COLLATE NOCASE ORDER BY id LIMIT 1`, name)
	c, err := scanCreator(row)
	if err != sql.ErrNoRows {
		return c, err
	}
	if isASCII(name) {
		return nil, nil
	}
	return s.findCreatorFolded(ctx, name)
}

func (s *SQLiteStore) findCreatorFolded(ctx context.Context, name string) (*Creator, error) {
	fold := cases.Fold()
	want := fold.String(name)

	rows, err := s.db.QueryContext(ctx, `SELECT `+creatorColumns+` FROM creators ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanCreator(rows)
		if err != nil {
			return nil, err
		}
		if fold.String(c.Name) == want {
			return c, nil
		}
	}
	return nil, rows.Err()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// ListCreators returns every creator ordered by name, then id.
func (s *SQLiteStore) ListCreators(ctx context.Context) ([]*Creator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+creatorColumns+` FROM creators ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creators []*Creator
	for rows.Next() {
		c, err := scanCreator(rows)
		if err != nil {
			return nil, err
		}
		creators = append(creators, c)
	}
	return creators, rows.Err()
}

// UpdateAliases overwrites a creator's alias list.
func (s *SQLiteStore) UpdateAliases(ctx context.Context, id int64, aliases Aliases) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execOne(ctx, "creator", id, `UPDATE creators SET aliases = ? WHERE id = ?`, aliases.Encode(), id)
}

// SetCreatorFavorite flags or unflags a creator as favorite.
func (s *SQLiteStore) SetCreatorFavorite(ctx context.Context, id int64, favorite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execOne(ctx, "creator", id, `UPDATE creators SET favorite = ? WHERE id = ?`, boolToInt(favorite), id)
}

// SetCreatorVerified flags or unflags a creator as verified.
func (s *SQLiteStore) SetCreatorVerified(ctx context.Context, id int64, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execOne(ctx, "creator", id, `UPDATE creators SET verified = ? WHERE id = ?`, boolToInt(verified), id)
}

// DeleteCreator removes a creator together with its profiles and contents.
func (s *SQLiteStore) DeleteCreator(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTxLocked(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM platform_profiles WHERE creator_id = ?`,
			`DELETE FROM contents WHERE creator_id = ?`,
			`DELETE FROM creators WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("delete creator %d: %w", id, err)
			}
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCreator(row rowScanner) (*Creator, error) {
	var c Creator
	var aliases sql.NullString
	var dateAdded string
	var favorite, verified int
	if err := row.Scan(&c.ID, &c.Name, &aliases, &dateAdded, &favorite, &verified); err != nil {
		return nil, err
	}
	c.Aliases = DecodeAliases(aliases.String)
	c.DateAdded = parseTime(dateAdded)
	c.Favorite = favorite != 0
	c.Verified = verified != 0
	return &c, nil
}

// =============================================================================
// Content CRUD
// =============================================================================

const contentColumns = `id, url, tab_label, date_added, creator_id, favorite`

// AddContent inserts a content row and returns its id.
func (s *SQLiteStore) AddContent(ctx context.Context, c *Content) (int64, error) {
	if c.URL == "" {
		return 0, errors.New("content url is empty")
	}
	if c.DateAdded.IsZero() {
		c.DateAdded = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contents (url, tab_label, date_added, creator_id, favorite) VALUES (?, ?, ?, ?, ?)`,
		c.URL, c.TabLabel, formatTime(c.DateAdded), c.OwnerCreatorID, boolToInt(c.Favorite))
	if err != nil {
		return 0, fmt.Errorf("insert content: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return c.ID, err
}

// GetContent retrieves a content row by ID.
func (s *SQLiteStore) GetContent(ctx context.Context, id int64) (*Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := scanContent(s.db.QueryRowContext(ctx, `SELECT `+contentColumns+` FROM contents WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ListContents returns all contents, newest first.
func (s *SQLiteStore) ListContents(ctx context.Context) ([]*Content, error) {
	return s.queryContents(ctx, `SELECT `+contentColumns+` FROM contents ORDER BY date_added DESC, id DESC`)
}

// ListContentsByCreator returns a creator's contents, newest first.
func (s *SQLiteStore) ListContentsByCreator(ctx context.Context, creatorID int64) ([]*Content, error) {
	return s.queryContents(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE creator_id = ? ORDER BY date_added DESC, id DESC`, creatorID)
}

// ContentIDsByCreator returns the ids of a creator's contents in insertion order.
func (s *SQLiteStore) ContentIDsByCreator(ctx context.Context, creatorID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM contents WHERE creator_id = ? ORDER BY id`, creatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetContentFavorite flags or unflags a content row as favorite.
func (s *SQLiteStore) SetContentFavorite(ctx context.Context, id int64, favorite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execOne(ctx, "content", id, `UPDATE contents SET favorite = ? WHERE id = ?`, boolToInt(favorite), id)
}

// DeleteContent removes a content row by ID.
func (s *SQLiteStore) DeleteContent(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM contents WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) queryContents(ctx context.Context, query string, args ...any) ([]*Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contents []*Content
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		contents = append(contents, c)
	}
	return contents, rows.Err()
}

func scanContent(row rowScanner) (*Content, error) {
	var c Content
	var label sql.NullString
	var dateAdded string
	var favorite int
	if err := row.Scan(&c.ID, &c.URL, &label, &dateAdded, &c.OwnerCreatorID, &favorite); err != nil {
		return nil, err
	}
	if label.Valid {
		c.TabLabel = &label.String
	}
	c.DateAdded = parseTime(dateAdded)
	c.Favorite = favorite != 0
	return &c, nil
}

// =============================================================================
// Platform & Profile CRUD
// =============================================================================

// AddPlatform inserts a platform by name, or returns the id of the existing one.
func (s *SQLiteStore) AddPlatform(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, errors.New("platform name is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO platforms (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
		return 0, fmt.Errorf("insert platform %q: %w", name, err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM platforms WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup platform %q: %w", name, err)
	}
	return id, nil
}

// ListPlatforms returns every platform ordered by name.
func (s *SQLiteStore) ListPlatforms(ctx context.Context) ([]*Platform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM platforms ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var platforms []*Platform
	for rows.Next() {
		var p Platform
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		platforms = append(platforms, &p)
	}
	return platforms, rows.Err()
}

// FindProfile looks up the profile for an exact (creator, platform, link).
func (s *SQLiteStore) FindProfile(ctx context.Context, creatorID, platformID int64, link string) (*PlatformProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findProfile(ctx, s.db.QueryRowContext, creatorID, platformID, link)
}

func findProfile(ctx context.Context, queryRow func(context.Context, string, ...any) *sql.Row, creatorID, platformID int64, link string) (*PlatformProfile, error) {
	var p PlatformProfile
	err := queryRow(ctx, `
		SELECT id, link, creator_id, platform_id FROM platform_profiles
		WHERE creator_id = ? AND platform_id = ? AND link = ?
		ORDER BY id LIMIT 1
	`, creatorID, platformID, link).Scan(&p.ID, &p.Link, &p.OwnerCreatorID, &p.PlatformID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AddProfile links a creator to a profile. An identical existing profile is
// returned instead of inserting a duplicate; created reports which happened.
func (s *SQLiteStore) AddProfile(ctx context.Context, creatorID, platformID int64, link string) (p *PlatformProfile, created bool, err error) {
	if link == "" {
		return nil, false, errors.New("profile link is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := findProfile(ctx, s.db.QueryRowContext, creatorID, platformID, link)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO platform_profiles (link, creator_id, platform_id) VALUES (?, ?, ?)`,
		link, creatorID, platformID)
	if err != nil {
		return nil, false, fmt.Errorf("insert profile: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, err
	}
	return &PlatformProfile{ID: id, Link: link, OwnerCreatorID: creatorID, PlatformID: platformID}, true, nil
}

// ListProfilesByCreator returns a creator's profiles in insertion order.
func (s *SQLiteStore) ListProfilesByCreator(ctx context.Context, creatorID int64) ([]*PlatformProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, link, creator_id, platform_id FROM platform_profiles WHERE creator_id = ? ORDER BY id`, creatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*PlatformProfile
	for rows.Next() {
		var p PlatformProfile
		if err := rows.Scan(&p.ID, &p.Link, &p.OwnerCreatorID, &p.PlatformID); err != nil {
			return nil, err
		}
		profiles = append(profiles, &p)
	}
	return profiles, rows.Err()
}

// =============================================================================
// Helpers
// =============================================================================

func (s *SQLiteStore) execOne(ctx context.Context, kind string, id int64, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", kind, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Compile-time interface check
var _ Storer = (*SQLiteStore)(nil)
