// Package persist writes the in-memory store to the host's local storage,
// exports and imports whole-database snapshots, and hands snapshots to the
// background uploader.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kittclouds/leakr/internal/migrate"
	"github.com/kittclouds/leakr/internal/snapshot"
	"github.com/kittclouds/leakr/internal/store"
)

// Enqueuer accepts snapshots for background upload. It must not block.
type Enqueuer interface {
	Enqueue(filename string, data []byte)
}

// Options configures a Manager.
type Options struct {
	// Uploader receives every flushed snapshot. Nil disables uploads.
	Uploader Enqueuer
	Now      func() time.Time
	Logger   *slog.Logger
}

// Snapshot is an exported database with its metadata.
type Snapshot struct {
	Info snapshot.Info
	Data []byte
}

// Manager owns persistence of one live store.
type Manager struct {
	mu       sync.Mutex
	store    *store.SQLiteStore
	kv       KV
	migrator *migrate.Manager
	uploader Enqueuer
	now      func() time.Time
	log      *slog.Logger
}

// NewManager creates a Manager for the live store s.
func NewManager(s *store.SQLiteStore, kv KV, migrator *migrate.Manager, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		store:    s,
		kv:       kv,
		migrator: migrator,
		uploader: opts.Uploader,
		now:      opts.Now,
		log:      opts.Logger,
	}
}

// Flush bumps the iteration counter and modification time, writes the
// serialized store to local storage and queues it for upload. Upload
// failures never surface here.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked(ctx)
}

// SaveSettings persists a settings change. A store that was never flushed
// is written as is, at iteration 0, so it still reads as having no local
// snapshot and a first sync can import the user's remote data. Any other
// store is flushed.
func (m *Manager) SaveSettings(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, err := m.store.SchemaVersion(ctx)
	if err != nil {
		return &Error{Op: "read version", Err: err}
	}
	if v.Iteration > 0 {
		return m.flushLocked(ctx)
	}
	data, err := m.writeLocked(ctx)
	if err != nil {
		return err
	}
	m.log.Debug("settings saved before first flush", "bytes", len(data))
	return nil
}

func (m *Manager) flushLocked(ctx context.Context) error {
	v, err := m.store.BumpIteration(ctx, m.now())
	if err != nil {
		m.log.Error("flush failed", "error", err)
		return &Error{Op: "bump iteration", Err: err}
	}
	data, err := m.writeLocked(ctx)
	if err != nil {
		return err
	}
	m.log.Debug("store flushed", "iteration", v.Iteration, "bytes", len(data))

	if m.uploader == nil {
		return nil
	}
	info, err := m.infoLocked(ctx)
	if err != nil {
		m.log.Warn("skipping upload", "error", err)
		return nil
	}
	if info.OwnerUUID == store.NilOwnerUUID {
		m.log.Debug("skipping upload, no owner set")
		return nil
	}
	m.uploader.Enqueue(info.Filename, data)
	return nil
}

// writeLocked serializes the store and writes it under BlobKey.
func (m *Manager) writeLocked(ctx context.Context) ([]byte, error) {
	data, err := m.store.Export(ctx)
	if err != nil {
		m.log.Error("flush failed", "error", err)
		return nil, &Error{Op: "serialize", Err: err}
	}
	if err := m.kv.Put(ctx, BlobKey, data); err != nil {
		m.log.Error("flush failed", "error", err)
		return nil, &Error{Op: "write local storage", Err: err}
	}
	return data, nil
}

// ExportSnapshot returns the serialized store and its filename metadata
// without changing anything.
func (m *Manager) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := m.infoLocked(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	data, err := m.store.Export(ctx)
	if err != nil {
		return Snapshot{}, &Error{Op: "serialize", Err: err}
	}
	return Snapshot{Info: info, Data: data}, nil
}

// ImportSnapshot replaces the live store with data. The snapshot is loaded,
// migrated and written to local storage on the side; the live store is only
// swapped once all of that succeeded, so a failed import changes neither the
// live store nor local storage. The imported state keeps its iteration and
// timestamp.
func (m *Manager) ImportSnapshot(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cand, err := store.OpenSnapshot(ctx, data, m.log)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	report, err := m.migrator.Ensure(ctx, cand)
	if err != nil {
		cand.Close()
		return fmt.Errorf("import: %w", err)
	}
	blob, err := cand.Export(ctx)
	if err != nil {
		cand.Close()
		return fmt.Errorf("import: %w", &Error{Op: "serialize", Err: err})
	}
	if err := m.kv.Put(ctx, BlobKey, blob); err != nil {
		cand.Close()
		m.log.Error("import failed", "error", err)
		return fmt.Errorf("import: %w", &Error{Op: "write local storage", Err: err})
	}
	if err := m.store.Swap(cand); err != nil {
		cand.Close()
		// Local storage already holds the candidate; put the live store back.
		if _, werr := m.writeLocked(ctx); werr != nil {
			m.log.Error("restoring local storage after failed swap", "error", werr)
		}
		return fmt.Errorf("import: %w", err)
	}
	m.log.Info("snapshot imported", "bytes", len(data), "from_version", report.From, "migrated", report.Changed())
	return nil
}

// LocalInfo describes the locally persisted snapshot. It returns nil when
// nothing was persisted yet, or only a never-flushed store (iteration 0).
func (m *Manager) LocalInfo(ctx context.Context) (*snapshot.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	blob, err := m.kv.Get(ctx, BlobKey)
	if err != nil {
		return nil, &Error{Op: "read local storage", Err: err}
	}
	if len(blob) == 0 {
		return nil, nil
	}
	info, err := m.infoLocked(ctx)
	if err != nil {
		return nil, err
	}
	if info.Iteration == 0 {
		return nil, nil
	}
	return &info, nil
}

func (m *Manager) infoLocked(ctx context.Context) (snapshot.Info, error) {
	v, err := m.store.SchemaVersion(ctx)
	if err != nil {
		return snapshot.Info{}, err
	}
	st, err := m.store.Settings(ctx)
	if err != nil {
		return snapshot.Info{}, err
	}
	return snapshot.New(st.OwnerUUID, v.LastModified, v.Iteration), nil
}

// Load reads the persisted blob and opens a migrated store from it, or a
// fresh one when nothing is persisted. A store that had to be migrated is
// written back right away.
func Load(ctx context.Context, kv KV, migrator *migrate.Manager, logger *slog.Logger) (*store.SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	blob, err := kv.Get(ctx, BlobKey)
	if err != nil {
		return nil, &Error{Op: "read local storage", Err: err}
	}
	s, report, err := migrator.OpenOrCreate(ctx, blob)
	if err != nil {
		var me *migrate.Error
		if errors.As(err, &me) {
			logger.Error("local store cannot be migrated", "from", me.From, "to", me.To, "error", err)
		}
		return nil, err
	}
	if len(blob) > 0 && report.Changed() {
		data, err := s.Export(ctx)
		if err == nil {
			err = kv.Put(ctx, BlobKey, data)
		}
		if err != nil {
			logger.Error("persisting migrated store", "error", err)
		}
	}
	return s, nil
}
