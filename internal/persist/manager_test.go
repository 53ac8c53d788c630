package persist

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/leakr/internal/migrate"
	"github.com/kittclouds/leakr/internal/store"
)

const owner = "8f14e45f-ceea-4a67-9a0b-1c2d3e4f5a6b"

type recordingUploader struct {
	mu    sync.Mutex
	names []string
	blobs [][]byte
}

func (r *recordingUploader) Enqueue(filename string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, filename)
	r.blobs = append(r.blobs, data)
}

type failingKV struct{ *MemoryKV }

func (f *failingKV) Put(context.Context, string, []byte) error { return errors.New("quota exceeded") }

// switchKV fails writes once failPut is set.
type switchKV struct {
	*MemoryKV
	failPut bool
}

func (s *switchKV) Put(ctx context.Context, key string, value []byte) error {
	if s.failPut {
		return errors.New("quota exceeded")
	}
	return s.MemoryKV.Put(ctx, key, value)
}

type fixture struct {
	store    *store.SQLiteStore
	kv       *MemoryKV
	migrator *migrate.Manager
	uploads  *recordingUploader
	mgr      *Manager
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	m, err := migrate.Default(migrate.Options{})
	require.NoError(t, err)
	s, _, err := m.OpenOrCreate(ctx, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{
		store:    s,
		kv:       NewMemoryKV(),
		migrator: m,
		uploads:  &recordingUploader{},
		now:      time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC),
	}
	f.mgr = NewManager(s, f.kv, m, Options{
		Uploader: f.uploads,
		Now:      func() time.Time { return f.now },
	})
	return f
}

func TestFlushWritesBlobAndBumpsIteration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.mgr.Flush(ctx))
	require.NoError(t, f.mgr.Flush(ctx))

	v, err := f.store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.Iteration)
	assert.True(t, f.now.Equal(v.LastModified))

	blob, err := f.kv.Get(ctx, BlobKey)
	require.NoError(t, err)
	reopened, err := store.OpenSnapshot(ctx, blob, nil)
	require.NoError(t, err)
	defer reopened.Close()
	rv, err := reopened.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rv.Iteration)
}

func TestFlushSkipsUploadWithoutOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.mgr.Flush(ctx))
	assert.Empty(t, f.uploads.names)

	require.NoError(t, f.store.SetOwnerUUID(ctx, owner))
	require.NoError(t, f.mgr.Flush(ctx))
	require.Len(t, f.uploads.names, 1)
	assert.Equal(t, "leakr_db_"+owner+"_2024-05-01 10-20-30_it2.sqlite", f.uploads.names[0])
}

func TestFlushReportsLocalStorageFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mgr := NewManager(f.store, &failingKV{MemoryKV: NewMemoryKV()}, f.migrator, Options{Uploader: f.uploads})

	err := mgr.Flush(ctx)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "write local storage", pe.Op)
	assert.Empty(t, f.uploads.names)
}

func TestExportSnapshotDoesNotBump(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.SetOwnerUUID(ctx, owner))
	require.NoError(t, f.mgr.Flush(ctx))

	snap, err := f.mgr.ExportSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Info.Iteration)
	assert.Equal(t, owner, snap.Info.OwnerUUID)
	assert.NotEmpty(t, snap.Data)

	v, err := f.store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Iteration)
}

func TestImportSnapshotReplacesStoreWithoutBump(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	other := newFixture(t)
	require.NoError(t, other.store.SetOwnerUUID(ctx, owner))
	_, err := other.store.AddCreator(ctx, "Remote Creator", nil)
	require.NoError(t, err)
	other.now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, other.mgr.Flush(ctx))
	}
	snap, err := other.mgr.ExportSnapshot(ctx)
	require.NoError(t, err)

	require.NoError(t, f.mgr.ImportSnapshot(ctx, snap.Data))

	c, err := f.store.FindCreatorByName(ctx, "remote creator")
	require.NoError(t, err)
	require.NotNil(t, c)

	local, err := f.mgr.LocalInfo(ctx)
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.Equal(t, snap.Info, *local)
	assert.Empty(t, f.uploads.names, "import must not upload")
}

func TestImportSnapshotFailureLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.store.AddCreator(ctx, "Keeper", nil)
	require.NoError(t, err)

	assert.Error(t, f.mgr.ImportSnapshot(ctx, []byte("definitely not a database")))

	// A snapshot from a newer build must be refused too.
	newer := newFixture(t)
	require.NoError(t, newer.store.WithTx(ctx, func(tx *sql.Tx) error {
		return store.SetVersionTx(ctx, tx, "9.0.0")
	}))
	snap, err := newer.mgr.ExportSnapshot(ctx)
	require.NoError(t, err)
	err = f.mgr.ImportSnapshot(ctx, snap.Data)
	assert.True(t, migrate.IsDowngrade(err))

	c, err := f.store.FindCreatorByName(ctx, "Keeper")
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestImportSnapshotLocalStorageFailureChangesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	kv := &switchKV{MemoryKV: NewMemoryKV()}
	mgr := NewManager(f.store, kv, f.migrator, Options{Now: func() time.Time { return f.now }})

	_, err := f.store.AddCreator(ctx, "Local Only", nil)
	require.NoError(t, err)
	require.NoError(t, mgr.Flush(ctx))
	before, err := kv.Get(ctx, BlobKey)
	require.NoError(t, err)

	other := newFixture(t)
	_, err = other.store.AddCreator(ctx, "Remote Only", nil)
	require.NoError(t, err)
	require.NoError(t, other.mgr.Flush(ctx))
	snap, err := other.mgr.ExportSnapshot(ctx)
	require.NoError(t, err)

	kv.failPut = true
	err = mgr.ImportSnapshot(ctx, snap.Data)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "write local storage", pe.Op)

	c, err := f.store.FindCreatorByName(ctx, "local only")
	require.NoError(t, err)
	assert.NotNil(t, c, "live store must keep local data")
	c, err = f.store.FindCreatorByName(ctx, "remote only")
	require.NoError(t, err)
	assert.Nil(t, c, "live store must not hold remote data")

	after, err := kv.Get(ctx, BlobKey)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSaveSettingsBeforeFirstFlush(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.store.SetOwnerUUID(ctx, owner))
	require.NoError(t, f.mgr.SaveSettings(ctx))

	blob, err := f.kv.Get(ctx, BlobKey)
	require.NoError(t, err)
	require.NotEmpty(t, blob, "settings must survive a restart")
	reopened, err := store.OpenSnapshot(ctx, blob, nil)
	require.NoError(t, err)
	defer reopened.Close()
	st, err := reopened.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, owner, st.OwnerUUID)

	info, err := f.mgr.LocalInfo(ctx)
	require.NoError(t, err)
	assert.Nil(t, info, "a settings-only store is not a local snapshot")
	assert.Empty(t, f.uploads.names)

	require.NoError(t, f.mgr.Flush(ctx))
	require.NoError(t, f.store.SetShareCollection(ctx, false))
	require.NoError(t, f.mgr.SaveSettings(ctx))

	info, err = f.mgr.LocalInfo(ctx)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, int64(2), info.Iteration, "settings on a flushed store are flushed")
	assert.Len(t, f.uploads.names, 2)
}

func TestLocalInfoNilUntilPersisted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	info, err := f.mgr.LocalInfo(ctx)
	require.NoError(t, err)
	assert.Nil(t, info)

	require.NoError(t, f.mgr.Flush(ctx))
	info, err = f.mgr.LocalInfo(ctx)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, int64(1), info.Iteration)
	assert.Equal(t, store.NilOwnerUUID, info.OwnerUUID)
}

func TestLoadMigratesAndPersists(t *testing.T) {
	ctx := context.Background()
	m, err := migrate.Default(migrate.Options{})
	require.NoError(t, err)

	base, err := store.NewSQLiteStore(nil)
	require.NoError(t, err)
	defer base.Close()
	blob, err := base.Export(ctx)
	require.NoError(t, err)

	kv := NewMemoryKV()
	require.NoError(t, kv.Put(ctx, BlobKey, blob))

	s, err := Load(ctx, kv, m, nil)
	require.NoError(t, err)
	defer s.Close()
	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, migrate.Target, v.Version)

	persisted, err := kv.Get(ctx, BlobKey)
	require.NoError(t, err)
	again, err := store.OpenSnapshot(ctx, persisted, nil)
	require.NoError(t, err)
	defer again.Close()
	av, err := again.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, migrate.Target, av.Version)
}

func TestLoadFreshStoreIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	m, err := migrate.Default(migrate.Options{})
	require.NoError(t, err)
	kv := NewMemoryKV()

	s, err := Load(ctx, kv, m, nil)
	require.NoError(t, err)
	defer s.Close()

	blob, err := kv.Get(ctx, BlobKey)
	require.NoError(t, err)
	assert.Nil(t, blob)
}
