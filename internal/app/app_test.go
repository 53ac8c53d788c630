package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/leakr/internal/config"
	"github.com/kittclouds/leakr/internal/migrate"
	"github.com/kittclouds/leakr/internal/persist"
	"github.com/kittclouds/leakr/internal/snapshot"
	"github.com/kittclouds/leakr/internal/store"
	"github.com/kittclouds/leakr/internal/syncer"
	"github.com/kittclouds/leakr/pkg/resolver"
)

const owner = "8f14e45f-ceea-4a67-9a0b-1c2d3e4f5a6b"

// storageServer is an in-memory stand-in for the snapshot storage service.
type storageServer struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newStorageServer(t *testing.T) (*storageServer, *httptest.Server) {
	ss := &storageServer{files: map[string][]byte{}}
	srv := httptest.NewServer(ss)
	t.Cleanup(srv.Close)
	return ss, srv
}

func (s *storageServer) put(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = data
}

func (s *storageServer) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for n := range s.files {
		out = append(out, n)
	}
	return out
}

func (s *storageServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/info/user/"):
		user := strings.TrimPrefix(r.URL.Path, "/info/user/")
		var out []map[string]string
		for name := range s.files {
			if strings.Contains(name, user) {
				out = append(out, map[string]string{"filename": name, "userID": user})
			}
		}
		if len(out) == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(out)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/download/file/"):
		data, ok := s.files[strings.TrimPrefix(r.URL.Path, "/download/file/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(data)
	case r.Method == http.MethodPost && r.URL.Path == "/upload":
		f, _, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		s.files[r.FormValue("filename")] = data
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testConfig(baseURL string) config.Config {
	cfg := config.Default()
	cfg.Storage.BaseURL = baseURL
	cfg.Storage.Token = "tok"
	cfg.Storage.Timeout = 5 * time.Second
	cfg.Sync.Enabled = baseURL != ""
	return cfg
}

func openApp(t *testing.T, cfg config.Config, kv persist.KV, clk *clock) *App {
	t.Helper()
	a, err := Open(context.Background(), cfg, Deps{KV: kv, Now: clk.now})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func TestOpenFreshStoreAtTarget(t *testing.T) {
	ctx := context.Background()
	a := openApp(t, testConfig(""), persist.NewMemoryKV(), newClock())

	v, err := a.Store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, migrate.Target, v.Version)
	assert.Nil(t, a.Syncer)

	_, err = a.Sync(ctx)
	assert.ErrorIs(t, err, ErrSyncDisabled)
}

func TestMutationsPersistAcrossReopen(t *testing.T) {
	ctx := context.Background()
	kv := persist.NewMemoryKV()
	clk := newClock()

	a := openApp(t, testConfig(""), kv, clk)
	c, err := a.AddCreator(ctx, "Annabelle", []string{"anna"})
	require.NoError(t, err)
	_, err = a.AddContent(ctx, &store.Content{URL: "https://example.com/1", OwnerCreatorID: c.ID})
	require.NoError(t, err)
	require.NoError(t, a.SetShareCollection(ctx, false))
	require.NoError(t, a.Close())

	b := openApp(t, testConfig(""), kv, clk)
	res, err := b.Resolve(ctx, "ANNA")
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, resolver.TierAlias, res.Tier)

	st, err := b.Settings(ctx)
	require.NoError(t, err)
	assert.False(t, st.ShareCollection)

	v, err := b.Store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.Iteration)
}

func TestAddCreatorRejectsEmptyName(t *testing.T) {
	a := openApp(t, testConfig(""), persist.NewMemoryKV(), newClock())
	_, err := a.AddCreator(context.Background(), "  ", nil)
	assert.Error(t, err)
}

func TestSetOwnerRejectsGarbage(t *testing.T) {
	a := openApp(t, testConfig(""), persist.NewMemoryKV(), newClock())
	assert.Error(t, a.SetOwnerUUID(context.Background(), "not-a-uuid"))
}

func TestFlushUploadsOnceOwnerIsSet(t *testing.T) {
	ctx := context.Background()
	ss, srv := newStorageServer(t)
	a := openApp(t, testConfig(srv.URL), persist.NewMemoryKV(), newClock())

	_, err := a.AddCreator(ctx, "Nobody Yet", nil)
	require.NoError(t, err)
	require.NoError(t, a.SetOwnerUUID(ctx, owner))

	want := snapshot.Format(owner, newClock().now(), 2)
	require.Eventually(t, func() bool {
		for _, n := range ss.names() {
			if n == want {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
	assert.Len(t, ss.names(), 1)
}

func TestSyncAutoImportsIntoFreshInstall(t *testing.T) {
	ctx := context.Background()
	ss, srv := newStorageServer(t)
	clk := newClock()

	// Another device with some data.
	other := openApp(t, testConfig(""), persist.NewMemoryKV(), clk)
	require.NoError(t, other.SetOwnerUUID(ctx, owner))
	_, err := other.AddCreator(ctx, "Remote Person", nil)
	require.NoError(t, err)
	snap, err := other.ExportSnapshot(ctx)
	require.NoError(t, err)
	ss.put(snap.Info.Filename, snap.Data)

	// Fresh install, linked to the owner an hour later: only settings are
	// persisted locally.
	local := newClock()
	local.advance(time.Hour)
	kv := persist.NewMemoryKV()
	a := openApp(t, testConfig(srv.URL), kv, local)
	require.NoError(t, a.SetOwnerUUID(ctx, owner))
	blob, err := kv.Get(ctx, persist.BlobKey)
	require.NoError(t, err)
	require.NotEmpty(t, blob, "owner must survive a restart")

	st, err := a.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncer.StateResolved, st.State)
	require.NotNil(t, st.Imported)

	res, err := a.Resolve(ctx, "remote person")
	require.NoError(t, err)
	assert.True(t, res.Found())

	// The imported tuple matches the remote, so the next round is a no-op.
	st, err = a.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncer.StateResolved, st.State)
	assert.Nil(t, st.Imported)
}

func TestSyncConflictKeepLocalAndAccept(t *testing.T) {
	ctx := context.Background()
	ss, srv := newStorageServer(t)
	clk := newClock()

	cfg := testConfig(srv.URL)
	cfg.Sync.UploadOnFlush = false
	a := openApp(t, cfg, persist.NewMemoryKV(), clk)
	require.NoError(t, a.SetOwnerUUID(ctx, owner))
	_, err := a.AddCreator(ctx, "Local Only", nil)
	require.NoError(t, err)

	// Two remote snapshots always need a decision.
	older := snapshot.New(owner, clk.now().Add(-time.Hour), 1)
	remoteApp := openApp(t, testConfig(""), persist.NewMemoryKV(), clk)
	require.NoError(t, remoteApp.SetOwnerUUID(ctx, owner))
	_, err = remoteApp.AddCreator(ctx, "From Remote", nil)
	require.NoError(t, err)
	remoteSnap, err := remoteApp.ExportSnapshot(ctx)
	require.NoError(t, err)
	ss.put(older.Filename, []byte("stale"))
	ss.put(remoteSnap.Info.Filename, remoteSnap.Data)

	st, err := a.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncer.StateConflict, st.State)
	assert.Len(t, st.Remotes, 2)

	st, err = a.KeepLocal()
	require.NoError(t, err)
	assert.Equal(t, syncer.StateResolved, st.State)

	st, err = a.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, syncer.StateConflict, st.State)
	st, err = a.AcceptRemote(ctx, remoteSnap.Info.Filename)
	require.NoError(t, err)
	assert.Equal(t, syncer.StateResolved, st.State)

	res, err := a.Resolve(ctx, "From Remote")
	require.NoError(t, err)
	assert.True(t, res.Found())
	res, err = a.Resolve(ctx, "Local Only")
	require.NoError(t, err)
	assert.False(t, res.Found())
}

func TestFindLinksProfile(t *testing.T) {
	ctx := context.Background()
	a := openApp(t, testConfig(""), persist.NewMemoryKV(), newClock())
	_, err := a.AddCreator(ctx, "streamerx", nil)
	require.NoError(t, err)

	res, err := a.Find(ctx, "https://www.twitch.tv/streamerx")
	require.NoError(t, err)
	require.NotNil(t, res.Creator)
	assert.True(t, res.ProfileAdded)

	profiles, err := a.Store.ListProfilesByCreator(ctx, res.Creator.ID)
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
}
