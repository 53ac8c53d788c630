// Package app wires the store, persistence, resolver, finder and sync
// reconciler around one store handle. Hosts build an App and call it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kittclouds/leakr/internal/config"
	"github.com/kittclouds/leakr/internal/migrate"
	"github.com/kittclouds/leakr/internal/persist"
	"github.com/kittclouds/leakr/internal/remote"
	"github.com/kittclouds/leakr/internal/snapshot"
	"github.com/kittclouds/leakr/internal/store"
	"github.com/kittclouds/leakr/internal/syncer"
	"github.com/kittclouds/leakr/pkg/identifier"
	"github.com/kittclouds/leakr/pkg/resolver"
)

// ErrSyncDisabled is returned by sync calls when sync is turned off.
var ErrSyncDisabled = errors.New("sync is disabled")

// Deps are the host-provided collaborators.
type Deps struct {
	// KV is the host's local blob storage. Required.
	KV persist.KV
	// Tokens supplies the storage service bearer token. When nil the
	// configured static token is used.
	Tokens       remote.TokenSource
	HTTPClient   *http.Client
	OnSyncChange func(syncer.Status)
	Now          func() time.Time
	Logger       *slog.Logger
}

// App is one running leakr instance.
type App struct {
	Config   config.Config
	Store    *store.SQLiteStore
	Persist  *persist.Manager
	Resolver *resolver.Resolver
	Finder   *identifier.Finder
	// Syncer and Remote are nil when sync is disabled.
	Syncer *syncer.Syncer
	Remote *remote.Client

	uploader *persist.Uploader
	log      *slog.Logger
}

// Open loads (or creates) the store from deps.KV, migrates it and builds
// every component on top of it. A migration failure is fatal.
func Open(ctx context.Context, cfg config.Config, deps Deps) (*App, error) {
	if deps.KV == nil {
		return nil, errors.New("app: no local storage")
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	migrator, err := migrate.Default(migrate.Options{
		StrictTarget: cfg.Migrations.StrictTarget,
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	s, err := persist.Load(ctx, deps.KV, migrator, log)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a := &App{Config: cfg, Store: s, log: log}

	var enq persist.Enqueuer
	if cfg.Sync.Enabled {
		tokens := deps.Tokens
		if tokens == nil {
			tokens = remote.StaticToken(cfg.Storage.Token)
		}
		a.Remote = remote.New(cfg.Storage.BaseURL,
			remote.WithHTTPClient(deps.HTTPClient),
			remote.WithTimeout(cfg.Storage.Timeout),
			remote.WithTokenSource(tokens),
			remote.WithLogger(log),
		)
		if cfg.Sync.UploadOnFlush {
			a.uploader = persist.NewUploader(a.Remote, cfg.Storage.Timeout, log)
			a.uploader.Start(context.Background())
			enq = a.uploader
		}
	}

	a.Persist = persist.NewManager(s, deps.KV, migrator, persist.Options{
		Uploader: enq,
		Now:      deps.Now,
		Logger:   log,
	})

	a.Resolver, err = resolver.New(s, a.Persist, cfg.Resolver, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app: %w", err)
	}
	a.Finder = identifier.NewFinder(a.Resolver, s, a.Persist, log)

	if a.Remote != nil {
		a.Syncer = syncer.New(a.Remote, a.Persist, a.owner, syncer.Options{
			OnChange: deps.OnSyncChange,
			Now:      deps.Now,
			Logger:   log,
		})
	}

	v, err := s.SchemaVersion(ctx)
	if err == nil {
		log.Info("leakr ready", "version", v.Version, "iteration", v.Iteration, "sync", a.Syncer != nil)
	}
	return a, nil
}

// Close stops background uploads and closes the store.
func (a *App) Close() error {
	if a.uploader != nil {
		a.uploader.Stop()
	}
	return a.Store.Close()
}

func (a *App) owner(ctx context.Context) (string, error) {
	st, err := a.Store.Settings(ctx)
	if err != nil {
		return "", err
	}
	return st.OwnerUUID, nil
}

// Flush persists the store.
func (a *App) Flush(ctx context.Context) error {
	return a.Persist.Flush(ctx)
}

// mutate runs fn and flushes when it succeeded.
func (a *App) mutate(ctx context.Context, fn func() error) error {
	if err := fn(); err != nil {
		return err
	}
	return a.Persist.Flush(ctx)
}

// Resolve runs the resolution cascade.
func (a *App) Resolve(ctx context.Context, query string) (resolver.Result, error) {
	return a.Resolver.Resolve(ctx, query)
}

// Find resolves a pasted URL or username.
func (a *App) Find(ctx context.Context, input string) (identifier.FindResult, error) {
	return a.Finder.Find(ctx, input)
}

// Settings returns the settings row.
func (a *App) Settings(ctx context.Context) (*store.Settings, error) {
	return a.Store.Settings(ctx)
}

// SetOwnerUUID links the store to a user and persists it.
func (a *App) SetOwnerUUID(ctx context.Context, owner string) error {
	return a.saveSettings(ctx, func() error {
		return a.Store.SetOwnerUUID(ctx, strings.TrimSpace(owner))
	})
}

// SetShareCollection updates the sharing flag and persists it.
func (a *App) SetShareCollection(ctx context.Context, share bool) error {
	return a.saveSettings(ctx, func() error {
		return a.Store.SetShareCollection(ctx, share)
	})
}

// saveSettings is mutate for the settings row. Linking a fresh install to
// its owner must not make it look like a local snapshot to sync.
func (a *App) saveSettings(ctx context.Context, fn func() error) error {
	if err := fn(); err != nil {
		return err
	}
	return a.Persist.SaveSettings(ctx)
}

// AddCreator inserts a creator and persists the store.
func (a *App) AddCreator(ctx context.Context, name string, aliases []string) (*store.Creator, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("creator name is empty")
	}
	var id int64
	err := a.mutate(ctx, func() error {
		var err error
		id, err = a.Store.AddCreator(ctx, name, aliases)
		return err
	})
	if err != nil && id == 0 {
		return nil, err
	}
	c, gerr := a.Store.GetCreator(ctx, id)
	if gerr != nil {
		return nil, gerr
	}
	return c, err
}

// DeleteCreator removes a creator with its contents and profiles.
func (a *App) DeleteCreator(ctx context.Context, id int64) error {
	return a.mutate(ctx, func() error { return a.Store.DeleteCreator(ctx, id) })
}

// SetCreatorFavorite flags a creator as favorite.
func (a *App) SetCreatorFavorite(ctx context.Context, id int64, favorite bool) error {
	return a.mutate(ctx, func() error { return a.Store.SetCreatorFavorite(ctx, id, favorite) })
}

// SetCreatorVerified flags a creator as verified.
func (a *App) SetCreatorVerified(ctx context.Context, id int64, verified bool) error {
	return a.mutate(ctx, func() error { return a.Store.SetCreatorVerified(ctx, id, verified) })
}

// AddContent saves a page for a creator.
func (a *App) AddContent(ctx context.Context, c *store.Content) (int64, error) {
	var id int64
	err := a.mutate(ctx, func() error {
		var err error
		id, err = a.Store.AddContent(ctx, c)
		return err
	})
	return id, err
}

// DeleteContent removes a saved page.
func (a *App) DeleteContent(ctx context.Context, id int64) error {
	return a.mutate(ctx, func() error { return a.Store.DeleteContent(ctx, id) })
}

// SetContentFavorite flags a saved page as favorite.
func (a *App) SetContentFavorite(ctx context.Context, id int64, favorite bool) error {
	return a.mutate(ctx, func() error { return a.Store.SetContentFavorite(ctx, id, favorite) })
}

// ExportSnapshot returns the current snapshot without changing anything.
func (a *App) ExportSnapshot(ctx context.Context) (persist.Snapshot, error) {
	return a.Persist.ExportSnapshot(ctx)
}

// ImportSnapshot replaces the store with data.
func (a *App) ImportSnapshot(ctx context.Context, data []byte) error {
	return a.Persist.ImportSnapshot(ctx, data)
}

// Sync runs one sync round.
func (a *App) Sync(ctx context.Context) (syncer.Status, error) {
	if a.Syncer == nil {
		return syncer.Status{}, ErrSyncDisabled
	}
	return a.Syncer.Sync(ctx)
}

// SyncState returns the reconciler status.
func (a *App) SyncState() (syncer.Status, error) {
	if a.Syncer == nil {
		return syncer.Status{}, ErrSyncDisabled
	}
	return a.Syncer.State(), nil
}

// KeepLocal resolves a sync conflict in favor of local data.
func (a *App) KeepLocal() (syncer.Status, error) {
	if a.Syncer == nil {
		return syncer.Status{}, ErrSyncDisabled
	}
	return a.Syncer.KeepLocal()
}

// AcceptRemote resolves a sync conflict by importing the named remote.
func (a *App) AcceptRemote(ctx context.Context, filename string) (syncer.Status, error) {
	if a.Syncer == nil {
		return syncer.Status{}, ErrSyncDisabled
	}
	info, err := snapshot.Parse(filename)
	if err != nil {
		return a.Syncer.State(), err
	}
	return a.Syncer.AcceptRemote(ctx, info)
}
