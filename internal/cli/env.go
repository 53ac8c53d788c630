package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ncruces/go-sqlite3"
	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero"

	"github.com/kittclouds/leakr/internal/app"
	"github.com/kittclouds/leakr/internal/config"
	"github.com/kittclouds/leakr/internal/persist/boltkv"
)

var wasmCacheOnce sync.Once

// setupWASMCache points the SQLite wasm runtime at an on-disk compilation
// cache. It falls back to an in-memory cache when dir is unusable and only
// takes effect before the first database is opened.
func setupWASMCache(dir string, log *slog.Logger) {
	wasmCacheOnce.Do(func() {
		var cache wazero.CompilationCache
		if dir != "" {
			if c, err := wazero.NewCompilationCacheWithDir(dir); err == nil {
				cache = c
			} else {
				log.Debug("wasm cache unavailable", "dir", dir, "error", err)
			}
		}
		if cache == nil {
			cache = wazero.NewCompilationCache()
		}
		sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
	})
}

// env is everything a command needs, opened from the global flags.
type env struct {
	cfg config.Config
	app *app.App
	kv  *boltkv.Store
	log *slog.Logger
}

func loadConfig(opts *RootOptions) (config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		path = config.ResolvePath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if opts.DataDir != "" {
		cfg.Data.Dir = opts.DataDir
	}
	if opts.Offline {
		cfg.Sync.Enabled = false
	}
	// A CLI process exits right after its command; uploads are done
	// synchronously by the sync command instead.
	cfg.Sync.UploadOnFlush = false
	return cfg, nil
}

func newLogger(cfg config.Config, opts *RootOptions, w io.Writer) *slog.Logger {
	level := cfg.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func openEnv(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "config", err)
	}
	log := newLogger(cfg, opts, cmd.ErrOrStderr())

	if err := os.MkdirAll(cfg.Data.Dir, 0o700); err != nil {
		return nil, WrapExitError(ExitCommandError, "data dir", err)
	}
	setupWASMCache(cfg.CachePath(), log)

	kv, err := boltkv.Open(cfg.BoltPath())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open local database", err)
	}
	a, err := app.Open(ctx, cfg, app.Deps{KV: kv, Logger: log})
	if err != nil {
		kv.Close()
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	log.Debug("environment ready", "bolt", kv.Path(), "sync", a.Syncer != nil)
	return &env{cfg: cfg, app: a, kv: kv, log: log}, nil
}

func (e *env) Close() error {
	err := e.app.Close()
	if kerr := e.kv.Close(); err == nil {
		err = kerr
	}
	return err
}

func (e *env) lockPath() string {
	return filepath.Join(e.cfg.Data.Dir, ".sync.lock")
}

// withEnv opens the environment, runs fn and closes it again.
func withEnv(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, e *env, out *OutputFormatter) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := newFormatter(opts, cmd)
	e, err := openEnv(ctx, opts, cmd)
	if err != nil {
		return out.Fail(GetExitCode(err), "startup", err)
	}
	defer func() {
		if cerr := e.Close(); cerr != nil {
			e.log.Warn("closing", "error", cerr)
		}
	}()
	return fn(ctx, e, out)
}

func joinNonEmpty(parts []string, sep string) string {
	var keep []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keep = append(keep, p)
		}
	}
	if len(keep) == 0 {
		return dim("-")
	}
	return strings.Join(keep, sep)
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
