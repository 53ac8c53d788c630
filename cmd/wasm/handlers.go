//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall/js"

	"gopkg.in/yaml.v3"

	"github.com/kittclouds/leakr/internal/app"
	"github.com/kittclouds/leakr/internal/config"
	"github.com/kittclouds/leakr/internal/store"
	"github.com/kittclouds/leakr/internal/syncer"
	"github.com/kittclouds/leakr/pkg/resolver"
)

// initialize opens the store from chrome.storage.local.
// Args: [config string, optional] - a leakr.yaml document; its JSON form parses too
// Returns: Promise<JSON>
func initialize(this js.Value, args []js.Value) interface{} {
	cfg := config.Default()
	if raw := argString(args, 0); raw != "" {
		if err := yaml.Unmarshal([]byte(raw), &cfg); err != nil {
			return errorResult("invalid config: " + err.Error())
		}
	}
	if err := cfg.Validate(); err != nil {
		return errorResult("invalid config: " + err.Error())
	}
	logger.Info("initializing", "sync", cfg.Sync.Enabled, "storage", cfg.Storage.BaseURL)

	promise, resolve, _ := makePromise()
	go func() {
		mu.Lock()
		defer mu.Unlock()
		if leakr != nil {
			leakr.Close()
			leakr = nil
		}
		a, err := app.Open(context.Background(), cfg, app.Deps{
			KV:           chromeKV{},
			Tokens:       chromeToken(),
			OnSyncChange: notifySync,
			Logger:       logger,
		})
		if err != nil {
			// Migration failures land here and block the extension.
			resolve.Invoke(errorResult(err.Error()))
			return
		}
		leakr = a
		resolve.Invoke(successResult("initialized"))
	}()
	return promise
}

type resolveView struct {
	Creator      *store.Creator `json:"creator,omitempty"`
	Tier         string         `json:"tier"`
	Score        float64        `json:"score,omitempty"`
	LearnedAlias bool           `json:"learnedAlias,omitempty"`
	Warnings     []string       `json:"warnings,omitempty"`
}

func viewResult(r resolver.Result) resolveView {
	v := resolveView{
		Creator:      r.Creator,
		Tier:         r.Tier.String(),
		Score:        r.Score,
		LearnedAlias: r.LearnedAlias,
	}
	for _, w := range r.Warnings {
		v.Warnings = append(v.Warnings, w.Error())
	}
	return v
}

// resolveQuery runs the resolution cascade.
// Args: [query string]
// Returns: Promise<JSON> {creator?, tier, score, learnedAlias, warnings}
func resolveQuery(this js.Value, args []js.Value) interface{} {
	query := argString(args, 0)
	return async("resolve", func(ctx context.Context, a *app.App) interface{} {
		r, err := a.Resolve(ctx, query)
		if err != nil {
			return errorResult(err.Error())
		}
		return jsonResult(viewResult(r))
	})
}

// find resolves a pasted URL or username and links recognized profiles.
// Args: [input string]
func find(this js.Value, args []js.Value) interface{} {
	input := argString(args, 0)
	return async("find", func(ctx context.Context, a *app.App) interface{} {
		r, err := a.Find(ctx, input)
		if err != nil {
			return errorResult(err.Error())
		}
		return jsonResult(r)
	})
}

func flush(this js.Value, args []js.Value) interface{} {
	return async("flush", func(ctx context.Context, a *app.App) interface{} {
		if err := a.Flush(ctx); err != nil {
			return errorResult(err.Error())
		}
		return successResult("flushed")
	})
}

// exportSnapshot returns the serialized store.
// Returns: Promise<{filename string, data Uint8Array}>
func exportSnapshot(this js.Value, args []js.Value) interface{} {
	return async("exportSnapshot", func(ctx context.Context, a *app.App) interface{} {
		snap, err := a.ExportSnapshot(ctx)
		if err != nil {
			return errorResult("export failed: " + err.Error())
		}
		jsArray := js.Global().Get("Uint8Array").New(len(snap.Data))
		js.CopyBytesToJS(jsArray, snap.Data)

		fmt.Printf("[Leakr] Exported %d bytes\n", len(snap.Data))
		return js.ValueOf(map[string]interface{}{
			"filename": snap.Info.Filename,
			"data":     jsArray,
		})
	})
}

// importSnapshot replaces the store.
// Args: [data Uint8Array]
func importSnapshot(this js.Value, args []js.Value) interface{} {
	data := argBytes(args, 0)
	if len(data) == 0 {
		return errorResult("importSnapshot requires 1 arg: data (Uint8Array)")
	}
	return async("importSnapshot", func(ctx context.Context, a *app.App) interface{} {
		if err := a.ImportSnapshot(ctx, data); err != nil {
			return errorResult("import failed: " + err.Error())
		}
		return successResult(fmt.Sprintf("imported %d bytes", len(data)))
	})
}

func syncResult(st syncer.Status, err error) interface{} {
	if err != nil {
		return jsonResult(map[string]interface{}{"error": err.Error(), "status": st})
	}
	return jsonResult(st)
}

func runSync(this js.Value, args []js.Value) interface{} {
	return async("sync", func(ctx context.Context, a *app.App) interface{} {
		return syncResult(a.Sync(ctx))
	})
}

func syncState(this js.Value, args []js.Value) interface{} {
	mu.Lock()
	a := leakr
	mu.Unlock()
	if a == nil {
		return errorResult("not initialized")
	}
	return syncResult(a.SyncState())
}

func keepLocal(this js.Value, args []js.Value) interface{} {
	return async("keepLocal", func(ctx context.Context, a *app.App) interface{} {
		return syncResult(a.KeepLocal())
	})
}

// acceptRemote imports one of the conflicting remote snapshots.
// Args: [filename string]
func acceptRemote(this js.Value, args []js.Value) interface{} {
	filename := argString(args, 0)
	return async("acceptRemote", func(ctx context.Context, a *app.App) interface{} {
		return syncResult(a.AcceptRemote(ctx, filename))
	})
}

// onSyncChange registers a callback receiving the sync status as JSON.
// Args: [fn function | null]
func onSyncChange(this js.Value, args []js.Value) interface{} {
	mu.Lock()
	defer mu.Unlock()
	if len(args) > 0 && args[0].Type() == js.TypeFunction {
		syncListener = args[0]
	} else {
		syncListener = js.Undefined()
	}
	return successResult("registered")
}

func notifySync(st syncer.Status) {
	mu.Lock()
	fn := syncListener
	mu.Unlock()
	if fn.Type() == js.TypeFunction {
		fn.Invoke(jsonResult(st))
	}
}

func settings(this js.Value, args []js.Value) interface{} {
	return async("settings", func(ctx context.Context, a *app.App) interface{} {
		st, err := a.Settings(ctx)
		if err != nil {
			return errorResult(err.Error())
		}
		return jsonResult(st)
	})
}

// setOwnerUUID links the store to a user.
// Args: [uuid string]
func setOwnerUUID(this js.Value, args []js.Value) interface{} {
	owner := argString(args, 0)
	return async("setOwnerUUID", func(ctx context.Context, a *app.App) interface{} {
		if err := a.SetOwnerUUID(ctx, owner); err != nil {
			return errorResult(err.Error())
		}
		return successResult("owner set")
	})
}

// setShareCollection toggles collection sharing.
// Args: [share bool]
func setShareCollection(this js.Value, args []js.Value) interface{} {
	share := argBool(args, 0)
	return async("setShareCollection", func(ctx context.Context, a *app.App) interface{} {
		if err := a.SetShareCollection(ctx, share); err != nil {
			return errorResult(err.Error())
		}
		return successResult(fmt.Sprintf("share collection: %t", share))
	})
}

// addCreator inserts a creator.
// Args: [name string, aliasesJSON string (optional)]
func addCreator(this js.Value, args []js.Value) interface{} {
	name := argString(args, 0)
	var aliases []string
	if raw := argString(args, 1); raw != "" {
		if err := json.Unmarshal([]byte(raw), &aliases); err != nil {
			return errorResult("invalid aliases json: " + err.Error())
		}
	}
	return async("addCreator", func(ctx context.Context, a *app.App) interface{} {
		c, err := a.AddCreator(ctx, name, aliases)
		if err != nil && c == nil {
			return errorResult(err.Error())
		}
		return jsonResult(c)
	})
}

func listCreators(this js.Value, args []js.Value) interface{} {
	return async("listCreators", func(ctx context.Context, a *app.App) interface{} {
		cs, err := a.Store.ListCreators(ctx)
		if err != nil {
			return errorResult(err.Error())
		}
		return jsonResult(cs)
	})
}

func idCall(name string, args []js.Value, fn func(ctx context.Context, a *app.App, id int64) error) interface{} {
	id, ok := argInt64(args, 0)
	if !ok {
		return errorResult(name + " requires 1 arg: id (number)")
	}
	return async(name, func(ctx context.Context, a *app.App) interface{} {
		if err := fn(ctx, a, id); err != nil {
			return errorResult(err.Error())
		}
		return successResult(fmt.Sprintf("%s %d", name, id))
	})
}

// deleteCreator removes a creator with its contents and profiles.
// Args: [id number]
func deleteCreator(this js.Value, args []js.Value) interface{} {
	return idCall("deleteCreator", args, func(ctx context.Context, a *app.App, id int64) error {
		return a.DeleteCreator(ctx, id)
	})
}

// Args: [id number, favorite bool]
func setCreatorFavorite(this js.Value, args []js.Value) interface{} {
	fav := argBool(args, 1)
	return idCall("setCreatorFavorite", args, func(ctx context.Context, a *app.App, id int64) error {
		return a.SetCreatorFavorite(ctx, id, fav)
	})
}

// Args: [id number, verified bool]
func setCreatorVerified(this js.Value, args []js.Value) interface{} {
	verified := argBool(args, 1)
	return idCall("setCreatorVerified", args, func(ctx context.Context, a *app.App, id int64) error {
		return a.SetCreatorVerified(ctx, id, verified)
	})
}

// addContent saves a page for a creator.
// Args: [contentJSON string] - {url, tabLabel?, creatorId}
func addContent(this js.Value, args []js.Value) interface{} {
	var in struct {
		URL       string  `json:"url"`
		TabLabel  *string `json:"tabLabel"`
		CreatorID int64   `json:"creatorId"`
	}
	if err := json.Unmarshal([]byte(argString(args, 0)), &in); err != nil {
		return errorResult("invalid content json: " + err.Error())
	}
	if in.URL == "" || in.CreatorID == 0 {
		return errorResult("addContent requires url and creatorId")
	}
	return async("addContent", func(ctx context.Context, a *app.App) interface{} {
		id, err := a.AddContent(ctx, &store.Content{URL: in.URL, TabLabel: in.TabLabel, OwnerCreatorID: in.CreatorID})
		if err != nil && id == 0 {
			return errorResult(err.Error())
		}
		return jsonResult(map[string]interface{}{"id": id})
	})
}

// listContents lists saved pages, newest first.
// Args: [creatorId number (optional)]
func listContents(this js.Value, args []js.Value) interface{} {
	creatorID, byCreator := argInt64(args, 0)
	return async("listContents", func(ctx context.Context, a *app.App) interface{} {
		var (
			cs  []*store.Content
			err error
		)
		if byCreator {
			cs, err = a.Store.ListContentsByCreator(ctx, creatorID)
		} else {
			cs, err = a.Store.ListContents(ctx)
		}
		if err != nil {
			return errorResult(err.Error())
		}
		return jsonResult(cs)
	})
}

// Args: [id number]
func deleteContent(this js.Value, args []js.Value) interface{} {
	return idCall("deleteContent", args, func(ctx context.Context, a *app.App, id int64) error {
		return a.DeleteContent(ctx, id)
	})
}

// Args: [id number, favorite bool]
func setContentFavorite(this js.Value, args []js.Value) interface{} {
	fav := argBool(args, 1)
	return idCall("setContentFavorite", args, func(ctx context.Context, a *app.App, id int64) error {
		return a.SetContentFavorite(ctx, id, fav)
	})
}
