//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall/js"

	"github.com/kittclouds/leakr/internal/app"
)

// Version info
const Version = "1.1.2"

// Global state
var (
	mu           sync.Mutex
	leakr        *app.App
	syncListener js.Value // JS callback for sync state changes
	logger       = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
)

func main() {
	fmt.Println("[Leakr] WASM Ready v" + Version)

	js.Global().Set("Leakr", js.ValueOf(map[string]interface{}{
		"version": js.FuncOf(getVersion),
		"init":    js.FuncOf(initialize),
		// Lookup
		"resolve": js.FuncOf(resolveQuery),
		"find":    js.FuncOf(find),
		// Persistence
		"flush":          js.FuncOf(flush),
		"exportSnapshot": js.FuncOf(exportSnapshot),
		"importSnapshot": js.FuncOf(importSnapshot),
		// Sync
		"sync":         js.FuncOf(runSync),
		"syncState":    js.FuncOf(syncState),
		"keepLocal":    js.FuncOf(keepLocal),
		"acceptRemote": js.FuncOf(acceptRemote),
		"onSyncChange": js.FuncOf(onSyncChange),
		// Settings
		"settings":           js.FuncOf(settings),
		"setOwnerUUID":       js.FuncOf(setOwnerUUID),
		"setShareCollection": js.FuncOf(setShareCollection),
		// Creators & contents
		"addCreator":         js.FuncOf(addCreator),
		"listCreators":       js.FuncOf(listCreators),
		"deleteCreator":      js.FuncOf(deleteCreator),
		"setCreatorFavorite": js.FuncOf(setCreatorFavorite),
		"setCreatorVerified": js.FuncOf(setCreatorVerified),
		"addContent":         js.FuncOf(addContent),
		"listContents":       js.FuncOf(listContents),
		"deleteContent":      js.FuncOf(deleteContent),
		"setContentFavorite": js.FuncOf(setContentFavorite),
	}))

	select {}
}

func getVersion(this js.Value, args []js.Value) interface{} {
	return Version
}

// Helper: Create error result
func errorResult(msg string) interface{} {
	result := map[string]interface{}{
		"error": msg,
	}
	jsonBytes, _ := json.Marshal(result)
	return string(jsonBytes)
}

// Helper: Create success result
func successResult(msg string) interface{} {
	result := map[string]interface{}{
		"success": msg,
	}
	jsonBytes, _ := json.Marshal(result)
	return string(jsonBytes)
}

// Helper: Marshal v as the result, or an error result
func jsonResult(v interface{}) interface{} {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return errorResult("marshal result: " + err.Error())
	}
	return string(jsonBytes)
}

// makePromise creates a JS Promise and returns it along with resolve/reject functions.
func makePromise() (promise js.Value, resolve js.Value, reject js.Value) {
	var resolveFn, rejectFn js.Value
	handler := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		resolveFn = args[0]
		rejectFn = args[1]
		return nil
	})
	defer handler.Release()

	promise = js.Global().Get("Promise").New(handler)
	return promise, resolveFn, rejectFn
}

// async runs fn off the event loop and resolves the returned Promise with
// its result. Every call that touches storage or the network goes through
// here because those await JS promises.
func async(name string, fn func(ctx context.Context, a *app.App) interface{}) interface{} {
	promise, resolve, _ := makePromise()
	go func() {
		mu.Lock()
		a := leakr
		mu.Unlock()
		if a == nil {
			resolve.Invoke(errorResult(name + ": not initialized (call init first)"))
			return
		}
		resolve.Invoke(fn(context.Background(), a))
	}()
	return promise
}

func argString(args []js.Value, i int) string {
	if len(args) <= i || args[i].IsUndefined() || args[i].IsNull() {
		return ""
	}
	return args[i].String()
}

func argBool(args []js.Value, i int) bool {
	return len(args) > i && args[i].Truthy()
}

func argInt64(args []js.Value, i int) (int64, bool) {
	if len(args) <= i || args[i].Type() != js.TypeNumber {
		return 0, false
	}
	return int64(args[i].Int()), true
}

func argBytes(args []js.Value, i int) []byte {
	if len(args) <= i || args[i].IsUndefined() || args[i].IsNull() {
		return nil
	}
	jsArray := args[i]
	data := make([]byte, jsArray.Get("length").Int())
	js.CopyBytesToGo(data, jsArray)
	return data
}
