//go:build js && wasm

package main

import (
	"context"
	"errors"
	"fmt"
	"syscall/js"

	"github.com/kittclouds/leakr/internal/persist"
	"github.com/kittclouds/leakr/internal/remote"
)

// await blocks until p settles. Never call it from the JS event loop
// goroutine: the promise can only settle once control returns to JS.
func await(ctx context.Context, p js.Value) (js.Value, error) {
	type outcome struct {
		v   js.Value
		err error
	}
	ch := make(chan outcome, 1)

	onOK := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		var v js.Value
		if len(args) > 0 {
			v = args[0]
		}
		ch <- outcome{v: v}
		return nil
	})
	onErr := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		msg := "promise rejected"
		if len(args) > 0 && !args[0].IsUndefined() && !args[0].IsNull() {
			msg = args[0].Call("toString").String()
		}
		ch <- outcome{err: errors.New(msg)}
		return nil
	})
	defer onOK.Release()
	defer onErr.Release()

	p.Call("then", onOK).Call("catch", onErr)

	select {
	case o := <-ch:
		return o.v, o.err
	case <-ctx.Done():
		return js.Undefined(), ctx.Err()
	}
}

func chromeStorage() (js.Value, error) {
	chrome := js.Global().Get("chrome")
	if chrome.IsUndefined() || chrome.Get("storage").IsUndefined() {
		return js.Undefined(), errors.New("chrome.storage is not available")
	}
	return chrome.Get("storage").Get("local"), nil
}

// chromeKV is persist.KV over chrome.storage.local. Values are stored as
// plain number arrays, the only byte shape chrome.storage round-trips.
type chromeKV struct{}

var _ persist.KV = chromeKV{}

func (chromeKV) Get(ctx context.Context, key string) ([]byte, error) {
	local, err := chromeStorage()
	if err != nil {
		return nil, err
	}
	res, err := await(ctx, local.Call("get", key))
	if err != nil {
		return nil, fmt.Errorf("chrome.storage.local.get: %w", err)
	}
	v := res.Get(key)
	if v.IsUndefined() || v.IsNull() {
		return nil, nil
	}
	u8 := js.Global().Get("Uint8Array").New(v)
	data := make([]byte, u8.Get("length").Int())
	js.CopyBytesToGo(data, u8)
	return data, nil
}

func (chromeKV) Put(ctx context.Context, key string, value []byte) error {
	local, err := chromeStorage()
	if err != nil {
		return err
	}
	u8 := js.Global().Get("Uint8Array").New(len(value))
	js.CopyBytesToJS(u8, value)
	arr := js.Global().Get("Array").Call("from", u8)

	obj := js.Global().Get("Object").New()
	obj.Set(key, arr)
	if _, err := await(ctx, local.Call("set", obj)); err != nil {
		return fmt.Errorf("chrome.storage.local.set: %w", err)
	}
	return nil
}

// chromeToken reads the access token the auth flow leaves in
// chrome.storage.local.
func chromeToken() remote.TokenSource {
	return remote.TokenFunc(func(ctx context.Context) (string, error) {
		local, err := chromeStorage()
		if err != nil {
			return "", err
		}
		res, err := await(ctx, local.Call("get", "access_token"))
		if err != nil {
			return "", err
		}
		tok := res.Get("access_token")
		if tok.IsUndefined() || tok.IsNull() || tok.String() == "" {
			return "", remote.ErrNoToken
		}
		return tok.String(), nil
	})
}
