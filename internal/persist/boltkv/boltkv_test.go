//go:build !js

package boltkv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/leakr/internal/persist"
)

var _ persist.KV = (*Store)(nil)

func TestStoreGetPut(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "leakr.bolt")

	s, err := Open(path)
	require.NoError(t, err)

	v, err := s.Get(ctx, persist.BlobKey)
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.Put(ctx, persist.BlobKey, []byte("blob")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	v, err = s.Get(ctx, persist.BlobKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), v)
	assert.Equal(t, path, s.Path())
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "leakr.bolt"))
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Put(ctx, "k", nil), context.Canceled)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
