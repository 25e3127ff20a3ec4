// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package xtesting

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingestlabs/extractcore/pkg/modelcache"
	"github.com/ingestlabs/extractcore/pkg/types"
)

type nopPlugin struct{ name string }

func (p nopPlugin) Descriptor() types.PluginDescriptor { return types.PluginDescriptor{Name: p.name} }
func (p nopPlugin) Invoke(ctx context.Context, req types.PluginRequest) (types.PluginResponse, error) {
	return types.PluginResponse{}, nil
}

func TestNewRegistryRegistersAllPlugins(t *testing.T) {
	reg := NewRegistry(t, nopPlugin{name: "a"}, nopPlugin{name: "b"})
	_, ok := reg.ByName("a")
	assert.True(t, ok)
	_, ok = reg.ByName("b")
	assert.True(t, ok)
}

func TestNewModelCachePinsCoreMLCacheDir(t *testing.T) {
	c := NewModelCache(t, func(modelPath string, opts modelcache.BuildOptions) (modelcache.InferenceSession, error) {
		return nil, assertErr{}
	})
	require.NotNil(t, c)
	dir := os.Getenv("VIDEO_EXTRACT_COREML_CACHE_DIR")
	require.NotEmpty(t, dir)
	assert.DirExists(t, dir)
	assert.Equal(t, dir, modelcache.CoreMLCacheDir(nil))
}

type assertErr struct{}

func (assertErr) Error() string { return "unused" }

type memStore struct{}

func (memStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("clip")), nil
}

func TestNewAcquirerCleansUpOnTestEnd(t *testing.T) {
	var path string
	t.Run("scope", func(t *testing.T) {
		a := NewAcquirer(t, memStore{})
		require.NotNil(t, a)
		df, err := a.Acquire(context.Background(), "s3://bucket/clip.mp4")
		require.NoError(t, err)
		path = df.Path
		require.FileExists(t, path)
	})
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "downloaded file should be removed once the test scope ends")
}
