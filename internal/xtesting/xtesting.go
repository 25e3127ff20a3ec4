// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package xtesting builds ready-to-use test fixtures, the way
// internal/testing/helpers.go built a ready-to-use embedded backend
// for the donor's tests: construct, t.Cleanup, hand back. Here the
// fixtures are an in-memory capability registry, a temp-dir-backed
// model cache, and an Acquirer with guaranteed cleanup, in place of
// the donor's embedded storage backend.
package xtesting

import (
	"testing"

	"github.com/ingestlabs/extractcore/pkg/acquire"
	"github.com/ingestlabs/extractcore/pkg/modelcache"
	"github.com/ingestlabs/extractcore/pkg/registry"
)

// NewRegistry builds a Registry with every given plugin already
// registered.
func NewRegistry(t *testing.T, plugins ...registry.Plugin) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, p := range plugins {
		reg.Register(p)
	}
	return reg
}

// NewModelCache builds a Cache backed by builder, with the CoreML
// cache directory pinned to a fresh t.TempDir() so tests never touch
// the real $HOME/.cache path or race each other over it.
func NewModelCache(t *testing.T, builder modelcache.SessionBuilder) *modelcache.Cache {
	t.Helper()
	t.Setenv("VIDEO_EXTRACT_COREML_CACHE_DIR", t.TempDir())
	return modelcache.New(builder, nil)
}

// NewAcquirer builds an Acquirer backed by store (nil is fine for
// url/upload-only tests) and registers its Close with t.Cleanup so
// every temp file it downloads is removed when the test ends.
func NewAcquirer(t *testing.T, store acquire.ObjectStore) *acquire.Acquirer {
	t.Helper()
	a := acquire.New(store, nil)
	t.Cleanup(func() {
		if err := a.Close(); err != nil {
			t.Logf("acquirer cleanup: %v", err)
		}
	})
	return a
}
