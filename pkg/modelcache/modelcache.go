// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package modelcache implements the process-wide inference session
// cache: a lazily populated, never-evicted table keyed by
// (model path, provider set), plus the CoreML -> CUDA -> CPU provider
// fallback and on-disk cache-directory discipline ported from the
// original onnx_utils helper.
//
// This package does not link any concrete ONNX runtime binding — no
// complete example repo in the retrieval pack vendors one. Callers
// supply a SessionBuilder that does the actual model load; modelcache
// owns only the caching, fallback, and cache-dir policy around it.
package modelcache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ingestlabs/extractcore/internal/xerrors"
	"github.com/ingestlabs/extractcore/internal/xmetrics"
)

// Provider is an ONNX execution provider, tried in the order given.
type Provider string

const (
	ProviderCoreML Provider = "coreml"
	ProviderCUDA   Provider = "cuda"
	ProviderCPU    Provider = "cpu"
)

// DefaultProviders is the preference order used when a caller does
// not care: CoreML first (with subgraph partitioning), falling back
// to CUDA, falling back to CPU.
func DefaultProviders() []Provider {
	return []Provider{ProviderCoreML, ProviderCUDA, ProviderCPU}
}

// BuildOptions carries the resolved runtime knobs a SessionBuilder
// needs: intra-op thread count and the CoreML compiled-artifact cache
// directory (only meaningful when Providers includes ProviderCoreML).
type BuildOptions struct {
	Providers    []Provider
	IntraThreads int
	CoreMLCacheDir string
	Debug        bool
}

// InferenceSession is the minimal surface modelcache needs from a
// loaded model. Concrete implementations wrap whatever ONNX binding
// the embedding host links in.
type InferenceSession interface {
	Run(ctx context.Context, inputs map[string]any) (map[string]any, error)
	Close() error
}

// SessionBuilder constructs a session for modelPath under the given
// options. It returns an error whose text names the failing provider
// so Cache can pattern-match CoreML/MLModel failures and retry without
// it; this mirrors the original Rust helper's string-matching fallback
// since ONNX Runtime does not expose a typed "provider unavailable"
// error.
type SessionBuilder func(modelPath string, opts BuildOptions) (InferenceSession, error)

type cacheKey struct {
	modelPath string
	providers string
}

// Cache is the process-wide session table. The zero value is not
// usable; construct with New.
type Cache struct {
	mu       sync.Mutex
	sessions map[cacheKey]InferenceSession
	builder  SessionBuilder
	logger   *slog.Logger
}

// New returns a Cache that uses builder to load sessions on first
// request. A nil logger falls back to slog.Default().
func New(builder SessionBuilder, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{sessions: make(map[cacheKey]InferenceSession), builder: builder, logger: logger}
}

// Get returns the cached session for (modelPath, providers), loading
// it on first request. Sessions are never evicted: once loaded, a
// session lives for the process's lifetime. If providers includes
// ProviderCoreML and the build fails with a CoreML/MLModel-flavored
// error, Get retries once with ProviderCoreML dropped.
func (c *Cache) Get(ctx context.Context, modelPath string, providers []Provider) (InferenceSession, error) {
	if len(providers) == 0 {
		providers = DefaultProviders()
	}
	key := cacheKey{modelPath: modelPath, providers: joinProviders(providers)}

	c.mu.Lock()
	if sess, ok := c.sessions[key]; ok {
		c.mu.Unlock()
		xmetrics.RecordModelCacheHit()
		return sess, nil
	}
	c.mu.Unlock()

	// Load happens outside the lock: a concurrent caller for the same
	// key may race and build twice, but only one result is kept — the
	// loser's session is closed. Never evicted means we do want the
	// lock held for the short "check and publish" window only.
	started := time.Now()
	sess, err := c.loadWithFallback(ctx, modelPath, providers)
	if err != nil {
		xmetrics.RecordModelLoadFailed()
		return nil, err
	}
	xmetrics.RecordModelCacheMiss(time.Since(started).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.sessions[key]; ok {
		_ = sess.Close()
		return existing, nil
	}
	c.sessions[key] = sess
	return sess, nil
}

func (c *Cache) loadWithFallback(ctx context.Context, modelPath string, providers []Provider) (InferenceSession, error) {
	opts := c.buildOptions(providers)
	sess, err := c.builder(modelPath, opts)
	if err == nil {
		return sess, nil
	}

	if !hasProvider(providers, ProviderCoreML) || !looksLikeCoreMLFailure(err) {
		return nil, xerrors.NewModelUnavailable(fmt.Errorf("load %s: %w", modelPath, err))
	}

	c.logger.Warn("modelcache.coreml_fallback", "model_path", modelPath, "err", err)
	fallback := dropProvider(providers, ProviderCoreML)
	opts = c.buildOptions(fallback)
	sess, err = c.builder(modelPath, opts)
	if err != nil {
		return nil, xerrors.NewModelUnavailable(fmt.Errorf("load %s (post-CoreML-fallback): %w", modelPath, err))
	}
	return sess, nil
}

func (c *Cache) buildOptions(providers []Provider) BuildOptions {
	opts := BuildOptions{
		Providers:    providers,
		IntraThreads: IntraThreads(),
		Debug:        DebugONNX(),
	}
	if hasProvider(providers, ProviderCoreML) {
		opts.CoreMLCacheDir = CoreMLCacheDir(c.logger)
	}
	return opts
}

// looksLikeCoreMLFailure reports whether err's text suggests the
// CoreML execution provider itself is the cause, by substring match
// on "CoreML" or "MLModel" — ONNX Runtime's own errors are untyped
// strings here, so this is the same heuristic the original helper
// used.
func looksLikeCoreMLFailure(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "CoreML") || strings.Contains(msg, "MLModel")
}

func hasProvider(providers []Provider, p Provider) bool {
	for _, existing := range providers {
		if existing == p {
			return true
		}
	}
	return false
}

func dropProvider(providers []Provider, p Provider) []Provider {
	out := make([]Provider, 0, len(providers))
	for _, existing := range providers {
		if existing != p {
			out = append(out, existing)
		}
	}
	return out
}

func joinProviders(providers []Provider) string {
	parts := make([]string, len(providers))
	for i, p := range providers {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}

// IntraThreads returns the intra-op thread count: VIDEO_EXTRACT_THREADS
// if set to a positive integer, otherwise runtime.NumCPU().
func IntraThreads() int {
	if raw := os.Getenv("VIDEO_EXTRACT_THREADS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return runtime.NumCPU()
}

// DebugONNX reports whether VIDEO_EXTRACT_DEBUG_ONNX is set to a
// truthy value ("1" or "true", case-insensitive).
func DebugONNX() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("VIDEO_EXTRACT_DEBUG_ONNX")))
	return raw == "1" || raw == "true"
}

// CoreMLCacheDir resolves the directory CoreML should use for its
// compiled-artifact cache, following the same priority chain as the
// original helper: an explicit env var, then $HOME/.cache, then a
// temp-dir fallback. It creates the directory at whichever step
// succeeds, logging (not failing) if MkdirAll errors.
func CoreMLCacheDir(logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := os.Getenv("VIDEO_EXTRACT_COREML_CACHE_DIR"); dir != "" {
		ensureDir(logger, dir)
		return dir
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		dir := filepath.Join(home, ".cache", "video-extract", "coreml")
		ensureDir(logger, dir)
		return dir
	}

	tmp := os.Getenv("TMPDIR")
	if tmp == "" {
		tmp = os.TempDir()
	}
	dir := filepath.Join(tmp, "video-extract-coreml")
	ensureDir(logger, dir)
	return dir
}

func ensureDir(logger *slog.Logger, dir string) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("modelcache.cache_dir_mkdir_failed", "dir", dir, "err", err)
	}
}
