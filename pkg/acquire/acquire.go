// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package acquire resolves a source descriptor (an http(s) URL, an
// s3://bucket/key reference, or an already-local upload path) into a
// local file with guaranteed cleanup. Ported from the original
// download helper, with the same extension-inference rules and
// temp-file ownership discipline the donor's RepoLoader uses for its
// own scratch directories.
package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/ingestlabs/extractcore/internal/xerrors"
)

// downloadTimeout matches the original helper's client-wide timeout
// for url sources.
const downloadTimeout = 300 * time.Second

// DownloadedFile is a local file produced by Acquire, with ownership
// of any temp file/dir it created to hold the content.
type DownloadedFile struct {
	Path    string
	release func() error
}

// Release removes any temporary storage DownloadedFile owns. It is
// a no-op for upload sources that were already local and not copied.
func (d *DownloadedFile) Release() error {
	if d.release == nil {
		return nil
	}
	return d.release()
}

// ObjectStore is the minimal interface Acquirer needs to fetch an s3
// object. No concrete AWS SDK binding ships in this module — nothing
// in the retrieval pack vendors one — so callers supply their own
// implementation; Acquirer owns only the source-parsing and temp-file
// plumbing around it.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Acquirer resolves source descriptors to local files and tracks every
// temp directory it creates so Close can remove them all, mirroring
// the donor's tempDirs/tempDirsMu cleanup idiom.
type Acquirer struct {
	client      *http.Client
	objectStore ObjectStore
	logger      *slog.Logger

	mu       sync.Mutex
	tempDirs []string
}

// New returns an Acquirer. store may be nil if only url/upload sources
// are ever used; an s3:// source then fails with InputInvalid. A nil
// logger falls back to slog.Default().
func New(store ObjectStore, logger *slog.Logger) *Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{
		client:      &http.Client{Timeout: downloadTimeout},
		objectStore: store,
		logger:      logger,
	}
}

// Acquire resolves source into a local file. source is one of:
// an http(s):// URL, an s3://bucket/key reference, or a local path
// (treated as an already-uploaded file and returned without copying).
func (a *Acquirer) Acquire(ctx context.Context, source string) (*DownloadedFile, error) {
	switch {
	case strings.HasPrefix(source, "s3://"):
		return a.acquireS3(ctx, source)
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		return a.acquireURL(ctx, source)
	default:
		return a.acquireUpload(source)
	}
}

// Close removes every temp directory created by prior Acquire calls.
func (a *Acquirer) Close() error {
	a.mu.Lock()
	dirs := a.tempDirs
	a.tempDirs = nil
	a.mu.Unlock()

	var firstErr error
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			a.logger.Warn("acquire.cleanup_failed", "dir", dir, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (a *Acquirer) acquireUpload(path string) (*DownloadedFile, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, xerrors.NewInputInvalid(fmt.Errorf("upload source %q: %w", path, err))
	}
	return &DownloadedFile{Path: path}, nil
}

func (a *Acquirer) acquireURL(ctx context.Context, rawURL string) (*DownloadedFile, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, xerrors.NewInputInvalid(fmt.Errorf("unsupported url scheme in %q", rawURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, xerrors.NewInputInvalid(fmt.Errorf("building request for %q: %w", rawURL, err))
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, xerrors.NewIOFailed(fmt.Errorf("downloading %q: %w", rawURL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, xerrors.NewIOFailed(fmt.Errorf("downloading %q: status %d", rawURL, resp.StatusCode))
	}

	ext, ok := inferExtensionFromURL(rawURL)
	if !ok {
		ext, ok = inferExtensionFromContentType(resp.Header.Get("Content-Type"))
		if !ok {
			a.logger.Warn("acquire.unknown_content_type", "url", rawURL, "content_type", resp.Header.Get("Content-Type"))
			ext = "tmp"
		}
	}

	dir, err := os.MkdirTemp("", "extractcore-download-*")
	if err != nil {
		return nil, xerrors.NewIOFailed(fmt.Errorf("creating temp dir: %w", err))
	}
	a.trackTempDir(dir)

	dest := filepath.Join(dir, "download."+ext)
	f, err := os.Create(dest)
	if err != nil {
		return nil, xerrors.NewIOFailed(fmt.Errorf("creating %q: %w", dest, err))
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return nil, xerrors.NewIOFailed(fmt.Errorf("writing %q: %w", dest, err))
	}

	return &DownloadedFile{Path: dest, release: func() error { return os.RemoveAll(dir) }}, nil
}

func (a *Acquirer) acquireS3(ctx context.Context, source string) (*DownloadedFile, error) {
	if a.objectStore == nil {
		return nil, xerrors.NewInputInvalid(fmt.Errorf("s3 source %q: no object store configured", source))
	}

	trimmed := strings.TrimPrefix(source, "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, xerrors.NewInputInvalid(fmt.Errorf("malformed s3 source %q, want s3://bucket/key", source))
	}
	bucket, key := parts[0], parts[1]

	body, err := a.objectStore.Get(ctx, bucket, key)
	if err != nil {
		return nil, xerrors.NewIOFailed(fmt.Errorf("fetching s3://%s/%s: %w", bucket, key, err))
	}
	defer body.Close()

	dir, err := os.MkdirTemp("", "extractcore-download-*")
	if err != nil {
		return nil, xerrors.NewIOFailed(fmt.Errorf("creating temp dir: %w", err))
	}
	a.trackTempDir(dir)

	ext, ok := inferExtensionFromURL(key)
	if !ok {
		ext = "tmp"
	}
	dest := filepath.Join(dir, "download."+ext)
	f, err := os.Create(dest)
	if err != nil {
		return nil, xerrors.NewIOFailed(fmt.Errorf("creating %q: %w", dest, err))
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return nil, xerrors.NewIOFailed(fmt.Errorf("writing %q: %w", dest, err))
	}

	return &DownloadedFile{Path: dest, release: func() error { return os.RemoveAll(dir) }}, nil
}

func (a *Acquirer) trackTempDir(dir string) {
	a.mu.Lock()
	a.tempDirs = append(a.tempDirs, dir)
	a.mu.Unlock()
}

// inferExtensionFromURL extracts a plausible file extension from a
// URL's path component: the query string is stripped, the filename
// must contain a dot, and the extension must be <=5 alphanumeric
// characters.
func inferExtensionFromURL(rawURL string) (string, bool) {
	path := rawURL
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	name := path
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 || dot == len(name)-1 {
		return "", false
	}
	ext := name[dot+1:]
	if len(ext) == 0 || len(ext) > 5 {
		return "", false
	}
	for _, r := range ext {
		if !isAlphaNumeric(r) {
			return "", false
		}
	}
	return strings.ToLower(ext), true
}

func isAlphaNumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// contentTypeExtensions mirrors the original helper's match table.
var contentTypeExtensions = map[string]string{
	"video/mp4":        "mp4",
	"video/mpeg":       "mpeg",
	"video/quicktime":  "mov",
	"video/x-msvideo":  "avi",
	"video/x-matroska": "mkv",
	"video/webm":       "webm",
	"video/x-flv":      "flv",
	"video/3gpp":       "3gp",
	"video/3gpp2":      "3g2",
	"audio/mpeg":       "mp3",
	"audio/wav":        "wav",
	"audio/wave":       "wav",
	"audio/x-wav":      "wav",
	"audio/ogg":        "ogg",
	"audio/flac":       "flac",
	"audio/aac":        "aac",
	"audio/mp4":        "m4a",
	"image/jpeg":       "jpg",
	"image/png":        "png",
	"image/gif":        "gif",
	"image/webp":       "webp",
	"image/bmp":        "bmp",
	"image/tiff":       "tiff",
}

// inferExtensionFromContentType maps an HTTP Content-Type (ignoring
// any ";charset=..." suffix and audio/webm's ambiguity with video/webm,
// both mapped to "webm") to a file extension.
func inferExtensionFromContentType(contentType string) (string, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	if ct == "audio/webm" {
		return "webm", true
	}
	ext, ok := contentTypeExtensions[ct]
	return ext, ok
}
