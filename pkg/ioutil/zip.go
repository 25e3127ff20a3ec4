// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package ioutil implements the extraction core's file-format I/O
// helpers: path-traversal-safe ZIP extraction and image decoding.
//
// The ZIP handling is ported from docling-archive's zip.rs, with one
// deliberate behavior change: the original rejects an entire archive
// the moment any entry is password-protected. klauspost/compress/zip
// surfaces that as a plain Open() error on the individual entry, a
// distinguishable per-entry condition, so here a password-protected or
// otherwise undecodable entry is skipped and recorded, and every other
// entry in the archive still extracts.
package ioutil

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/ingestlabs/extractcore/internal/xerrors"
)

// DefaultMaxFileSize bounds a single extracted entry; larger entries
// are skipped, not aborted into, to avoid a zip bomb exhausting memory.
const DefaultMaxFileSize = 500 * 1024 * 1024

// ExtractedFile is one successfully extracted archive entry.
// Contents is empty for manifest-only entries produced by
// ExtractZipStreaming after its callback has consumed them.
type ExtractedFile struct {
	Name     string
	Size     int64
	Contents []byte
}

// FileInfo is one archive entry's metadata without its contents.
type FileInfo struct {
	Name           string
	Size           int64
	CompressedSize int64
	IsEncrypted    bool
}

// SkippedEntry records why one archive entry was not extracted.
type SkippedEntry struct {
	Name   string
	Reason error
}

// ExtractConfig tunes extraction limits.
type ExtractConfig struct {
	MaxFileSize int64
}

// DefaultExtractConfig returns DefaultMaxFileSize as the per-entry cap.
func DefaultExtractConfig() ExtractConfig {
	return ExtractConfig{MaxFileSize: DefaultMaxFileSize}
}

// ExtractResult is the outcome of one archive walk.
type ExtractResult struct {
	Files   []ExtractedFile
	Skipped []SkippedEntry
}

// StreamCallback receives one extracted file at a time so a caller
// can persist or forward it without holding the whole archive in
// memory at once.
type StreamCallback func(ExtractedFile) error

// ExtractZip extracts every safe, within-limit, decodable entry of the
// archive at r into memory.
func ExtractZip(r io.ReaderAt, size int64, cfg ExtractConfig) (*ExtractResult, error) {
	return walkZip(r, size, cfg, nil)
}

// ExtractZipStreaming extracts the archive at r, handing each decoded
// entry to cb instead of accumulating its contents; the returned
// Files carry only name and size.
func ExtractZipStreaming(r io.ReaderAt, size int64, cfg ExtractConfig, cb StreamCallback) (*ExtractResult, error) {
	return walkZip(r, size, cfg, cb)
}

// ListZipContents returns metadata for every entry without reading
// any entry's contents.
func ListZipContents(r io.ReaderAt, size int64) ([]FileInfo, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, xerrors.NewDecodeFailed(fmt.Errorf("opening zip: %w", err))
	}

	out := make([]FileInfo, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		sanitized, ok := sanitizePath(f.Name)
		if !ok {
			continue
		}
		out = append(out, FileInfo{
			Name:           sanitized,
			Size:           int64(f.UncompressedSize64),
			CompressedSize: int64(f.CompressedSize64),
			// Bit 0 of the general-purpose flag word is the
			// encryption bit per the zip spec; this is not specific
			// to klauspost/compress's API.
			IsEncrypted: f.Flags&0x1 != 0,
		})
	}
	return out, nil
}

func walkZip(r io.ReaderAt, size int64, cfg ExtractConfig, onFile StreamCallback) (*ExtractResult, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, xerrors.NewDecodeFailed(fmt.Errorf("opening zip: %w", err))
	}

	result := &ExtractResult{}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		sanitized, ok := sanitizePath(f.Name)
		if !ok {
			result.Skipped = append(result.Skipped, SkippedEntry{
				Name: f.Name, Reason: xerrors.NewInputInvalid(fmt.Errorf("unsafe path %q", f.Name)),
			})
			continue
		}

		if cfg.MaxFileSize > 0 && int64(f.UncompressedSize64) > cfg.MaxFileSize {
			result.Skipped = append(result.Skipped, SkippedEntry{
				Name: sanitized, Reason: xerrors.NewInputInvalid(fmt.Errorf("entry %q exceeds max size %d", sanitized, cfg.MaxFileSize)),
			})
			continue
		}

		rc, err := f.Open()
		if err != nil {
			// Covers password-protected entries: per-entry skip, not a
			// whole-archive abort.
			result.Skipped = append(result.Skipped, SkippedEntry{Name: sanitized, Reason: xerrors.NewDecodeFailed(err)})
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedEntry{Name: sanitized, Reason: xerrors.NewDecodeFailed(err)})
			continue
		}

		ef := ExtractedFile{Name: sanitized, Size: int64(len(data)), Contents: data}
		if onFile != nil {
			if err := onFile(ef); err != nil {
				return result, xerrors.NewIOFailed(fmt.Errorf("callback for %q: %w", sanitized, err))
			}
			result.Files = append(result.Files, ExtractedFile{Name: ef.Name, Size: ef.Size})
			continue
		}
		result.Files = append(result.Files, ef)
	}
	return result, nil
}

// sanitizePath rejects absolute paths, Windows drive letters, and any
// ".." component, keeping only the normal path segments. It returns
// ok=false for a path that sanitizes to nothing. Ported from
// sanitize_path in zip.rs.
func sanitizePath(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	if path.IsAbs(name) {
		return "", false
	}
	if len(name) >= 2 && name[1] == ':' {
		return "", false
	}

	var kept []string
	for _, part := range strings.Split(name, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", false
		default:
			kept = append(kept, part)
		}
	}
	if len(kept) == 0 {
		return "", false
	}
	return strings.Join(kept, "/"), true
}
