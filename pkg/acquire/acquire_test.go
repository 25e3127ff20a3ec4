// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package acquire

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferExtensionFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
		ok   bool
	}{
		{"https://example.com/video.mp4", "mp4", true},
		{"https://example.com/video.mp4?sig=abc", "mp4", true},
		{"https://example.com/path/to/file.MOV", "mov", true},
		{"https://example.com/noext", "", false},
		{"https://example.com/file.toolongext", "", false},
		{"https://example.com/file.m_4", "", false},
	}
	for _, c := range cases {
		got, ok := inferExtensionFromURL(c.url)
		assert.Equal(t, c.ok, ok, c.url)
		if c.ok {
			assert.Equal(t, c.want, got, c.url)
		}
	}
}

func TestInferExtensionFromContentType(t *testing.T) {
	cases := []struct {
		ct   string
		want string
		ok   bool
	}{
		{"video/mp4", "mp4", true},
		{"video/mp4; charset=binary", "mp4", true},
		{"audio/x-wav", "wav", true},
		{"image/webp", "webp", true},
		{"application/octet-stream", "", false},
	}
	for _, c := range cases {
		got, ok := inferExtensionFromContentType(c.ct)
		assert.Equal(t, c.ok, ok, c.ct)
		if c.ok {
			assert.Equal(t, c.want, got, c.ct)
		}
	}
}

func TestAcquireURLDownloadsAndInfersExtension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("fake-mp4-bytes"))
	}))
	defer srv.Close()

	a := New(nil, nil)
	defer a.Close()

	df, err := a.Acquire(context.Background(), srv.URL+"/clip")
	require.NoError(t, err)
	require.NotNil(t, df)
	defer df.Release()

	data, err := os.ReadFile(df.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("fake-mp4-bytes"), data)
	assert.Contains(t, df.Path, ".mp4")
}

func TestAcquireURLRejectsNonHTTPScheme(t *testing.T) {
	a := New(nil, nil)
	_, err := a.Acquire(context.Background(), "ftp://example.com/file")
	require.Error(t, err)
}

func TestAcquireUploadWrapsExistingFile(t *testing.T) {
	path := t.TempDir() + "/already-local.bin"
	require.NoError(t, os.WriteFile(path, []byte("local"), 0o644))

	a := New(nil, nil)
	df, err := a.Acquire(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, df.Path)
	assert.NoError(t, df.Release())
	// Upload sources are not owned; the original file must still exist.
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

type fakeStore struct {
	bucket, key string
	body        []byte
}

func (f *fakeStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	f.bucket, f.key = bucket, key
	return io.NopCloser(bytes.NewReader(f.body)), nil
}

func TestAcquireS3ParsesBucketAndKey(t *testing.T) {
	store := &fakeStore{body: []byte("s3-bytes")}
	a := New(store, nil)
	defer a.Close()

	df, err := a.Acquire(context.Background(), "s3://my-bucket/path/to/object.wav")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", store.bucket)
	assert.Equal(t, "path/to/object.wav", store.key)
	assert.Contains(t, df.Path, ".wav")
}

func TestAcquireS3RejectsMalformedSource(t *testing.T) {
	a := New(&fakeStore{}, nil)
	_, err := a.Acquire(context.Background(), "s3://bucket-only")
	require.Error(t, err)
}

func TestAcquireS3WithoutStoreConfigured(t *testing.T) {
	a := New(nil, nil)
	_, err := a.Acquire(context.Background(), "s3://bucket/key")
	require.Error(t, err)
}
