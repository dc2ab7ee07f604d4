package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler, cfg Config) *Store {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, cfg)
	require.NoError(t, err)
	return store
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestWriteFileUploadsObject(t *testing.T) {
	t.Parallel()

	const bucket = "course-archive"
	data := []byte("%PDF-1.7 test")
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, fmt.Sprintf("/upload/storage/v1/b/%s/o", bucket))
		assert.Equal(t, "runs/Archive/1 - Intro.pdf", r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), string(data))
		assert.Contains(t, string(body), "application/pdf")
		fmt.Fprintln(w, `{"name": "runs/Archive/1 - Intro.pdf"}`)
	})

	store := newTestStore(t, handler, Config{Bucket: bucket, Prefix: "/runs/"})
	require.NoError(t, store.EnsureDir(context.Background(), "Archive"))
	require.NoError(t, store.WriteFile(context.Background(), "Archive/1 - Intro.pdf", data))
}

func TestWriteFileServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	store := newTestStore(t, handler, Config{Bucket: "b"})
	require.Error(t, store.WriteFile(context.Background(), "Archive/2 - x.png", []byte("png")))
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	store := &Store{bucket: "b"}
	assert.Equal(t, "Archive/1 - Intro.pdf", store.ObjectName("./Archive/1 - Intro.pdf"))
	assert.Equal(t, "abs/x.png", store.ObjectName("/abs/x.png"))
	assert.Equal(t, "", store.ObjectName("."))
	assert.Equal(t, "gs://b/Archive/x.pdf", store.URI("Archive/x.pdf"))

	prefixed := &Store{bucket: "b", prefix: "runs"}
	assert.Equal(t, "runs/Archive/x.pdf", prefixed.ObjectName("Archive/x.pdf"))
	require.Error(t, prefixed.WriteFile(context.Background(), "", nil))
}
