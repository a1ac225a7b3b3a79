package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	objects map[string]string
	buckets map[string]string
}

func (m *memStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	v, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(strings.NewReader(v)), nil
}

type bucketStore struct {
	memStore
}

func (b *bucketStore) GetFrom(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	v, ok := b.buckets[bucket+"/"+key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(strings.NewReader(v)), nil
}

func TestFetch_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/docs/report.pdf" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	f := New(nil)
	data, name, err := f.Fetch(context.Background(), srv.URL+"/docs/report.pdf?token=secret")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
	assert.Equal(t, "report.pdf", name)

	_, _, err = f.Fetch(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "status 404")
}

func TestFetch_Local(t *testing.T) {
	p := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0o644))

	f := New(nil)
	for _, loc := range []string{p, "file://" + p} {
		data, name, err := f.Fetch(context.Background(), loc)
		require.NoError(t, err, loc)
		assert.Equal(t, "hello", string(data))
		assert.Equal(t, "notes.txt", name)
	}
}

func TestFetch_ObjectStores(t *testing.T) {
	minio := &memStore{objects: map[string]string{"uploads/a.md": "# A"}}
	s3 := &bucketStore{memStore{buckets: map[string]string{"docs/q1/b.md": "# B"}}}
	f := New(nil, WithStore("minio", minio), WithStore("s3", s3))

	data, name, err := f.Fetch(context.Background(), "minio://uploads/a.md")
	require.NoError(t, err)
	assert.Equal(t, "# A", string(data))
	assert.Equal(t, "a.md", name)

	data, _, err = f.Fetch(context.Background(), "s3://docs/q1/b.md")
	require.NoError(t, err)
	assert.Equal(t, "# B", string(data))
}

func TestFetch_Errors(t *testing.T) {
	f := New(nil, WithMaxBytes(4))

	_, _, err := f.Fetch(context.Background(), "gs://bucket/key")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	p := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(p, []byte("too large"), 0o644))
	_, _, err = f.Fetch(context.Background(), p)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, _, err = f.Fetch(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"))
	assert.Error(t, err)
}
