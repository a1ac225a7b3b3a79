// Package fetch retrieves document bytes from HTTP, object storage or the
// local filesystem.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/feichai0017/document-chunker/pkg/logger"
)

// DefaultMaxBytes caps a single fetched document.
const DefaultMaxBytes = 100 << 20

// ErrTooLarge is returned when a source exceeds the size limit.
var ErrTooLarge = errors.New("source exceeds size limit")

// ErrUnsupportedScheme is returned for locations no backend serves.
var ErrUnsupportedScheme = errors.New("unsupported source scheme")

// ObjectStore reads objects by key from its configured bucket.
type ObjectStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// BucketStore can also read from a bucket named in the location.
type BucketStore interface {
	ObjectStore
	GetFrom(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

type Fetcher struct {
	client   *http.Client
	stores   map[string]ObjectStore
	maxBytes int64
	logger   logger.Logger
}

type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithStore serves locations of the given scheme ("s3", "minio") from s.
func WithStore(scheme string, s ObjectStore) Option {
	return func(f *Fetcher) { f.stores[strings.ToLower(scheme)] = s }
}

func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

func New(log logger.Logger, opts ...Option) *Fetcher {
	if log == nil {
		log = logger.NewNop()
	}
	f := &Fetcher{
		client:   &http.Client{Timeout: 2 * time.Minute},
		stores:   make(map[string]ObjectStore),
		maxBytes: DefaultMaxBytes,
		logger:   log.Named("fetch"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch reads the whole source at location and returns it with the base
// name of the location. Supported forms are http(s)://host/path,
// s3://bucket/key, minio://key, file:///path and plain local paths.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, string, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain paths, including Windows drive letters.
		return f.local(location)
	}

	start := time.Now()
	var (
		data []byte
		name = path.Base(u.Path)
	)
	switch scheme := strings.ToLower(u.Scheme); scheme {
	case "http", "https":
		data, err = f.http(ctx, u.String())
	case "file":
		return f.local(u.Path)
	default:
		store, ok := f.stores[scheme]
		if !ok {
			return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
		}
		data, err = f.object(ctx, store, u)
	}
	if err != nil {
		f.logger.Error("Failed to fetch source",
			logger.String("location", redact(u)),
			logger.Error(err),
		)
		return nil, "", err
	}

	f.logger.Debug("Fetched source",
		logger.String("location", redact(u)),
		logger.Int("bytes", len(data)),
		logger.Duration("took", time.Since(start)),
	)
	return data, name, nil
}

func (f *Fetcher) http(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}
	return f.readAll(resp.Body)
}

func (f *Fetcher) object(ctx context.Context, store ObjectStore, u *url.URL) ([]byte, error) {
	key := strings.TrimPrefix(u.Path, "/")
	var (
		body io.ReadCloser
		err  error
	)
	if bs, ok := store.(BucketStore); ok && u.Host != "" && key != "" {
		body, err = bs.GetFrom(ctx, u.Host, key)
	} else {
		// minio://key puts the key in the host part.
		body, err = store.Get(ctx, strings.TrimPrefix(u.Host+"/"+key, "/"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer body.Close()
	return f.readAll(body)
}

func (f *Fetcher) local(p string) ([]byte, string, error) {
	file, err := os.Open(p)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", p, err)
	}
	defer file.Close()

	data, err := f.readAll(file)
	if err != nil {
		return nil, "", err
	}
	return data, filepath.Base(p), nil
}

func (f *Fetcher) readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w of %d bytes", ErrTooLarge, f.maxBytes)
	}
	return data, nil
}

func redact(u *url.URL) string {
	c := *u
	c.User = nil
	c.RawQuery = ""
	return c.String()
}
