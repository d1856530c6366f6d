package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/elijahthis/crawl-accessory/internal/metrics"
)

var ErrNotConfigured = errors.New("feed: not configured")

// Storage persists a finished feed file.
type Storage interface {
	Store(ctx context.Context, r io.ReadSeeker) error
}

// Credentials configure one object storage scheme. Keys embedded in the feed
// URI take precedence over these.
type Credentials struct {
	AccessKey string
	SecretKey string
	Endpoint  string
	Region    string
	PathStyle bool
}

// Target is a parsed feed URI of the form scheme://[key:secret@]bucket/path.
type Target struct {
	Scheme    string
	Bucket    string
	Key       string
	AccessKey string
	SecretKey string
}

func ParseTarget(uri string) (Target, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Target{}, fmt.Errorf("%w: parse feed uri: %v", ErrNotConfigured, err)
	}

	t := Target{
		Scheme: u.Scheme,
		Bucket: u.Hostname(),
		Key:    strings.TrimPrefix(u.Path, "/"),
	}
	if u.User != nil {
		t.AccessKey = u.User.Username()
		t.SecretKey, _ = u.User.Password()
	}
	return t, nil
}

// ExpandURI fills the %(time)s placeholder.
func ExpandURI(uri string, now time.Time) string {
	return strings.ReplaceAll(uri, "%(time)s", now.UTC().Format("2006-01-02T15-04-05"))
}

// NewStorage picks the backend from the URI scheme.
func NewStorage(ctx context.Context, uri string, creds map[string]Credentials, m *metrics.PrometheusMetrics) (Storage, error) {
	target, err := ParseTarget(uri)
	if err != nil {
		return nil, err
	}

	switch target.Scheme {
	case SchemeOBS, SchemeOSS, SchemeS3:
		return NewObjectStorage(ctx, target, creds[target.Scheme], m)
	case "file", "":
		return NewFileStorage(uri)
	default:
		return nil, fmt.Errorf("%w: unsupported feed scheme %q", ErrNotConfigured, target.Scheme)
	}
}

// FileStorage copies the feed to a local path.
type FileStorage struct {
	path string
}

func NewFileStorage(uri string) (*FileStorage, error) {
	path := strings.TrimPrefix(uri, "file://")
	if path == "" {
		return nil, fmt.Errorf("%w: empty feed path", ErrNotConfigured)
	}
	return &FileStorage{path: path}, nil
}

func (s *FileStorage) Store(ctx context.Context, r io.ReadSeeker) error {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	f, err := os.Create(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return err
	}
	return f.Sync()
}
