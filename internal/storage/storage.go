// Package storage keeps uploaded chat media in a named bucket on an afero
// filesystem and hands out public links for the gateway to fetch.
//
// Objects are addressed by slash-separated paths relative to the bucket root.
// The default backing store is the local disk under STORAGE_ROOT; tests use an
// in-memory filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/tbourn/pst-admin-backend/internal/config"
)

var (
	// ErrExists is returned by Upload when the object is present and Upsert is off.
	ErrExists = errors.New("storage: object already exists")

	// ErrInvalidPath is returned for empty or escaping object paths.
	ErrInvalidPath = errors.New("storage: invalid object path")

	// ErrNoPublicURL is returned by PublicURL when no public prefix is configured.
	ErrNoPublicURL = errors.New("storage: public URL not configured")
)

// UploadOptions controls how Upload writes an object.
type UploadOptions struct {
	// Upsert overwrites an existing object instead of failing with ErrExists.
	Upsert bool
}

// Bucket is a flat namespace of objects rooted at <root>/<name>.
type Bucket struct {
	fs        afero.Fs
	name      string
	publicURL string
}

// New scopes fs to the bucket directory and returns the bucket.
func New(fs afero.Fs, name, publicURL string) (*Bucket, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	if err := fs.MkdirAll(name, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create bucket %q: %w", name, err)
	}
	return &Bucket{
		fs:        afero.NewBasePathFs(fs, name),
		name:      name,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// NewOS opens the configured bucket on the local disk.
func NewOS(cfg config.StorageConfig) (*Bucket, error) {
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), cfg.Root), cfg.Bucket, cfg.PublicURL)
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// Upload writes r to objectPath.
func (b *Bucket) Upload(ctx context.Context, objectPath string, r io.Reader, opts UploadOptions) error {
	p, err := cleanPath(objectPath)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !opts.Upsert {
		ok, err := afero.Exists(b.fs, p)
		if err != nil {
			return err
		}
		if ok {
			return ErrExists
		}
	}
	if err := b.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return err
	}
	return afero.WriteReader(b.fs, p, r)
}

// Open returns a reader for the object.
func (b *Bucket) Open(objectPath string) (afero.File, error) {
	p, err := cleanPath(objectPath)
	if err != nil {
		return nil, err
	}
	return b.fs.Open(p)
}

// Exists reports whether the object is present.
func (b *Bucket) Exists(objectPath string) (bool, error) {
	p, err := cleanPath(objectPath)
	if err != nil {
		return false, err
	}
	return afero.Exists(b.fs, p)
}

// Remove deletes the given objects. Missing objects are ignored.
func (b *Bucket) Remove(ctx context.Context, objectPaths ...string) error {
	var errs []error
	for _, op := range objectPaths {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := cleanPath(op)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := b.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublicURL returns the link under which the object is served.
func (b *Bucket) PublicURL(objectPath string) (string, error) {
	if b.publicURL == "" {
		return "", ErrNoPublicURL
	}
	p, err := cleanPath(objectPath)
	if err != nil {
		return "", err
	}
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return b.publicURL + "/" + url.PathEscape(b.name) + "/" + strings.Join(segs, "/"), nil
}

// HTTPFileSystem exposes the bucket for a static file route.
func (b *Bucket) HTTPFileSystem() http.FileSystem {
	return afero.NewHttpFs(b.fs).Dir("/")
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeFilename replaces anything outside [a-zA-Z0-9._-] with "_".
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		name = ""
	}
	out := unsafeName.ReplaceAllString(name, "_")
	if out == "" {
		return "file"
	}
	return out
}

// ObjectPath builds the path for a chat image uploaded by authUID:
// <authUID>/img_<unix-millis>_<sanitized filename>.
func ObjectPath(authUID, filename string, now time.Time) string {
	return fmt.Sprintf("%s/img_%d_%s", authUID, now.UnixMilli(), SanitizeFilename(filename))
}

func cleanPath(p string) (string, error) {
	p = strings.TrimPrefix(path.Clean("/"+strings.TrimSpace(p)), "/")
	if p == "" || p == "." {
		return "", ErrInvalidPath
	}
	return p, nil
}
