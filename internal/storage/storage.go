package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrObjectNotFound is returned by backends when a key does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrUnsupportedImage is returned for uploads that are not jpeg, png or webp.
	ErrUnsupportedImage = errors.New("only jpg, jpeg, png and webp images are allowed")
)

// DefaultReferenceBase is where the API serves stored images itself.
const DefaultReferenceBase = "/api/images"

var imageContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Upload is one file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ImageContentType returns the canonical content type for an image file name.
func ImageContentType(filename string) (string, bool) {
	ct, ok := imageContentTypes[strings.ToLower(path.Ext(filename))]
	return ct, ok
}

// ValidateImages rejects any upload that is not an accepted image type.
func ValidateImages(uploads []Upload) error {
	for _, u := range uploads {
		if _, ok := ImageContentType(u.Filename); !ok {
			return fmt.Errorf("%s: %w", u.Filename, ErrUnsupportedImage)
		}
	}
	return nil
}

// Storage turns uploads into stable image references on top of a backend.
type Storage struct {
	backend ObjectStorage
	base    string
}

// NewStorage constructs a Storage for the backend. References are built by
// prefixing object keys with referenceBase, or DefaultReferenceBase when empty.
func NewStorage(backend ObjectStorage, referenceBase string) *Storage {
	base := strings.TrimRight(strings.TrimSpace(referenceBase), "/")
	if base == "" {
		base = DefaultReferenceBase
	}
	return &Storage{backend: backend, base: base}
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// Upload stores every file under prefix and returns their references in
// order. If any file fails, the ones already stored are removed again.
func (s *Storage) Upload(ctx context.Context, prefix string, uploads []Upload) ([]string, error) {
	if err := ValidateImages(uploads); err != nil {
		return nil, err
	}

	refs := make([]string, 0, len(uploads))
	for _, u := range uploads {
		contentType, _ := ImageContentType(u.Filename)
		key := path.Join(prefix, uuid.NewString()+strings.ToLower(path.Ext(u.Filename)))
		if err := s.backend.Put(ctx, key, u.Body, u.Size, contentType); err != nil {
			_ = s.Remove(ctx, refs)
			return nil, fmt.Errorf("store %s: %w", u.Filename, err)
		}
		refs = append(refs, s.Reference(key))
	}
	return refs, nil
}

// Reference returns the client-facing reference for an object key.
func (s *Storage) Reference(key string) string {
	return s.base + "/" + key
}

// KeyFromReference extracts the object key from a reference produced by this
// Storage. References pointing elsewhere report false.
func (s *Storage) KeyFromReference(ref string) (string, bool) {
	key, ok := strings.CutPrefix(ref, s.base+"/")
	if !ok || key == "" || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}

// Open streams a stored object.
func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, key)
}

// Remove deletes the objects behind refs. Foreign references are skipped.
func (s *Storage) Remove(ctx context.Context, refs []string) error {
	var errs []error
	for _, ref := range refs {
		key, ok := s.KeyFromReference(ref)
		if !ok {
			continue
		}
		if err := s.backend.Delete(ctx, key); err != nil && !errors.Is(err, ErrObjectNotFound) {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
