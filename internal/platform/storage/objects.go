// Package storage reads uploaded crop sources and writes rendered rasters.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	gcs "cloud.google.com/go/storage"
)

var (
	// ErrObjectNotFound is returned when the bucket or object does not exist.
	ErrObjectNotFound = errors.New("storage: object not found")
	// ErrObjectTooLarge is returned when an object exceeds the read limit.
	ErrObjectTooLarge = errors.New("storage: object exceeds size limit")
)

const renderURLExpiry = 15 * time.Minute

// ObjectInfo is what the render pipeline needs about a stored object.
type ObjectInfo struct {
	Bucket      string
	Name        string
	ContentType string
	Size        int64
}

// GCSObjects implements object IO on Cloud Storage.
type GCSObjects struct {
	client *gcs.Client
	now    func() time.Time
}

func NewGCSObjects(client *gcs.Client) (*GCSObjects, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	return &GCSObjects{client: client, now: time.Now}, nil
}

// Read returns the object body, refusing objects larger than maxBytes.
func (o *GCSObjects) Read(ctx context.Context, bucket, name string, maxBytes int64) ([]byte, ObjectInfo, error) {
	reader, err := o.client.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
			return nil, ObjectInfo{}, fmt.Errorf("%w: gs://%s/%s", ErrObjectNotFound, bucket, name)
		}
		return nil, ObjectInfo{}, fmt.Errorf("storage: open gs://%s/%s: %w", bucket, name, err)
	}
	defer reader.Close()

	info := ObjectInfo{Bucket: bucket, Name: name, ContentType: reader.Attrs.ContentType, Size: reader.Attrs.Size}
	if maxBytes > 0 && info.Size > maxBytes {
		return nil, info, fmt.Errorf("%w: %d > %d bytes", ErrObjectTooLarge, info.Size, maxBytes)
	}
	data, err := readLimited(reader, maxBytes)
	if err != nil {
		return nil, info, fmt.Errorf("storage: read gs://%s/%s: %w", bucket, name, err)
	}
	return data, info, nil
}

// Write stores data, replacing any existing object of the same name.
func (o *GCSObjects) Write(ctx context.Context, bucket, name, contentType string, data []byte, metadata map[string]string) (ObjectInfo, error) {
	w := o.client.Bucket(bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata
	w.CacheControl = "private, max-age=0"
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return ObjectInfo{}, fmt.Errorf("storage: write gs://%s/%s: %w", bucket, name, err)
	}
	if err := w.Close(); err != nil {
		return ObjectInfo{}, fmt.Errorf("storage: finalize gs://%s/%s: %w", bucket, name, err)
	}
	return ObjectInfo{Bucket: bucket, Name: name, ContentType: contentType, Size: int64(len(data))}, nil
}

// SignedURL returns a short-lived V4 GET URL for a rendered object. The
// client's service account credentials sign it.
func (o *GCSObjects) SignedURL(_ context.Context, bucket, name string) (string, error) {
	url, err := o.client.Bucket(bucket).SignedURL(name, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: o.now().Add(renderURLExpiry),
	})
	if err != nil {
		return "", fmt.Errorf("storage: sign gs://%s/%s: %w", bucket, name, err)
	}
	return url, nil
}

// MemoryObjects keeps objects in process. It backs local runs without
// Cloud Storage and tests.
type MemoryObjects struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

func NewMemoryObjects() *MemoryObjects {
	return &MemoryObjects{objects: map[string]memoryObject{}}
}

func (m *MemoryObjects) Read(_ context.Context, bucket, name string, maxBytes int64) ([]byte, ObjectInfo, error) {
	m.mu.RLock()
	obj, ok := m.objects[bucket+"/"+name]
	m.mu.RUnlock()
	if !ok {
		return nil, ObjectInfo{}, fmt.Errorf("%w: gs://%s/%s", ErrObjectNotFound, bucket, name)
	}
	info := ObjectInfo{Bucket: bucket, Name: name, ContentType: obj.contentType, Size: int64(len(obj.data))}
	if maxBytes > 0 && info.Size > maxBytes {
		return nil, info, fmt.Errorf("%w: %d > %d bytes", ErrObjectTooLarge, info.Size, maxBytes)
	}
	return append([]byte(nil), obj.data...), info, nil
}

func (m *MemoryObjects) Write(_ context.Context, bucket, name, contentType string, data []byte, metadata map[string]string) (ObjectInfo, error) {
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	m.mu.Lock()
	m.objects[bucket+"/"+name] = memoryObject{data: append([]byte(nil), data...), contentType: contentType, metadata: meta}
	m.mu.Unlock()
	return ObjectInfo{Bucket: bucket, Name: name, ContentType: contentType, Size: int64(len(data))}, nil
}

// SignedURL returns a mem:// locator; nothing is actually signed.
func (m *MemoryObjects) SignedURL(_ context.Context, bucket, name string) (string, error) {
	return "mem://" + bucket + "/" + strings.TrimPrefix(name, "/"), nil
}

// Metadata returns the custom metadata stored with an object.
func (m *MemoryObjects) Metadata(bucket, name string) (map[string]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[bucket+"/"+name]
	return obj.metadata, ok
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrObjectTooLarge
	}
	return data, nil
}
