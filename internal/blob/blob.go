// Package blob stores uploaded product images and serves them back by key.
package blob

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

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("blob not found")
	ErrEmpty           = errors.New("empty upload")
	ErrUnsupportedType = errors.New("unsupported content type")
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Object describes a stored blob.
type Object struct {
	Key         string    `db:"key" json:"key"`
	URL         string    `db:"-" json:"url"`
	ContentType string    `db:"content_type" json:"contentType"`
	Size        int64     `db:"size" json:"size"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Store persists image bytes.
type Store interface {
	Upload(ctx context.Context, data []byte, contentType string) (*Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, *Object, error)
}

// DetectImageType sniffs data and returns an accepted image content type.
// The declared type is only used when sniffing is inconclusive.
func DetectImageType(data []byte, declared string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	sniffed := http.DetectContentType(data)
	if _, ok := allowedTypes[sniffed]; ok {
		return sniffed, nil
	}
	declared = strings.ToLower(strings.TrimSpace(strings.Split(declared, ";")[0]))
	if _, ok := allowedTypes[declared]; ok && sniffed == "application/octet-stream" {
		return declared, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, sniffed)
}

func newKey(contentType string) string {
	return uuid.New().String() + allowedTypes[contentType]
}

func publicURL(baseURL, key string) string {
	return strings.TrimRight(baseURL, "/") + "/" + key
}

type memoryBlob struct {
	obj  Object
	data []byte
}

// Memory keeps blobs in process memory.
type Memory struct {
	mu      sync.RWMutex
	baseURL string
	blobs   map[string]memoryBlob
}

func NewMemory(baseURL string) *Memory {
	return &Memory{baseURL: baseURL, blobs: make(map[string]memoryBlob)}
}

func (m *Memory) Upload(_ context.Context, data []byte, contentType string) (*Object, error) {
	ct, err := DetectImageType(data, contentType)
	if err != nil {
		return nil, err
	}
	key := newKey(ct)
	obj := Object{
		Key:         key,
		URL:         publicURL(m.baseURL, key),
		ContentType: ct,
		Size:        int64(len(data)),
		CreatedAt:   time.Now().UTC(),
	}

	m.mu.Lock()
	m.blobs[key] = memoryBlob{obj: obj, data: append([]byte(nil), data...)}
	m.mu.Unlock()

	return &obj, nil
}

func (m *Memory) Open(_ context.Context, key string) (io.ReadCloser, *Object, error) {
	m.mu.RLock()
	b, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNotFound
	}
	obj := b.obj
	return io.NopCloser(bytes.NewReader(b.data)), &obj, nil
}
