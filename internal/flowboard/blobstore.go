package flowboard

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// BlobStore is the persistence primitive: named JSON documents, each read
// and written whole. Implementations must tolerate concurrent callers.
type BlobStore interface {
	Get(name string) ([]byte, error)
	Put(name string, data []byte) error
	Exists(name string) bool
}

type blobStoreCloser interface {
	Close() error
}

// JSONFileBlobStore keeps one <name>.json file per document under Dir.
type JSONFileBlobStore struct {
	Dir string
}

func NewJSONFileBlobStore(dir string) *JSONFileBlobStore {
	return &JSONFileBlobStore{Dir: strings.TrimSpace(dir)}
}

func (b *JSONFileBlobStore) path(name string) string {
	return filepath.Join(b.Dir, name+".json")
}

func (b *JSONFileBlobStore) Get(name string) ([]byte, error) {
	if b == nil || b.Dir == "" {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(b.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (b *JSONFileBlobStore) Put(name string, data []byte) error {
	if b == nil || b.Dir == "" {
		return ErrInvalidInput
	}
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return err
	}
	tmp := b.path(name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, b.path(name))
}

func (b *JSONFileBlobStore) Exists(name string) bool {
	if b == nil || b.Dir == "" {
		return false
	}
	_, err := os.Stat(b.path(name))
	return err == nil
}

// InMemoryBlobStore backs tests and the memory:// profile.
type InMemoryBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{blobs: map[string][]byte{}}
}

func (b *InMemoryBlobStore) Get(name string) ([]byte, error) {
	if b == nil {
		return nil, ErrNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[name]
	if !ok {
		return nil, ErrNotFound
	}
	clone := make([]byte, len(data))
	copy(clone, data)
	return clone, nil
}

func (b *InMemoryBlobStore) Put(name string, data []byte) error {
	if b == nil {
		return ErrInvalidInput
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	clone := make([]byte, len(data))
	copy(clone, data)
	b.blobs[name] = clone
	return nil
}

func (b *InMemoryBlobStore) Exists(name string) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blobs[name]
	return ok
}
