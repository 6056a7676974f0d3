package flowboard

import (
	"strings"
	"sync"
)

type BlobStoreFactory func(dsn string) (BlobStore, error)

var backendFactoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]BlobStoreFactory
}{
	factories: map[string]BlobStoreFactory{},
}

// RegisterBlobStoreFactory lets embedders plug additional storage
// backends in by DSN scheme before the store is built.
func RegisterBlobStoreFactory(scheme string, factory BlobStoreFactory) {
	scheme = normalizeBackendScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	backendFactoryRegistry.mu.Lock()
	defer backendFactoryRegistry.mu.Unlock()
	backendFactoryRegistry.factories[scheme] = factory
}

func lookupBlobStoreFactory(scheme string) (BlobStoreFactory, bool) {
	scheme = normalizeBackendScheme(scheme)
	backendFactoryRegistry.mu.RLock()
	defer backendFactoryRegistry.mu.RUnlock()
	factory, ok := backendFactoryRegistry.factories[scheme]
	return factory, ok
}

func normalizeBackendScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}
