package flowboard

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildBlobStoreFromDSN resolves a storage DSN to a blob store. A bare
// path or file:// DSN selects the per-document JSON file store;
// memory:// keeps everything in process; postgres:// and sqlite:// use
// their database backends. Registered factories win over the built-ins.
func BuildBlobStoreFromDSN(dsn string) (BlobStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if factory, ok := lookupBlobStoreFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "", "file":
		dir, dirErr := dsnPath(parsed, dsn)
		if dirErr != nil {
			return nil, dirErr
		}
		return NewJSONFileBlobStore(dir), nil
	case "memory", "mem", "inmem":
		return NewInMemoryBlobStore(), nil
	case "postgres", "postgresql":
		return NewPostgresBlobStore(dsn)
	case "sqlite":
		return NewSQLiteBlobStore(strings.TrimPrefix(dsn, "sqlite://"))
	case "mysql":
		return nil, fmt.Errorf("%w: blob store %s", ErrNotImplemented, scheme)
	default:
		return nil, fmt.Errorf("unsupported blob store scheme: %s", scheme)
	}
}

func dsnPath(parsed *url.URL, dsn string) (string, error) {
	if parsed.Scheme == "" {
		return dsn, nil
	}
	path := parsed.Path
	if parsed.Host != "" {
		path = parsed.Host + path
	}
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty file path in dsn %q", ErrInvalidInput, dsn)
	}
	return path, nil
}
