package storage

import "fmt"

// NewStore builds a backend by kind. The dsn is interpreted per backend: a
// file path for sqlite, a connection URL for redis and postgres, ignored for
// memory. Connections are established by Init, not here.
func NewStore(kind, dsn string) (Store, error) {
	switch kind {
	case "", DefaultStoreKind:
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(dsn)
	case "redis":
		return NewRedisStore(dsn), nil
	case "postgres":
		return NewPostgresStore(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}
