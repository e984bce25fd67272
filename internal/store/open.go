package store

import (
	"context"
	"fmt"
)

// OpenDriver opens a Store by driver name: "memory", "sqlite" or "postgres".
func OpenDriver(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		return Open(dsn)
	case "postgres":
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q (want memory, sqlite or postgres)", driver)
	}
}
