package metadata

import (
	"context"
	"errors"
)

// Source says where metadata is loaded from: a SQL table when Driver is set,
// otherwise the file at Path.
type Source struct {
	Path   string
	Driver string
	DSN    string
	Table  string
}

// Load reads the store described by src.
func Load(ctx context.Context, src Source) (*Store, error) {
	if src.Driver != "" {
		return LoadSQL(ctx, src.Driver, src.DSN, src.Table)
	}
	if src.Path == "" {
		return nil, errors.New("metadata path is required")
	}
	return LoadFile(src.Path)
}
