// Package datasource defines where row sources read their bytes from.
package datasource

import (
	"context"
	"io"
)

// Source opens a fresh reader over the same bytes on every call, so a
// consumer may make several passes.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}
