// Package mssql registers the "mssql" storage backend (go-mssqldb).
package mssql

import (
	"context"
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" driver
	"github.com/microsoft/go-mssqldb/msdsn"

	"vendorport/internal/storage"
	"vendorport/internal/storage/mssql/ddl"
	"vendorport/internal/storage/sqldb"
)

// Kind is the registered backend name.
const Kind = "mssql"

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.DB, error) {
		return Open(ctx, cfg)
	})
}

// ValidateDSN fails fast on obvious DSN mistakes before any dial.
func ValidateDSN(dsn string) error {
	if _, err := msdsn.Parse(dsn); err != nil {
		return fmt.Errorf("mssql dsn: %w", err)
	}
	return nil
}

// Open connects to SQL Server. Driver errors carry SQLErrorNumber, which
// storage.ErrorCode already understands.
func Open(ctx context.Context, cfg storage.Config) (*sqldb.DB, error) {
	if err := ValidateDSN(cfg.DSN); err != nil {
		return nil, err
	}
	return sqldb.Open(ctx, "sqlserver", cfg.DSN, ddl.Dialect{}, cfg.MaxConns)
}
