// Package mysql registers the "mysql" storage backend.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"vendorport/internal/storage"
	"vendorport/internal/storage/mysql/ddl"
	"vendorport/internal/storage/sqldb"
)

// Kind is the registered backend name.
const Kind = "mysql"

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.DB, error) {
		return Open(ctx, cfg)
	})
}

// NormalizeDSN parses dsn and forces the options the registry relies on:
// DATETIME columns scan into time.Time and the connection speaks utf8mb4.
func NormalizeDSN(dsn string) (string, error) {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql dsn: %w", err)
	}
	mc.ParseTime = true
	if mc.Params == nil {
		mc.Params = map[string]string{}
	}
	if _, ok := mc.Params["charset"]; !ok {
		mc.Params["charset"] = "utf8mb4"
	}
	return mc.FormatDSN(), nil
}

// Open connects to MySQL using a normalized cfg.DSN.
func Open(ctx context.Context, cfg storage.Config) (*sqldb.DB, error) {
	dsn, err := NormalizeDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	db, err := sqldb.Open(ctx, "mysql", dsn, ddl.Dialect{}, cfg.MaxConns)
	if err != nil {
		return nil, err
	}
	return db.WithErrorMapper(mapError), nil
}

func mapError(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return &storage.CodedError{Code: strconv.Itoa(int(me.Number)), Err: err}
	}
	return err
}
