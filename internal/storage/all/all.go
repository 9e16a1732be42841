// Package all wires every built-in storage backend into the storage factory.
//
// Importing it (as a blank import) runs the init functions of each concrete
// backend, making the kinds "postgres", "mysql", "sqlite" and "mssql"
// available to storage.New.
package all

import (
	_ "vendorport/internal/storage/mssql"
	_ "vendorport/internal/storage/mysql"
	_ "vendorport/internal/storage/postgres"
	_ "vendorport/internal/storage/sqlite"
)
