// Command vendorport imports vendor part files into per-run tables.
//
// Usage:
//
//	vendorport bootstrap
//	vendorport vendor add --name "Acme"
//	vendorport headers parts.csv
//	vendorport preview parts.csv --mapping '{"590":0,"Price":3}'
//	vendorport ingest parts.csv more.xlsx --mapping @mapping.json --vendor 2 --parallel 2
//	vendorport imports
//	vendorport delete imported_data_2024_01_02_030405
//	vendorport normalize "8060: Radiator"
//	vendorport serve
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	// register all backends with the storage factory.
	_ "vendorport/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
