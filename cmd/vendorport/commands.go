package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vendorport/internal/datasource/file"
	"vendorport/internal/extract"
	"vendorport/internal/ingest"
	"vendorport/internal/mapping"
	"vendorport/internal/metrics"
	"vendorport/internal/parser"
	"vendorport/internal/registry"
	"vendorport/internal/webui"
)

func newBootstrapCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the vendors and import_history tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.registry(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registry tables ready (%s)\n", a.cfg.Storage.Kind)
			return nil
		},
	}
}

func newVendorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vendor",
		Short: "Manage vendors",
	}

	var v registry.Vendor
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a vendor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := a.registry(cmd.Context())
			if err != nil {
				return err
			}
			created, err := reg.CreateVendor(cmd.Context(), v)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "vendor %d created: %s\n", created.ID, created.Name)
			return nil
		},
	}
	add.Flags().StringVar(&v.Name, "name", "", "vendor name (required)")
	add.Flags().StringVar(&v.ContactPerson, "contact", "", "contact person")
	add.Flags().StringVar(&v.Email, "email", "", "email address")
	add.Flags().StringVar(&v.Phone, "phone", "", "phone number")
	add.Flags().StringVar(&v.Address, "address", "", "postal address")
	_ = add.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List vendors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := a.registry(cmd.Context())
			if err != nil {
				return err
			}
			vs, err := reg.ListVendors(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCONTACT\tEMAIL\tCREATED")
			for _, v := range vs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", v.ID, v.Name, v.ContactPerson, v.Email, v.CreatedAt.Format(time.DateTime))
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func newHeadersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "headers FILE",
		Short: "Print the header row with column indexes, for building a mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tab := parser.Open(file.NewLocal(args[0]), args[0], a.parserOptions())
			hdr, err := tab.Headers(cmd.Context())
			if err != nil {
				return err
			}
			for i, h := range hdr {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i, h)
			}
			return nil
		},
	}
}

// readMapping accepts inline JSON or @path.
func readMapping(v string) (mapping.FieldMapping, error) {
	raw := []byte(v)
	if strings.HasPrefix(v, "@") {
		b, err := os.ReadFile(v[1:])
		if err != nil {
			return nil, fmt.Errorf("read mapping: %w", err)
		}
		raw = b
	}
	return mapping.Parse(raw)
}

func newPreviewCmd(a *app) *cobra.Command {
	var (
		rawMapping string
		bypass     bool
		rows       int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Show the first rows as they would be stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := readMapping(rawMapping)
			if err != nil {
				return err
			}
			tab := parser.Open(file.NewLocal(args[0]), args[0], a.parserOptions())
			head, err := tab.Head(cmd.Context(), rows)
			if err != nil {
				return err
			}
			recs := mapping.Preview(head, m, bypass, rows)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			if len(recs) == 0 {
				return nil
			}
			// Every record of one mapping carries the same fields.
			keys := recs[0].Keys()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, strings.Join(keys, "\t"))
			for _, rec := range recs {
				vals := make([]string, len(keys))
				for i, k := range keys {
					vals[i], _ = rec.Get(k)
				}
				fmt.Fprintln(tw, strings.Join(vals, "\t"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&rawMapping, "mapping", "", `field mapping as JSON ({"590":0,"Price":3}) or @file (required)`)
	cmd.Flags().BoolVar(&bypass, "bypass", false, "store the identifier verbatim")
	cmd.Flags().IntVar(&rows, "rows", mapping.DefaultPreviewRows, "rows to preview")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("mapping")
	return cmd
}

// progressPrinter writes one line per event; safe for concurrent runs.
type progressPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *progressPrinter) forFile(name string) ingest.Emitter {
	return ingest.EmitterFunc(func(_ context.Context, ev ingest.Event) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		switch {
		case ev.Error != "":
			_, err := fmt.Fprintf(p.w, "%s: failed after %d/%d rows: %s\n", name, ev.Processed, ev.Total, ev.Error)
			return err
		case ev.Complete:
			_, err := fmt.Fprintf(p.w, "%s: done, %d/%d rows stored in %s\n", name, ev.Processed, ev.Total, ev.Table)
			return err
		default:
			_, err := fmt.Fprintf(p.w, "%s: %3d%% (%d/%d)\n", name, ev.Progress, ev.Processed, ev.Total)
			return err
		}
	})
}

func newIngestCmd(a *app) *cobra.Command {
	var (
		rawMapping string
		vendorID   int64
		bypass     bool
		parallel   int
		total      int
		remove     bool
	)
	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Load files into new tables, one table per file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := readMapping(rawMapping)
			if err != nil {
				return err
			}
			if total > 0 && len(args) > 1 {
				return fmt.Errorf("--total applies to a single file")
			}
			if parallel <= 0 {
				parallel = a.cfg.Ingest.Parallel
			}
			// Table names have second precision; several files in one
			// invocation would otherwise land in the same table.
			if len(args) > 1 && !a.cfg.Ingest.UniqueSuffix {
				a.cfg.Ingest.UniqueSuffix = true
				a.log.Info("unique table suffix enabled for a multi-file run", zap.Int("files", len(args)))
			}

			reg, err := a.registry(ctx)
			if err != nil {
				return err
			}
			if vendorID, err = reg.ResolveVendor(ctx, vendorID); err != nil {
				return err
			}
			pipe := a.pipeline(a.db, reg)
			out := &progressPrinter{w: cmd.OutOrStdout()}
			opts := a.parserOptions()

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(parallel)
			for _, path := range args {
				g.Go(func() error {
					local := file.NewLocal(path)
					req := ingest.Request{
						Source:   parser.Open(local, path, opts),
						Mapping:  m,
						Bypass:   bypass,
						VendorID: vendorID,
						FileName: filepath.Base(path),
						Total:    total,
					}
					if remove {
						req.Cleanup = local
					}
					sum, err := pipe.Run(gctx, req, out.forFile(filepath.Base(path)))
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					if sum.SkipLog != "" {
						a.log.Warn("rows skipped", zap.String("file", path), zap.Int("skipped", sum.Skipped), zap.String("skip_log", sum.SkipLog))
					}
					return nil
				})
			}
			return g.Wait()
		},
	}
	f := cmd.Flags()
	f.StringVar(&rawMapping, "mapping", "", `field mapping as JSON ({"590":0,"Price":3}) or @file (required)`)
	f.Int64Var(&vendorID, "vendor", 0, "vendor id (default vendor when 0)")
	f.BoolVar(&bypass, "bypass", false, "store the identifier verbatim")
	f.IntVar(&parallel, "parallel", 0, "files ingested at once (config ingest.parallel when 0)")
	f.IntVar(&total, "total", 0, "known row count; skips the counting pass")
	f.BoolVar(&remove, "remove", false, "delete each source file after its run")
	_ = cmd.MarkFlagRequired("mapping")
	return cmd
}

func newImportsCmd(a *app) *cobra.Command {
	var (
		vendorID int64
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "imports",
		Short: "List the import history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := a.registry(cmd.Context())
			if err != nil {
				return err
			}
			ims, err := reg.ListImports(cmd.Context(), vendorID)
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(ims)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TABLE\tVENDOR\tFILE\tROWS\tSTORED\tIMPORTED")
			for _, im := range ims {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					im.Table, im.VendorName, im.FileName, im.Total, im.Processed, im.ImportedAt.Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int64Var(&vendorID, "vendor", 0, "only this vendor's imports")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete TABLE",
		Short: "Delete an import: its history row, its table and an orphaned vendor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry(cmd.Context())
			if err != nil {
				return err
			}
			res, err := reg.DeleteImport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !res.TableDropped {
				fmt.Fprintf(cmd.OutOrStdout(), "deleted import %s but could not drop the table\n", res.Table)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted import %s and dropped the table\n", res.Table)
			return nil
		},
	}
}

func newNormalizeCmd(_ *app) *cobra.Command {
	var listRules bool
	cmd := &cobra.Command{
		Use:   "normalize [TEXT...]",
		Short: "Show how identifier values are normalized and which rule fired",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if listRules {
				for i, name := range extract.Rules() {
					fmt.Fprintf(out, "%2d  %s\n", i+1, name)
				}
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("normalize: give at least one value, or --rules")
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INPUT\tEXTRACTED\tCONFIDENCE\tMETHOD\tRULE")
			for _, in := range args {
				res := extract.Normalize(mapping.CleanIdentifier(in))
				rule := res.Rule
				if rule == "" {
					rule = "-"
				}
				fmt.Fprintf(tw, "%q\t%s\t%d\t%s\t%s\n", in, res.Extracted, res.Confidence, res.Method, rule)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&listRules, "rules", false, "list the extraction rules in evaluation order")
	return cmd
}

// pushInterval is how often a long-running server pushes metrics.
const pushInterval = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if addr != "" {
				a.cfg.HTTP.Addr = addr
			}
			reg, err := a.registry(ctx)
			if err != nil {
				return err
			}
			srv := webui.NewServer(webui.Config{
				Addr:    a.cfg.HTTP.Addr,
				Uploads: a.uploads(),
				Parser:  a.parserOptions(),
			}, a.pipeline(a.db, reg), reg, a.log)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.ListenAndServe(gctx) })
			g.Go(func() error {
				t := time.NewTicker(pushInterval)
				defer t.Stop()
				for {
					select {
					case <-gctx.Done():
						return nil
					case <-t.C:
						if err := metrics.Flush(); err != nil {
							a.log.Warn("metrics push", zap.Error(err))
						}
					}
				}
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (config http.addr when empty)")
	return cmd
}
