// Package webui exposes the intake workflow over HTTP. Ingestion progress is
// streamed as Server-Sent Events; everything else is JSON.
//
// Routes:
//
//	POST   /api/preview          → headers, first rows and their mapped form
//	POST   /api/ingest           → runs an ingestion, streams progress events
//	GET    /api/imports          → import history (?vendor_id= filters)
//	DELETE /api/imports/{table}  → deletes an import and drops its table
//	GET    /api/vendors          → vendors
//	POST   /api/vendors          → creates a vendor
//	GET    /api/normalize        → explains the code normalization of ?value=
package webui

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"vendorport/internal/datasource/file"
	"vendorport/internal/ingest"
	"vendorport/internal/parser"
	"vendorport/internal/registry"
)

// Config controls the server.
type Config struct {
	Addr    string
	Uploads file.Uploads
	Parser  parser.Options
	// PreviewRows defaults to mapping.DefaultPreviewRows.
	PreviewRows int
}

// Ingester runs one ingestion.
type Ingester interface {
	Run(ctx context.Context, req ingest.Request, em ingest.Emitter) (ingest.Summary, error)
}

// Catalog is the registry surface the server uses.
type Catalog interface {
	ResolveVendor(ctx context.Context, id int64) (int64, error)
	CreateVendor(ctx context.Context, v registry.Vendor) (registry.Vendor, error)
	ListVendors(ctx context.Context) ([]registry.Vendor, error)
	ListImports(ctx context.Context, vendorID int64) ([]registry.Import, error)
	DeleteImport(ctx context.Context, table string) (registry.DeleteResult, error)
}

// Server routes API requests.
type Server struct {
	cfg Config
	ing Ingester
	cat Catalog
	log *zap.Logger
	mux *http.ServeMux
}

// NewServer constructs a Server with its routes.
func NewServer(cfg Config, ing Ingester, cat Catalog, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{cfg: cfg, ing: ing, cat: cat, log: log, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/preview", s.handlePreview)
	s.mux.HandleFunc("POST /api/ingest", s.handleIngest)
	s.mux.HandleFunc("GET /api/imports", s.handleListImports)
	s.mux.HandleFunc("DELETE /api/imports/{table}", s.handleDeleteImport)
	s.mux.HandleFunc("GET /api/vendors", s.handleListVendors)
	s.mux.HandleFunc("POST /api/vendors", s.handleCreateVendor)
	s.mux.HandleFunc("GET /api/normalize", s.handleNormalize)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves until ctx is done, then shuts down gracefully,
// letting running ingestions reach their next chunk boundary.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.cfg.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
