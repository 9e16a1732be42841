package webui

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"vendorport/internal/datasource/file"
	"vendorport/internal/extract"
	"vendorport/internal/ingest"
	"vendorport/internal/mapping"
	"vendorport/internal/parser"
	"vendorport/internal/registry"
)

// errBadRequest marks malformed request parameters.
var errBadRequest = errors.New("bad request")

// multipartMemory is the slack allowed on top of the upload limit for the
// other form fields and multipart framing.
const multipartMemory = 8 << 20

// maxFieldBytes bounds a single non-file form field.
const maxFieldBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, file.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, file.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, errBadRequest), errors.Is(err, mapping.ErrInvalidMapping), errors.Is(err, registry.ErrInvalidVendor):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func formBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return strings.EqualFold(strings.TrimSpace(v), "on")
	}
	return b
}

func formInt(v string) (int64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

// form is a parsed multipart request: the stored "file" part and every
// other field in the order it was posted.
type form struct {
	local  *file.Local
	name   string
	fields []mapping.FormValue
}

// get returns the first value posted under key.
func (f *form) get(key string) string {
	for _, v := range f.fields {
		if v.Key == key {
			return v.Value
		}
	}
	return ""
}

// fieldMapping decodes the JSON "mapping" field, or the "mapping[<field>]"
// select fields of the mapping screen when it is absent. ok is false when
// neither was posted.
func (f *form) fieldMapping() (m mapping.FieldMapping, ok bool, err error) {
	if raw := strings.TrimSpace(f.get("mapping")); raw != "" {
		m, err = mapping.Parse([]byte(raw))
		return m, true, err
	}
	for _, v := range f.fields {
		if _, isField := mapping.FormKey(v.Key); isField {
			m, err = mapping.FromForm(f.fields)
			return m, true, err
		}
	}
	return nil, false, nil
}

// upload streams the multipart body: the "file" part goes straight to the
// upload dir, other fields are collected in order. On error nothing is left
// in the upload dir.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) (*form, error) {
	limit := s.cfg.Uploads.MaxBytes
	if limit <= 0 {
		limit = file.DefaultMaxUpload
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartMemory)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: multipart body: %w", errBadRequest, err)
	}

	f := &form{}
	fail := func(err error) (*form, error) {
		if f.local != nil {
			if rmErr := f.local.Remove(); rmErr != nil {
				s.log.Warn("remove partial upload", zap.Error(rmErr))
			}
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, fmt.Errorf("%w (%d bytes)", file.ErrTooLarge, limit)
		}
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(fmt.Errorf("%w: multipart body: %w", errBadRequest, err))
		}
		err = s.readPart(f, part)
		part.Close()
		if err != nil {
			return fail(err)
		}
	}
	if f.local == nil {
		return nil, fmt.Errorf("%w: missing file", errBadRequest)
	}
	return f, nil
}

func (s *Server) readPart(f *form, part *multipart.Part) error {
	key := part.FormName()
	switch {
	case key == "file":
		if f.local != nil {
			return fmt.Errorf("%w: more than one file", errBadRequest)
		}
		local, err := s.cfg.Uploads.Save(part, part.FileName())
		if err != nil {
			return err
		}
		f.local, f.name = local, part.FileName()
		return nil
	case key == "" || part.FileName() != "":
		// Unnamed parts and files under other names are ignored.
		return nil
	}
	b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return fmt.Errorf("%w: field %q: %w", errBadRequest, key, err)
	}
	if len(b) > maxFieldBytes {
		return fmt.Errorf("%w: field %q exceeds %d bytes", errBadRequest, key, maxFieldBytes)
	}
	f.fields = append(f.fields, mapping.FormValue{Key: key, Value: string(b)})
	return nil
}

type previewResponse struct {
	Headers []string          `json:"headers"`
	Rows    [][]string        `json:"rows"`
	Total   int               `json:"total"`
	Preview []*mapping.Record `json:"preview,omitempty"`
}

// handlePreview reads the header, counts rows and maps the first few. The
// upload is discarded afterwards.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	up, err := s.upload(w, r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	defer func() {
		if err := up.local.Remove(); err != nil {
			s.log.Warn("remove preview upload", zap.Error(err))
		}
	}()

	ctx := r.Context()
	tab := parser.Open(up.local, up.name, s.cfg.Parser)
	headers, err := tab.Headers(ctx)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	n := s.cfg.PreviewRows
	if n <= 0 {
		n = mapping.DefaultPreviewRows
	}
	rows, err := tab.Head(ctx, n)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	total, _, err := tab.Count(ctx)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	resp := previewResponse{Headers: headers, Rows: rows, Total: total}

	m, ok, err := up.fieldMapping()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if ok {
		resp.Preview = mapping.Preview(rows, m, formBool(up.get("bypass")), n)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleIngest validates the request, then switches to an event stream for
// the run. Errors after the switch arrive as an event with "error" set.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	up, err := s.upload(w, r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	ctx := r.Context()
	reject := func(err error) {
		if rmErr := up.local.Remove(); rmErr != nil {
			s.log.Warn("remove rejected upload", zap.Error(rmErr))
		}
		writeError(w, statusFor(err), err)
	}

	m, ok, err := up.fieldMapping()
	if err == nil && !ok {
		err = fmt.Errorf("%w: no mapping posted", mapping.ErrInvalidMapping)
	}
	if err != nil {
		reject(err)
		return
	}
	vendorID, err := formInt(up.get("vendor_id"))
	if err != nil {
		reject(fmt.Errorf("%w: vendor_id: %w", errBadRequest, err))
		return
	}
	if vendorID, err = s.cat.ResolveVendor(ctx, vendorID); err != nil {
		reject(err)
		return
	}
	total, err := formInt(up.get("total"))
	if err != nil {
		reject(fmt.Errorf("%w: total: %w", errBadRequest, err))
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sum, err := s.ing.Run(ctx, ingest.Request{
		Source:   parser.Open(up.local, up.name, s.cfg.Parser),
		Mapping:  m,
		Bypass:   formBool(up.get("bypass")),
		VendorID: vendorID,
		FileName: up.name,
		Total:    int(total),
		Cleanup:  up.local,
	}, sseEmitter{w: w, f: flusher})
	if err != nil {
		s.log.Warn("ingest request failed", zap.String("file", up.name), zap.Error(err))
		return
	}
	s.log.Info("ingest request done",
		zap.String("file", up.name),
		zap.String("table", sum.Table),
		zap.Int("processed", sum.Processed),
		zap.Int("total", sum.Total),
	)
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	vendorID, err := formInt(r.URL.Query().Get("vendor_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("vendor_id: %w", err))
		return
	}
	ims, err := s.cat.ListImports(r.Context(), vendorID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if ims == nil {
		ims = []registry.Import{}
	}
	writeJSON(w, http.StatusOK, ims)
}

func (s *Server) handleDeleteImport(w http.ResponseWriter, r *http.Request) {
	res, err := s.cat.DeleteImport(r.Context(), r.PathValue("table"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListVendors(w http.ResponseWriter, r *http.Request) {
	vs, err := s.cat.ListVendors(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if vs == nil {
		vs = []registry.Vendor{}
	}
	writeJSON(w, http.StatusOK, vs)
}

func (s *Server) handleCreateVendor(w http.ResponseWriter, r *http.Request) {
	var v registry.Vendor
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad vendor body: %w", err))
		return
	}
	v.ID = 0
	created, err := s.cat.CreateVendor(r.Context(), v)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query().Get("value")
	writeJSON(w, http.StatusOK, extract.Normalize(mapping.CleanIdentifier(v)))
}
