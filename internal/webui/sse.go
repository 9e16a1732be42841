package webui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"vendorport/internal/ingest"
)

// sseEmitter writes each event as one "data:" frame and flushes it.
type sseEmitter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (e sseEmitter) Emit(_ context.Context, ev ingest.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", b); err != nil {
		return err
	}
	e.f.Flush()
	return nil
}
