package viewer

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/joeblew999/plat-sat/internal/middleware"
)

type pageData struct {
	Title         string
	TilesURL      string
	Attribution   string
	SearchEnabled bool
	Signals       string
	Indicators    []IndicatorItem
	Detail        DetailView
	Results       []ResultItem
}

// Page renders the full viewer for the request's session.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := middleware.SessionID(ctx)
	if id == "" {
		http.Error(w, "missing viewer session", http.StatusBadRequest)
		return
	}

	s, err := h.svc.Session(ctx, id)
	if err != nil {
		h.log.Error().Err(err).Str("session", id).Msg("load session")
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	ind, overlay, err := h.svc.Indicator(s.SelectedID)
	if err != nil {
		// The catalog changed under a stored session.
		ind = h.svc.Catalog().Default()
		overlay = h.svc.Binder().Bind(ind)
		s.SelectedID = ind.ID
	}

	signals, err := json.Marshal(pageSignals(s, overlay, h.svc.Area(id)))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := h.Renderer.RenderToBuffer(&buf, "viewer-page", pageData{
		Title:         h.page.Title,
		TilesURL:      h.page.TilesURL,
		Attribution:   h.page.Attribution,
		SearchEnabled: h.svc.SearchEnabled(),
		Signals:       string(signals),
		Indicators:    indicatorItems(h.svc.Catalog(), s.SelectedID),
		Detail:        detailView(ind),
		Results:       resultItems(s),
	}); err != nil {
		h.log.Error().Err(err).Msg("render viewer page")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}
