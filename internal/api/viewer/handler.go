// Package viewer contains the Datastar SSE handlers behind the viewer page.
// Every action reduces the session's view state on the server and answers
// with the signals and fragments that changed.
package viewer

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-sat/internal/aoi"
	"github.com/joeblew999/plat-sat/internal/catalog"
	"github.com/joeblew999/plat-sat/internal/humastar"
	"github.com/joeblew999/plat-sat/internal/metrics"
	"github.com/joeblew999/plat-sat/internal/middleware"
	"github.com/joeblew999/plat-sat/internal/service"
	"github.com/joeblew999/plat-sat/internal/templates"
	"github.com/joeblew999/plat-sat/internal/viewstate"
)

// PageConfig holds the static parts of the viewer page.
type PageConfig struct {
	Title       string
	TilesURL    string
	Attribution string
}

// Handler serves the viewer page, its actions and its event stream.
type Handler struct {
	humastar.Handler
	svc     *service.Viewer
	metrics *metrics.Provider
	page    PageConfig
	log     zerolog.Logger
}

// New creates the viewer handler.
func New(svc *service.Viewer, renderer *templates.Renderer, m *metrics.Provider, page PageConfig, log zerolog.Logger) *Handler {
	return &Handler{
		Handler: humastar.Handler{Renderer: renderer},
		svc:     svc,
		metrics: m,
		page:    page,
		log:     log,
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags("viewer")
	huma.Post(api, "/api/v1/viewer/panels/{panel}/toggle", h.TogglePanel, tags)
	huma.Post(api, "/api/v1/viewer/click-outside", h.ClickOutside, tags)
	huma.Post(api, "/api/v1/viewer/indicators/{id}/select", h.SelectIndicator, tags)
	huma.Post(api, "/api/v1/viewer/draw/toggle", h.ToggleDrawing, tags)
	huma.Post(api, "/api/v1/viewer/draw/cancel", h.CancelDrawing, tags)
	huma.Post(api, "/api/v1/viewer/draw/complete", h.CompleteDrawing, tags)
	huma.Post(api, "/api/v1/viewer/search", h.Search, tags)
	huma.Post(api, "/api/v1/viewer/search/{index}/select", h.ChooseResult, tags)
	huma.Post(api, "/api/v1/viewer/daterange", h.SetDateRange, tags)
	huma.Post(api, "/api/v1/viewer/reset", h.Reset, tags)
	huma.Get(api, ExportPath, h.Export, tags)
	huma.Get(api, "/api/v1/viewer/events", h.Events, tags)
}

// Inputs

type PanelInput struct {
	Panel string `path:"panel" enum:"search,datepicker,sensors,detail" doc:"Panel to toggle"`
}

type IndicatorInput struct {
	ID string `path:"id" doc:"Indicator ID" example:"chlorophyll"`
}

type IndexInput struct {
	Index int `path:"index" minimum:"0" doc:"Position in the current result list"`
}

type ExportOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

func session(ctx context.Context) (string, error) {
	id := middleware.SessionID(ctx)
	if id == "" {
		return "", huma.Error400BadRequest("missing viewer session")
	}
	return id, nil
}

// httpError maps service errors onto Huma errors.
func httpError(err error) error {
	switch {
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, service.ErrUnknownPanel),
		errors.Is(err, service.ErrResultIndex),
		errors.Is(err, service.ErrNoExport):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrBadDateRange),
		errors.Is(err, service.ErrBadCoordinate):
		return huma.Error422UnprocessableEntity(err.Error())
	}
	return huma.Error500InternalServerError("viewer action failed", err)
}

// userMessage is the text shown in the UI for a failed draw.
func userMessage(err error) string {
	switch {
	case errors.Is(err, aoi.ErrNotDrawing):
		return "Activa el modo de dibujo antes de trazar un área."
	case errors.Is(err, aoi.ErrNotPolygon):
		return "La geometría dibujada no es un polígono."
	case errors.Is(err, aoi.ErrEmptyRing):
		return "El polígono necesita al menos tres vértices distintos."
	}
	return "No se pudo exportar el área."
}

// Handlers

func (h *Handler) TogglePanel(ctx context.Context, input *PanelInput) (*huma.StreamResponse, error) {
	id, err := session(ctx)
	if err != nil {
		return nil, err
	}
	p := viewstate.Panel(input.Panel)
	s, err := h.svc.TogglePanel(ctx, id, p)
	if err != nil {
		return nil, httpError(err)
	}
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(panelSignal(s, p))
	}), nil
}

func (h *Handler) ClickOutside(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	id, err := session(ctx)
	if err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	target := viewstate.Target(signals.String("clickTarget"))
	s, err := h.svc.ClickOutside(ctx, id, target)
	if err != nil {
		return nil, httpError(err)
	}
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(closedSignals(s, target))
	}), nil
}

func (h *Handler) SelectIndicator(ctx context.Context, input *IndicatorInput) (*huma.StreamResponse, error) {
	id, err := session(ctx)
	if err != nil {
		return nil, err
	}
	sel, err := h.svc.SelectIndicator(ctx, id, input.ID)
	if err != nil {
		return nil, httpError(err)
	}

	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(map[string]any{
			"selectedId": sel.State.SelectedID,
			"loading":    sel.State.Loading,
			"overlay":    overlaySignal(sel.Overlay),
		})
		sse.Patch(h.Render("indicator-list", indicatorItems(h.svc.Catalog(), sel.State.SelectedID)), "#indicator-list")
		sse.Patch(h.Render("indicator-detail", detailView(sel.Indicator)), "#indicator-detail")

		if !sel.State.Loading {
			return
		}
		s, err := h.svc.AwaitLoad(ctx, id, sel.State.LoadSeq)
		if err != nil {
			return
		}
		sse.Signals(map[string]any{"loading": s.Loading})
	}), nil
}

func (h *Handler) ToggleDrawing(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	id, err := session(ctx)
	if err != nil {
		return nil, err
	}
	s, err := h.svc.ToggleDrawing(ctx, id)
	if err != nil {
		return nil, httpError(err)
	}
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(map[string]any{"drawing": s.Drawing, "error": ""})
	}), nil
}

func (h *Handler) CancelDrawing(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	id, err := session(ctx)
	if err != nil {
		return nil, err
	}
	s, err := h.svc.CancelDrawing(ctx, id)
	if err != nil {
		return nil, httpError(err)
	}
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(map[string]any{"drawing": s.Drawing})
	}), nil
}

func (h *Handler) CompleteDrawing(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	id, err := session(ctx)
	if err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}

	return h.Stream(func(sse humastar.SSE) {
		shape, ok := signals.JSON("shape")
		if !ok {
			sse.Error("No se recibió ningún polígono.")
			return
		}
		c, err := h.svc.CompleteDrawing(ctx, id, shape)
		if err != nil {
			h.log.Debug().Err(err).Str("session", id).Msg("draw completion rejected")
			sse.Error(userMessage(err))
			return
		}
		sse.Signals(map[string]any{
			"drawing":    c.State.Drawing,
			"lastExport": exportSignal(c.State),
			"area":       areaSignal(c.Shape),
			"shape":      "",
		})
		sse.Success(fmt.Sprintf("Área exportada: %.2f km², %d celdas H3.", c.Summary.AreaKm2, c.Summary.H3Cells))
		sse.Event("aoi-exported", map[string]any{
			"url":      ExportPath,
			"filename": c.Export.Filename,
		})
	}), nil
}

func (h *Handler) Search(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	id, err := session(ctx)
	if err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	res, err := h.svc.Search(ctx, id, signals.String("query"))
	if err != nil {
		return nil, httpError(err)
	}

	return h.Stream(func(sse humastar.SSE) {
		if !res.Applied {
			// A newer query owns the result list.
			return
		}
		sse.Signals(map[string]any{"searching": res.State.Searching})
		sse.Replace(h.Render("search-results", resultItems(res.State)), "#search-results")
	}), nil
}

func (h *Handler) ChooseResult(ctx context.Context, input *IndexInput) (*huma.StreamResponse, error) {
	id, err := session(ctx)
	if err != nil {
		return nil, err
	}
	c, err := h.svc.ChooseResult(ctx, id, input.Index)
	if err != nil {
		return nil, httpError(err)
	}
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(map[string]any{
			"searchOpen": c.State.SearchOpen,
			"query":      c.State.Query,
			"searching":  c.State.Searching,
			"center":     c.State.Center,
			"zoom":       c.State.Zoom,
		})
		sse.Replace(h.Render("search-results", resultItems(c.State)), "#search-results")
	}), nil
}

func (h *Handler) SetDateRange(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	id, err := session(ctx)
	if err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	r := viewstate.DateRange{Start: signals.String("startDate"), End: signals.String("endDate")}
	s, err := h.svc.SetDateRange(ctx, id, r)

	return h.Stream(func(sse humastar.SSE) {
		if err != nil {
			sse.Error("Rango de fechas inválido.")
			return
		}
		sse.Signals(map[string]any{
			"startDate": s.DateRange.Start,
			"endDate":   s.DateRange.End,
			"error":     "",
		})
	}), nil
}

// Reset ends the session and puts the page back to the initial view.
func (h *Handler) Reset(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	id, err := session(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.svc.EndSession(ctx, id); err != nil {
		return nil, httpError(err)
	}
	s, err := h.svc.Session(ctx, id)
	if err != nil {
		return nil, httpError(err)
	}
	ind, overlay, err := h.svc.Indicator(s.SelectedID)
	if err != nil {
		return nil, httpError(err)
	}

	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(pageSignals(s, overlay, nil))
		sse.Patch(h.Render("indicator-list", indicatorItems(h.svc.Catalog(), s.SelectedID)), "#indicator-list")
		sse.Patch(h.Render("indicator-detail", detailView(ind)), "#indicator-detail")
		sse.Replace(h.Render("search-results", resultItems(s)), "#search-results")
	}), nil
}

func (h *Handler) Export(ctx context.Context, input *humastar.EmptyInput) (*ExportOutput, error) {
	id, err := session(ctx)
	if err != nil {
		return nil, err
	}
	exp, err := h.svc.LastExport(ctx, id)
	if err != nil {
		return nil, httpError(err)
	}
	return &ExportOutput{
		ContentType:        exp.MIMEType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", exp.Filename),
		Body:               exp.Data,
	}, nil
}
