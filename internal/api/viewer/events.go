package viewer

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-sat/internal/humastar"
	"github.com/joeblew999/plat-sat/internal/service"
)

// Events streams the session's state to every open tab, so a change made in
// one tab (or by another process sharing the store) shows up in all of them.
func (h *Handler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	id, err := session(ctx)
	if err != nil {
		return nil, err
	}

	return h.Stream(func(sse humastar.SSE) {
		bus := h.svc.Bus()
		ch := bus.Subscribe()
		defer bus.Unsubscribe(ch)
		h.metrics.StreamOpened()
		defer h.metrics.StreamClosed()

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				if ev.Session != "" && ev.Session != id {
					continue
				}
				if err := h.push(ctx, sse, id, ev); err != nil {
					h.log.Warn().Err(err).Str("session", id).Msg("event push failed")
				}
			}
		}
	}), nil
}

func (h *Handler) push(ctx context.Context, sse humastar.SSE, id string, ev service.Event) error {
	s, err := h.svc.Session(ctx, id)
	if err != nil {
		return err
	}
	ind, overlay, err := h.svc.Indicator(s.SelectedID)
	if err != nil {
		return err
	}

	signals := stateSignals(s, overlay)
	signals["area"] = areaSignal(h.svc.Area(id))
	sse.Signals(signals)
	switch ev.Kind {
	case service.EventIndicator, service.EventRanges:
		sse.Patch(h.Render("indicator-list", indicatorItems(h.svc.Catalog(), s.SelectedID)), "#indicator-list")
		sse.Patch(h.Render("indicator-detail", detailView(ind)), "#indicator-detail")
	case service.EventState:
		sse.Replace(h.Render("search-results", resultItems(s)), "#search-results")
	}
	return nil
}
