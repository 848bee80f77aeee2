package service

import (
	"context"
	"time"

	"github.com/joeblew999/plat-sat/internal/catalog"
	"github.com/joeblew999/plat-sat/internal/wms"
)

// CapabilitiesFetcher retrieves a WMS capabilities document.
type CapabilitiesFetcher interface {
	Fetch(ctx context.Context) (*wms.Capabilities, error)
}

// RefreshRanges fetches the WMS capabilities and applies the advertised value
// ranges to the catalog's legends. Failures are logged and leave the static
// ranges in place.
func (v *Viewer) RefreshRanges(ctx context.Context, f CapabilitiesFetcher, timeout time.Duration) map[string]catalog.Range {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	caps, err := f.Fetch(ctx)
	if err != nil {
		v.log.Warn().Err(err).Msg("wms capabilities unavailable, keeping static legend ranges")
		return v.Ranges()
	}

	ranges := caps.Ranges()
	v.ApplyRanges(ranges)
	v.log.Info().Int("layers", len(ranges)).Msg("legend ranges loaded from wms capabilities")
	return v.Ranges()
}

// ApplyRanges replaces the catalog by one carrying ranges.
func (v *Viewer) ApplyRanges(ranges map[string]catalog.Range) {
	cp := make(map[string]catalog.Range, len(ranges))
	for k, r := range ranges {
		cp[k] = r
	}
	v.catalog.Store(v.Catalog().WithRanges(cp))
	v.ranges.Store(&cp)
	v.bus.Publish(Event{Kind: EventRanges})
}
