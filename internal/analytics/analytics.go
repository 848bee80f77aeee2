// Package analytics sends optional product events to PostHog. Without an API
// key every call is a no-op.
package analytics

import (
	"github.com/posthog/posthog-go"
	"github.com/rs/zerolog"
)

const DefaultHost = "https://us.i.posthog.com"

// Event names.
const (
	EventIndicatorSelected = "indicator_selected"
	EventAOIExported       = "aoi_exported"
	EventPlaceChosen       = "place_chosen"
)

type client interface {
	Enqueue(posthog.Message) error
	Close() error
}

type Tracker struct {
	ph  client
	log zerolog.Logger
}

// New returns a Tracker. An empty key yields a disabled tracker.
func New(key, host string, log zerolog.Logger) (*Tracker, error) {
	t := &Tracker{log: log}
	if key == "" {
		return t, nil
	}
	if host == "" {
		host = DefaultHost
	}
	c, err := posthog.NewWithConfig(key, posthog.Config{Endpoint: host})
	if err != nil {
		return nil, err
	}
	t.ph = c
	return t, nil
}

// Enabled reports whether events are sent anywhere.
func (t *Tracker) Enabled() bool { return t != nil && t.ph != nil }

// Track enqueues event for the viewer session distinctID.
func (t *Tracker) Track(distinctID, event string, props map[string]any) {
	if !t.Enabled() {
		return
	}
	p := posthog.NewProperties()
	for k, v := range props {
		p.Set(k, v)
	}
	if err := t.ph.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      event,
		Properties: p,
	}); err != nil {
		t.log.Debug().Err(err).Str("event", event).Msg("analytics enqueue failed")
	}
}

// Close flushes pending events.
func (t *Tracker) Close() error {
	if !t.Enabled() {
		return nil
	}
	return t.ph.Close()
}
