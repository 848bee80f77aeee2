package analytics

import (
	"errors"
	"testing"

	"github.com/posthog/posthog-go"
	"github.com/rs/zerolog"
)

type fakeClient struct {
	msgs   []posthog.Message
	err    error
	closed bool
}

func (f *fakeClient) Enqueue(m posthog.Message) error {
	f.msgs = append(f.msgs, m)
	return f.err
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestNew_WithoutKeyIsDisabled(t *testing.T) {
	tr, err := New("", "", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if tr.Enabled() {
		t.Fatal("enabled without key")
	}
	tr.Track("s1", EventIndicatorSelected, nil)
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}

	var nilTracker *Tracker
	nilTracker.Track("s1", EventAOIExported, nil)
}

func TestTrack(t *testing.T) {
	fc := &fakeClient{}
	tr := &Tracker{ph: fc, log: zerolog.Nop()}

	tr.Track("s1", EventIndicatorSelected, map[string]any{"indicator": "turbidity"})
	if len(fc.msgs) != 1 {
		t.Fatalf("msgs=%d", len(fc.msgs))
	}
	c, ok := fc.msgs[0].(posthog.Capture)
	if !ok {
		t.Fatalf("type %T", fc.msgs[0])
	}
	if c.DistinctId != "s1" || c.Event != EventIndicatorSelected || c.Properties["indicator"] != "turbidity" {
		t.Fatalf("capture=%+v", c)
	}

	fc.err = errors.New("queue full")
	tr.Track("s1", EventAOIExported, nil)

	_ = tr.Close()
	if !fc.closed {
		t.Fatal("not closed")
	}
}
