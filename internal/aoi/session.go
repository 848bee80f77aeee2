package aoi

import (
	"fmt"
	"sync"
	"time"

	"github.com/paulmach/orb"
)

// Export is a file ready to be handed to the browser download mechanism.
type Export struct {
	Bytes     []byte    `json:"-"`
	Filename  string    `json:"filename" example:"area-selection.kml"`
	MIMEType  string    `json:"mimeType" example:"application/vnd.google-earth.kml+xml"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is one viewer's drawing state. At most one completed polygon is
// retained; completing another replaces it.
type Session struct {
	mu      sync.Mutex
	drawing bool
	shape   orb.Polygon
	now     func() time.Time
}

// NewSession returns an idle session.
func NewSession() *Session {
	return &Session{now: time.Now}
}

// Drawing reports whether polygon drawing is enabled.
func (s *Session) Drawing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawing
}

// Enable turns drawing mode on.
func (s *Session) Enable() {
	s.mu.Lock()
	s.drawing = true
	s.mu.Unlock()
}

// Cancel turns drawing mode off without touching the retained shape.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.drawing = false
	s.mu.Unlock()
}

// Shape returns a copy of the retained polygon, or nil.
func (s *Session) Shape() orb.Polygon {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shape == nil {
		return nil
	}
	return s.shape.Clone()
}

// Complete handles the draw toolkit's completed-shape event. It ends the
// drawing session, retains p in place of any previous shape and returns the
// KML export for it.
func (s *Session) Complete(p orb.Polygon, pm Placemark) (Export, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.drawing {
		return Export{}, ErrNotDrawing
	}
	data, err := EncodeKML(p, pm)
	if err != nil {
		return Export{}, fmt.Errorf("aoi: export: %w", err)
	}
	s.drawing = false
	s.shape = p.Clone()
	return Export{
		Bytes:     data,
		Filename:  Filename,
		MIMEType:  MIMEType,
		CreatedAt: s.now().UTC(),
	}, nil
}
