package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func places(n int) []Place {
	out := make([]Place, n)
	for i := range out {
		out[i] = Place{DisplayName: fmt.Sprintf("place-%d", i), Lat: fmt.Sprintf("%d.5", i), Lon: "-103.3"}
	}
	return out
}

// nominatim starts a fake provider returning n places and counts requests.
func nominatim(t *testing.T, n int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("format") != "json" || r.URL.Query().Get("q") == "" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(places(n))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

type countingRecorder struct {
	mu  sync.Mutex
	got map[string]int
}

func (r *countingRecorder) GeocodeOutcome(o string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.got == nil {
		r.got = map[string]int{}
	}
	r.got[o]++
}

func TestSearch_ShortQueryNeverRequests(t *testing.T) {
	srv, calls := nominatim(t, 3)
	a := NewAdapter(NewClient(srv.URL, "test", srv.Client()))

	for _, q := range []string{"", "a", "ab", "  ab  "} {
		res := a.Search(context.Background(), "s1", q)
		if res.Requested || len(res.Places) != 0 {
			t.Fatalf("%q: %+v", q, res)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("calls=%d want 0", calls.Load())
	}
}

func TestSearch_ThreeCharsIssuesOneRequest(t *testing.T) {
	srv, calls := nominatim(t, 3)
	a := NewAdapter(NewClient(srv.URL, "test", srv.Client()))

	res := a.Search(context.Background(), "s1", "gua")
	if !res.Requested || len(res.Places) != 3 {
		t.Fatalf("res=%+v", res)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls=%d want 1", calls.Load())
	}
	if a.InFlight("s1") {
		t.Fatal("in-flight flag not cleared")
	}
}

func TestSearch_TruncatesToFiveInOrder(t *testing.T) {
	srv, _ := nominatim(t, 8)
	a := NewAdapter(NewClient(srv.URL, "test", srv.Client()))

	res := a.Search(context.Background(), "s1", "guadalajara")
	if len(res.Places) != MaxResults {
		t.Fatalf("len=%d want 5", len(res.Places))
	}
	for i, p := range res.Places {
		if p.DisplayName != fmt.Sprintf("place-%d", i) {
			t.Fatalf("order broken at %d: %s", i, p.DisplayName)
		}
	}
}

func TestSearch_TransportFailureIsSilent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	rec := &countingRecorder{}
	a := NewAdapter(NewClient(srv.URL, "test", srv.Client()), WithRecorder(rec))
	res := a.Search(context.Background(), "s1", "madrid")
	if len(res.Places) != 0 || res.Stale {
		t.Fatalf("res=%+v", res)
	}
	if rec.got[OutcomeError] != 1 {
		t.Fatalf("outcomes=%v", rec.got)
	}
}

func TestSearch_CacheAvoidsSecondRequest(t *testing.T) {
	srv, calls := nominatim(t, 2)
	a := NewAdapter(NewClient(srv.URL, "test", srv.Client()), WithCache(NewCache(16, time.Minute)))

	a.Search(context.Background(), "s1", "Lima Peru")
	res := a.Search(context.Background(), "s2", "  lima   peru ")
	if len(res.Places) != 2 {
		t.Fatalf("res=%+v", res)
	}
	if res.Requested {
		t.Fatal("second search should be served from cache")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls=%d want 1", calls.Load())
	}
}

// gatedProvider blocks queries listed in gates until released.
type gatedProvider struct {
	gates map[string]chan struct{}
}

func (p *gatedProvider) Search(ctx context.Context, q string) ([]Place, error) {
	if g, ok := p.gates[q]; ok {
		select {
		case <-g:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []Place{{DisplayName: q, Lat: "1", Lon: "2"}}, nil
}

func TestSearch_StaleResponseIsDropped(t *testing.T) {
	gate := make(chan struct{})
	rec := &countingRecorder{}
	a := NewAdapter(&gatedProvider{gates: map[string]chan struct{}{"gua": gate}}, WithRecorder(rec))

	first := make(chan Result, 1)
	go func() { first <- a.Search(context.Background(), "s1", "gua") }()

	deadline := time.Now().Add(2 * time.Second)
	for !a.InFlight("s1") {
		if time.Now().After(deadline) {
			t.Fatal("first search never started")
		}
		time.Sleep(time.Millisecond)
	}

	second := a.Search(context.Background(), "s1", "guadalajara")
	if second.Stale || len(second.Places) != 1 || second.Places[0].DisplayName != "guadalajara" {
		t.Fatalf("second=%+v", second)
	}

	close(gate)
	got := <-first
	if !got.Stale {
		t.Fatalf("first result should be stale: %+v", got)
	}
	if got.Seq >= second.Seq {
		t.Fatalf("seq first=%d second=%d", got.Seq, second.Seq)
	}
}

func TestSearch_KeysAreIndependent(t *testing.T) {
	srv, _ := nominatim(t, 1)
	a := NewAdapter(NewClient(srv.URL, "test", srv.Client()))
	r1 := a.Search(context.Background(), "s1", "quito")
	r2 := a.Search(context.Background(), "s2", "quito")
	if r1.Stale || r2.Stale {
		t.Fatalf("r1=%+v r2=%+v", r1, r2)
	}
}

func TestInvalidate_MarksRunningSearchStale(t *testing.T) {
	gate := make(chan struct{})
	a := NewAdapter(&gatedProvider{gates: map[string]chan struct{}{"bogota": gate}})

	done := make(chan Result, 1)
	go func() { done <- a.Search(context.Background(), "s1", "bogota") }()
	for !a.InFlight("s1") {
		time.Sleep(time.Millisecond)
	}
	a.Invalidate("s1", 2)
	if res := <-done; !res.Stale {
		t.Fatalf("res=%+v", res)
	}
}

func TestSearchSeq_OlderCallArrivingLateIsStale(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	a := NewAdapter(&gatedProvider{gates: map[string]chan struct{}{"guadal": gate}})

	newer := make(chan Result, 1)
	go func() { newer <- a.SearchSeq(context.Background(), "s1", 2, "guadal") }()
	deadline := time.Now().Add(2 * time.Second)
	for !a.InFlight("s1") {
		if time.Now().After(deadline) {
			t.Fatal("newer search never started")
		}
		time.Sleep(time.Millisecond)
	}

	older := a.SearchSeq(context.Background(), "s1", 1, "guad")
	if !older.Stale || older.Requested {
		t.Fatalf("older=%+v", older)
	}
	if !a.InFlight("s1") {
		t.Fatal("older call cancelled the newer one")
	}

	gate <- struct{}{}
	got := <-newer
	if got.Stale || len(got.Places) != 1 || got.Places[0].DisplayName != "guadal" {
		t.Fatalf("newer=%+v", got)
	}
}

func TestSearch_BookkeepingEndsWithCall(t *testing.T) {
	a := NewAdapter(&gatedProvider{})
	for i := range 1000 {
		a.Search(context.Background(), fmt.Sprintf("rest:%d", i), "lima")
	}
	if n := len(a.calls); n != 0 {
		t.Fatalf("keys kept after their searches ended: %d", n)
	}
	if a.InFlight("rest:0") {
		t.Fatal("finished search reported in flight")
	}
}

func TestPlaceCoordinates(t *testing.T) {
	lat, lon, err := Place{Lat: "20.67", Lon: "-103.34"}.Coordinates()
	if err != nil || lat != 20.67 || lon != -103.34 {
		t.Fatalf("lat=%v lon=%v err=%v", lat, lon, err)
	}
	if _, _, err := (Place{Lat: "x", Lon: "1"}).Coordinates(); err == nil {
		t.Fatal("expected error")
	}
}

func TestClient_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	_, err := NewClient(srv.URL, "", srv.Client()).Search(context.Background(), "abc")
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("err=%v", err)
	}
}
