package geocode

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	// MinQueryLen is the shortest query that reaches the provider.
	MinQueryLen = 3
	// MaxResults caps the result list, keeping provider order.
	MaxResults = 5
)

// Outcome labels reported to the Recorder.
const (
	OutcomeOK         = "ok"
	OutcomeError      = "error"
	OutcomeCacheHit   = "cache_hit"
	OutcomeTooShort   = "too_short"
	OutcomeSuperseded = "superseded"
)

// Recorder receives adapter events, typically for metrics.
type Recorder interface {
	GeocodeOutcome(outcome string)
}

// Result is the adapter state after one Search call. Stale is set when a
// newer call for the same key was issued while this one was in flight; the
// caller must not apply Places then.
type Result struct {
	Seq       uint64  `json:"seq" doc:"Sequence number of the call"`
	Query     string  `json:"query" doc:"Query text as typed"`
	Places    []Place `json:"places" doc:"At most five places in provider order"`
	Requested bool    `json:"requested" doc:"Whether the provider was called"`
	Stale     bool    `json:"stale" doc:"Superseded by a newer search"`
}

// call tracks the searches running for one key. It exists only while at
// least one of them is in progress.
type call struct {
	seq     uint64             // newest sequence issued for the key
	cancel  context.CancelFunc // cancels the call holding seq, nil once it ended
	running int
}

// Adapter enforces the search rules on top of a Provider: minimum query
// length, result truncation, silent failure and last-call-wins ordering per
// key (one key per viewer session).
type Adapter struct {
	provider Provider
	cache    *Cache
	log      zerolog.Logger
	rec      Recorder

	mu    sync.Mutex
	calls map[string]*call
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithCache enables result caching.
func WithCache(c *Cache) Option { return func(a *Adapter) { a.cache = c } }

// WithLogger sets the logger for swallowed provider failures.
func WithLogger(l zerolog.Logger) Option { return func(a *Adapter) { a.log = l } }

// WithRecorder sets the outcome recorder.
func WithRecorder(r Recorder) Option { return func(a *Adapter) { a.rec = r } }

// NewAdapter wraps provider.
func NewAdapter(provider Provider, opts ...Option) *Adapter {
	a := &Adapter{
		provider: provider,
		log:      zerolog.Nop(),
		calls:    map[string]*call{},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// InFlight reports whether the newest search for key is still running.
func (a *Adapter) InFlight(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.calls[key]
	return ok && c.cancel != nil
}

// Search runs one search for key, numbering it after the previous one.
func (a *Adapter) Search(ctx context.Context, key, text string) Result {
	return a.SearchSeq(ctx, key, 0, text)
}

// SearchSeq runs the search numbered seq for key. Callers that keep their
// own ordering, such as a session's view state, pass its sequence here so
// both agree on which query is newest; zero numbers the call after the
// previous one. A call older than one already issued returns Stale without
// reaching the provider. Provider failures never surface as errors: they are
// logged and yield an empty result list.
func (a *Adapter) SearchSeq(ctx context.Context, key string, seq uint64, text string) Result {
	seq, reqCtx, done := a.begin(ctx, key, seq)
	defer done()

	res := Result{Seq: seq, Query: text}
	if !a.latest(key, seq) {
		a.record(OutcomeSuperseded)
		res.Stale = true
		return res
	}

	query := strings.TrimSpace(text)
	if utf8.RuneCountInString(query) < MinQueryLen {
		a.record(OutcomeTooShort)
		return res
	}

	if places, ok := a.cache.Get(query); ok {
		a.record(OutcomeCacheHit)
		res.Places = places
		res.Stale = !a.latest(key, seq)
		return res
	}

	res.Requested = true
	places, err := a.provider.Search(reqCtx, query)
	if !a.latest(key, seq) {
		a.record(OutcomeSuperseded)
		res.Stale = true
		return res
	}
	if err != nil {
		a.record(OutcomeError)
		a.log.Warn().Err(err).Str("query", query).Msg("geocode search failed")
		return res
	}

	if len(places) > MaxResults {
		places = places[:MaxResults]
	}
	a.cache.Put(query, places)
	a.record(OutcomeOK)
	res.Places = places
	return res
}

// Invalidate marks every running search for key older than seq as stale and
// cancels it.
func (a *Adapter) Invalidate(key string, seq uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.calls[key]
	if !ok || seq <= c.seq {
		return
	}
	c.seq = seq
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (a *Adapter) begin(ctx context.Context, key string, seq uint64) (uint64, context.Context, func()) {
	reqCtx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	c, ok := a.calls[key]
	if !ok {
		c = &call{}
		a.calls[key] = c
	}
	if seq == 0 {
		seq = c.seq + 1
	}
	c.running++
	if seq >= c.seq {
		if c.cancel != nil {
			c.cancel()
		}
		c.seq, c.cancel = seq, cancel
	}
	a.mu.Unlock()

	return seq, reqCtx, func() {
		cancel()
		a.mu.Lock()
		defer a.mu.Unlock()
		if c.seq == seq {
			c.cancel = nil
		}
		c.running--
		if c.running == 0 && a.calls[key] == c {
			delete(a.calls, key)
		}
	}
}

// Forget cancels any search for key and drops its bookkeeping, e.g. when a
// session is reset and its sequence starts over.
func (a *Adapter) Forget(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.calls[key]; ok {
		if c.cancel != nil {
			c.cancel()
		}
		delete(a.calls, key)
	}
}

func (a *Adapter) latest(key string, seq uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.calls[key]
	return ok && c.seq == seq
}

func (a *Adapter) record(outcome string) {
	if a.rec != nil {
		a.rec.GeocodeOutcome(outcome)
	}
}
