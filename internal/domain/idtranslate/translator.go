// Package idtranslate implements the per-session bidirectional mapping
// between client-visible request IDs and freshly minted backend IDs.
package idtranslate

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcpbridge/mcpbridge/pkg/mcp"
)

// ReplySink receives the eventual backend response (or a synthesized
// failure) for one in-flight request. It is whatever ownership handle the
// caller needs to deliver that response back to the original waiter — a
// buffered channel in the common case.
type ReplySink chan<- *mcp.Response

// Mapping is one row of the translator's table: a client-visible request
// id bound to the backend-side id and the sink that will receive the
// response.
type Mapping struct {
	ClientID   mcp.RequestID
	BackendID  mcp.RequestID
	InsertedAt time.Time
	Sink       ReplySink
}

// Translator is a per-session ID translator. It is safe for concurrent use;
// the exclusive section around the map is held for O(1) work only, per the
// concurrency model's synchronization note.
type Translator struct {
	mu       sync.Mutex
	byClient map[string]*Mapping // client id key -> mapping
	byBackend map[string]*Mapping // backend id key -> mapping
	counter  uint64
	ttl      time.Duration
	prefix   string
}

// DefaultPrefix is the backend-ID prefix used when New is called without an
// explicit one, making generated IDs visually distinguishable from
// client-originated ones in logs.
const DefaultPrefix = "p-"

// New constructs a Translator whose mappings expire after ttl (the
// session's request timeout plus a small grace). A zero prefix defaults
// to DefaultPrefix.
func New(ttl time.Duration, prefix string) *Translator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Translator{
		byClient:  make(map[string]*Mapping),
		byBackend: make(map[string]*Mapping),
		ttl:       ttl,
		prefix:    prefix,
	}
}

// Intake generates a fresh backend ID, inserts a Mapping for clientID, and
// returns the backend ID to substitute into the outgoing request. clientID
// is assumed not already outstanding; the reverse-request path (server-
// issued ids, which this proxy does not police for client-style duplicate
// rejection) is the only caller left using this directly. The
// client-request path must use IntakeIfAbsent instead, since overwriting an
// already-outstanding clientID's byClient entry here would leave its old
// mapping reachable only via byBackend, which corrupts Resolve's later
// lookup for the original request.
func (t *Translator) Intake(clientID mcp.RequestID, sink ReplySink) mcp.RequestID {
	m := t.newMapping(clientID, sink)

	t.mu.Lock()
	t.byClient[clientID.Key()] = m
	t.byBackend[m.BackendID.Key()] = m
	t.mu.Unlock()

	return m.BackendID
}

// IntakeIfAbsent is Intake's duplicate-safe counterpart: it atomically
// checks whether clientID is already outstanding and, if so, inserts
// nothing and returns ok=false instead of overwriting the existing mapping.
// This is what the client-request path uses to reject a duplicate id with
// mcperr.ErrDuplicateID rather than corrupt the translator's state.
func (t *Translator) IntakeIfAbsent(clientID mcp.RequestID, sink ReplySink) (backendID mcp.RequestID, ok bool) {
	m := t.newMapping(clientID, sink)

	t.mu.Lock()
	if _, exists := t.byClient[clientID.Key()]; exists {
		t.mu.Unlock()
		return mcp.RequestID{}, false
	}
	t.byClient[clientID.Key()] = m
	t.byBackend[m.BackendID.Key()] = m
	t.mu.Unlock()

	return m.BackendID, true
}

// newMapping mints a fresh backend id and builds the Mapping to insert; the
// counter increment happens outside the map lock since it's already atomic.
func (t *Translator) newMapping(clientID mcp.RequestID, sink ReplySink) *Mapping {
	n := atomic.AddUint64(&t.counter, 1)
	backendID := mcp.StringID(t.prefix + strconv.FormatUint(n, 10))
	return &Mapping{
		ClientID:   clientID,
		BackendID:  backendID,
		InsertedAt: time.Now(),
		Sink:       sink,
	}
}

// Resolve removes and returns the mapping for a backend response's id. The
// second return is false if backendID is unknown (already reaped, already
// resolved, or never issued) — the caller must log at warn and drop the
// response rather than forward it.
func (t *Translator) Resolve(backendID mcp.RequestID) (*Mapping, bool) {
	key := backendID.Key()

	t.mu.Lock()
	m, ok := t.byBackend[key]
	if ok {
		delete(t.byBackend, key)
		delete(t.byClient, m.ClientID.Key())
	}
	t.mu.Unlock()

	return m, ok
}

// Reap removes and returns every mapping older than the translator's TTL as
// of now. The caller is responsible for delivering a Timeout error to each
// returned mapping's sink.
func (t *Translator) Reap(now time.Time) []*Mapping {
	var expired []*Mapping

	t.mu.Lock()
	for key, m := range t.byBackend {
		if now.Sub(m.InsertedAt) > t.ttl {
			expired = append(expired, m)
			delete(t.byBackend, key)
			delete(t.byClient, m.ClientID.Key())
		}
	}
	t.mu.Unlock()

	return expired
}

// DrainAll removes every outstanding mapping unconditionally, used on
// session shutdown so each waiting client sink can be resolved with
// ConnectionClosed.
func (t *Translator) DrainAll() []*Mapping {
	t.mu.Lock()
	drained := make([]*Mapping, 0, len(t.byBackend))
	for _, m := range t.byBackend {
		drained = append(drained, m)
	}
	t.byBackend = make(map[string]*Mapping)
	t.byClient = make(map[string]*Mapping)
	t.mu.Unlock()

	return drained
}

// Len reports the number of outstanding mappings, used by the in-flight
// table size guard.
func (t *Translator) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byBackend)
}
