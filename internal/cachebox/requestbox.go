package cachebox

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a pending request cannot be restored: the
// identifier was never written, was already consumed, or its TTL expired.
// Callers must treat this as an unrecoverable client error, not a retry.
var ErrNotFound = errors.New("pending request not found")

// PendingRequest is a snapshot of an inbound request's query and form
// parameters. It is created once during the cookie-probe phase and never
// mutated afterwards.
type PendingRequest struct {
	Query url.Values `json:"query"`
	Form  url.Values `json:"form"`
}

// Merged flattens the snapshot into a single parameter set. Form values win
// on key collision, matching the order the original parameters would have
// been read from a live request.
func (p PendingRequest) Merged() url.Values {
	merged := make(url.Values, len(p.Query)+len(p.Form))
	for k, vs := range p.Query {
		merged[k] = append([]string(nil), vs...)
	}
	for k, vs := range p.Form {
		merged[k] = append([]string(nil), vs...)
	}
	return merged
}

// RequestBox is a single-use, TTL-bound message box for PendingRequest
// snapshots. It is deliberately distinct from general caching: keys carry a
// fixed prefix so relayed request payloads can never collide with other
// entries sharing the Store.
type RequestBox struct {
	store Store
	ttl   time.Duration
}

// DefaultTTL is how long a relayed request survives between the probe
// redirect and the resume request.
const DefaultTTL = 3600 * time.Second

const boxPrefix = "reqbox:"

// NewRequestBox wraps store with the message-box contract. A non-positive
// ttl falls back to DefaultTTL.
func NewRequestBox(store Store, ttl time.Duration) *RequestBox {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RequestBox{store: store, ttl: ttl}
}

// Put stores the snapshot under a freshly generated opaque identifier and
// returns it. Each probe invocation writes exactly one entry.
func (b *RequestBox) Put(snapshot PendingRequest) (string, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("encode pending request: %w", err)
	}
	id := uuid.NewString()
	b.store.Set(boxPrefix+id, data, b.ttl)
	return id, nil
}

// Peek reads the snapshot without consuming it. Used by the launch resume
// path, where a page refresh legitimately re-reads the same entry until the
// TTL expires.
func (b *RequestBox) Peek(id string) (PendingRequest, error) {
	return b.get(id)
}

// Take reads and consumes the snapshot. Used by the login resume path: the
// relayed OIDC parameters are single-use.
func (b *RequestBox) Take(id string) (PendingRequest, error) {
	snapshot, err := b.get(id)
	if err != nil {
		return PendingRequest{}, err
	}
	b.store.Delete(boxPrefix + id)
	return snapshot, nil
}

func (b *RequestBox) get(id string) (PendingRequest, error) {
	if id == "" {
		return PendingRequest{}, ErrNotFound
	}
	data, ok := b.store.Get(boxPrefix + id)
	if !ok {
		return PendingRequest{}, ErrNotFound
	}
	var snapshot PendingRequest
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return PendingRequest{}, fmt.Errorf("decode pending request %s: %w", id, err)
	}
	return snapshot, nil
}
