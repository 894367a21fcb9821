// Package pending holds authorization requests between the initial validation
// and the resource owner's consent decision.
package pending

import (
	"errors"
	"sync"

	"github.com/go-authgate/oauthd/internal/util"
)

// ErrNotFound is returned by TakeOnce for unknown or already consumed ids.
var ErrNotFound = errors.New("pending: request not found")

// Request is a validated authorization request waiting for consent. No user
// is attached yet; the resource owner binds at consent time.
type Request struct {
	ClientID     string
	ClientName   string
	RedirectURI  string
	ResponseType string
	Scope        string
	State        string
	Nonce        string
}

// Store is the storage contract for pending authorization requests.
// InsertUnique must generate the id and insert atomically; TakeOnce must
// remove and return a request exactly once.
type Store interface {
	InsertUnique(req *Request) (string, error)
	TakeOnce(id string) (*Request, error)
}

// MemoryStore is a mutex-guarded in-process Store. It is process-local:
// multi-instance deployments need a shared implementation behind the same
// interface.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]*Request
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]*Request),
	}
}

// InsertUnique stores the request under a freshly generated id. Generation,
// uniqueness check and insert happen under one lock acquisition, so two
// concurrent inserts can never share an id.
func (m *MemoryStore) InsertUnique(req *Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		id, err := util.CryptoRandomString(32)
		if err != nil {
			return "", err
		}
		if _, exists := m.requests[id]; exists {
			continue
		}
		m.requests[id] = req
		return id, nil
	}
}

// TakeOnce removes and returns the request for id. A second call with the
// same id observes ErrNotFound, which is what makes consent single-shot.
func (m *MemoryStore) TakeOnce(id string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, exists := m.requests[id]
	if !exists {
		return nil, ErrNotFound
	}
	delete(m.requests, id)
	return req, nil
}

// Len reports the number of requests currently pending.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
