package session

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/vbonduro/calscan/internal/scanner"
)

// Factory builds the orchestrator for a new session.
type Factory func() *scanner.Orchestrator

// Registry maps browser session ids to their orchestrators. Idle sessions
// expire after ttl; the least recently used is evicted beyond size.
type Registry struct {
	cache   *expirable.LRU[string, *scanner.Orchestrator]
	factory Factory
	logger  *slog.Logger
}

func NewRegistry(size int, ttl time.Duration, factory Factory, logger *slog.Logger) *Registry {
	onEvict := func(id string, _ *scanner.Orchestrator) {
		logger.Debug("session evicted", "session_id", id)
	}
	return &Registry{
		cache:   expirable.NewLRU[string, *scanner.Orchestrator](size, onEvict, ttl),
		factory: factory,
		logger:  logger,
	}
}

// Get returns the orchestrator for id. A hit counts as activity: the entry
// moves to the front and its ttl starts over, since expirable.LRU.Get only
// does the former.
func (r *Registry) Get(id string) (*scanner.Orchestrator, bool) {
	if id == "" {
		return nil, false
	}
	o, ok := r.cache.Get(id)
	if !ok {
		return nil, false
	}
	r.cache.Add(id, o)
	return o, true
}

// Create starts a new session and returns its id.
func (r *Registry) Create() (string, *scanner.Orchestrator) {
	id := uuid.NewString()
	o := r.factory()
	r.cache.Add(id, o)
	r.logger.Debug("session created", "session_id", id)
	return id, o
}

// GetOrCreate returns the session for id, creating a new one when id is
// unknown or expired. created reports whether the returned id is new.
func (r *Registry) GetOrCreate(id string) (sid string, o *scanner.Orchestrator, created bool) {
	if o, ok := r.Get(id); ok {
		return id, o, false
	}
	sid, o = r.Create()
	return sid, o, true
}

func (r *Registry) Remove(id string) {
	r.cache.Remove(id)
}

func (r *Registry) Len() int {
	return r.cache.Len()
}
