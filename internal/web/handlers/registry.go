package handlers

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/blinkpay/internal/flow"
)

// FlowRegistry tracks the live flows of every session. A session holds at
// most one flow of each kind; a new flow replaces and tears down the old one.
type FlowRegistry struct {
	sessions map[string]map[flow.Kind]flow.Flow
	log      zerolog.Logger
	mu       sync.RWMutex
}

// NewFlowRegistry creates an empty registry.
func NewFlowRegistry(log zerolog.Logger) *FlowRegistry {
	return &FlowRegistry{
		sessions: make(map[string]map[flow.Kind]flow.Flow),
		log:      log.With().Str("component", "flows").Logger(),
	}
}

// Put registers f for the session.
func (r *FlowRegistry) Put(sessionID string, f flow.Flow) {
	r.mu.Lock()
	flows, ok := r.sessions[sessionID]
	if !ok {
		flows = make(map[flow.Kind]flow.Flow)
		r.sessions[sessionID] = flows
	}
	old := flows[f.FlowKind()]
	flows[f.FlowKind()] = f
	r.mu.Unlock()

	if old != nil {
		r.log.Debug().Str("flow_id", old.FlowID()).Msg("replacing flow")
		old.Close()
	}
}

// Get returns the session's flow with the given ID.
func (r *FlowRegistry) Get(sessionID, flowID string) flow.Flow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.sessions[sessionID] {
		if f.FlowID() == flowID {
			return f
		}
	}
	return nil
}

// Remove tears down and forgets the session's flow with the given ID.
func (r *FlowRegistry) Remove(sessionID, flowID string) bool {
	r.mu.Lock()
	var found flow.Flow
	for kind, f := range r.sessions[sessionID] {
		if f.FlowID() == flowID {
			found = f
			delete(r.sessions[sessionID], kind)
			break
		}
	}
	r.mu.Unlock()

	if found == nil {
		return false
	}
	found.Close()
	return true
}

// CloseSession tears down every flow of a session.
func (r *FlowRegistry) CloseSession(sessionID string) {
	r.mu.Lock()
	flows := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	for _, f := range flows {
		f.Close()
	}
}

// CloseAll tears down every flow.
func (r *FlowRegistry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]map[flow.Kind]flow.Flow)
	r.mu.Unlock()

	for _, flows := range sessions {
		for _, f := range flows {
			f.Close()
		}
	}
}

// Count returns the number of live flows.
func (r *FlowRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, flows := range r.sessions {
		n += len(flows)
	}
	return n
}

// SessionCount returns the number of live flows of a session.
func (r *FlowRegistry) SessionCount(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[sessionID])
}

// lookupFlow returns the session's flow with the given ID if it has type T.
func lookupFlow[T flow.Flow](r *FlowRegistry, sessionID, flowID string) (T, bool) {
	f, ok := r.Get(sessionID, flowID).(T)
	return f, ok
}
