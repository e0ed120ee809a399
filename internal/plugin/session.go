package plugin

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/kathak/internal/metrics"
	"github.com/ayusman/kathak/internal/protocol"
)

// Session is the live state of one plugin conversation. The token is an
// opaque unique string regenerated on every start or replay; responses
// arriving with a stale token are discarded.
type Session struct {
	Token        string
	PluginID     string
	Depth        int
	Context      json.RawMessage
	InputMode    string
	PollInterval int
	LastSelected string
	Replay       bool
	StartedAt    time.Time
}

// SessionManager tracks the single active plugin session. Replay sessions
// are issued tokens but never become the active session; they exist only so
// their late side effects can be attributed.
type SessionManager struct {
	mu     sync.RWMutex
	active *Session
}

// NewSessionManager creates an empty SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{}
}

// Start opens a session for the given plugin, replacing any active one.
func (m *SessionManager) Start(pluginID string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active = &Session{
		Token:     uuid.NewString(),
		PluginID:  pluginID,
		StartedAt: time.Now(),
	}
	metrics.SessionActive(true)

	return *m.active
}

// StartReplay mints a detached session for re-running a recorded plugin
// interaction. It does not touch the active session.
func (m *SessionManager) StartReplay(pluginID string) Session {
	return Session{
		Token:     uuid.NewString(),
		PluginID:  pluginID,
		Replay:    true,
		StartedAt: time.Now(),
	}
}

// Active returns a snapshot of the current session, or false if none is open.
func (m *SessionManager) Active() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.active == nil {
		return Session{}, false
	}
	return *m.active, true
}

// Validate reports whether token identifies the currently active session.
func (m *SessionManager) Validate(token string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active != nil && m.active.Token == token
}

// Close ends the active session, returning it for cleanup (killing its
// in-flight process, stopping its poll timer). Returns false if no session
// was open.
func (m *SessionManager) Close() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return Session{}, false
	}

	closed := *m.active
	m.active = nil
	metrics.SessionActive(false)

	return closed, true
}

// SetLastSelected records the item id the user last activated, echoed on
// later requests.
func (m *SessionManager) SetLastSelected(token, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.Token == token {
		m.active.LastSelected = id
	}
}

// ApplyResponse folds a response's cross-cutting signals into the session
// identified by token: navigation depth, context, input mode, and poll
// interval. It returns the updated snapshot, or false if the token is stale
// and the response must be discarded.
func (m *SessionManager) ApplyResponse(token string, sig NavSignals, resp *protocol.Response) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil || m.active.Token != token {
		return Session{}, false
	}

	m.active.Depth = NextDepth(m.active.Depth, sig, resp)

	if resp.Context != nil {
		m.active.Context = resp.Context
	}
	if resp.InputMode != "" {
		m.active.InputMode = resp.InputMode
	}
	if resp.PollInterval > 0 {
		m.active.PollInterval = resp.PollInterval
	}

	return *m.active, true
}
