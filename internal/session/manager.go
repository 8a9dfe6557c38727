package session

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/chis/embedlab/internal/codec"
	"github.com/chis/embedlab/internal/logging"
	"github.com/chis/embedlab/internal/options"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxSessions bounds the manager when no size is given.
const DefaultMaxSessions = 256

// ErrSessionNotFound is returned for unknown or evicted session ids.
var ErrSessionNotFound = errors.New("session not found")

// Manager holds sessions in a bounded LRU. The least recently used session is
// closed when the bound is exceeded.
type Manager struct {
	sessions *lru.Cache[string, *Session]
	log      *logging.Logger
}

// NewManager creates a manager holding at most size sessions.
func NewManager(size int) (*Manager, error) {
	if size <= 0 {
		size = DefaultMaxSessions
	}

	m := &Manager{log: logging.Default().WithField("component", "session")}

	cache, err := lru.NewWithEvict[string, *Session](size, m.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	m.sessions = cache
	return m, nil
}

func (m *Manager) onEvict(id string, s *Session) {
	s.close()
	m.log.Debug("Session %s closed", id)
}

// Create opens a session over a copy of a. It fails with vfs.ErrInvariant
// when the assignment's filenames repeat.
func (m *Manager) Create(a codec.Assignment, opts options.DisplayOptions) (*Session, error) {
	return m.open(a, opts, "")
}

func (m *Manager) open(a codec.Assignment, opts options.DisplayOptions, parseError string) (*Session, error) {
	s, err := newSession(uuid.New().String(), a, opts)
	if err != nil {
		return nil, err
	}
	s.parseError = parseError
	m.sessions.Add(s.ID, s)
	m.log.Debug("Session %s created with %d files", s.ID, len(a.Files))
	return s, nil
}

// CreateFromToken opens a session from embed page parameters: display options
// plus the "data" token merged over the default template. A token that fails
// to decode, or decodes to an unusable file set, falls back to the default
// template and the failure is kept as the session's ParseError.
func (m *Manager) CreateFromToken(params url.Values) (*Session, error) {
	opts := options.Parse(params)
	template := codec.DefaultAssignment()

	token := options.Token(params)
	if token == "" {
		return m.Create(template, opts)
	}

	a, err := codec.Decode(token, template)
	if err == nil {
		s, createErr := m.Create(a, opts)
		if createErr == nil {
			return s, nil
		}
		err = createErr
	}

	m.log.Warn("Falling back to default template: %v", err)
	return m.open(template, opts, err.Error())
}

// Get returns a session and marks it recently used.
func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Close removes and closes a session.
func (m *Manager) Close(id string) error {
	if !m.sessions.Remove(id) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.sessions.Purge()
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	return m.sessions.Len()
}
