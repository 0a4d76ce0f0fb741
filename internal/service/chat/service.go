package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/retailbot/support-widget/internal/logging"
	"github.com/retailbot/support-widget/internal/model/chat"
	"github.com/retailbot/support-widget/internal/service/engine"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionBusy is returned by Reset while a reply or hand-off is pending.
	ErrSessionBusy = errors.New("session is busy")
)

const maxDisplayNameLength = 64

type entry struct {
	session chat.Session
	engine  *engine.Engine
}

// Service owns the live sessions. Every session gets its own engine built
// from the shared options.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	template engine.Options
	log      *logrus.Entry
	now      func() time.Time
}

// NewService returns an empty registry. template is copied for every new
// engine with the session id filled in.
func NewService(template engine.Options) *Service {
	log := template.Logger
	if log == nil {
		log = logging.Component(logging.Discard(), "chat")
	}
	now := template.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		sessions: make(map[string]*entry),
		template: template,
		log:      log,
		now:      now,
	}
}

// CreateSession starts a conversation. displayName is optional and only
// used for presentation.
func (s *Service) CreateSession(_ context.Context, displayName string) (chat.Session, error) {
	displayName = strings.TrimSpace(displayName)
	if len(displayName) > maxDisplayNameLength {
		displayName = displayName[:maxDisplayNameLength]
	}

	session := chat.Session{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		CreatedAt:   s.now().UTC(),
	}

	opts := s.template
	opts.SessionID = session.ID
	eng := engine.New(opts)

	s.mu.Lock()
	s.sessions[session.ID] = &entry{session: session, engine: eng}
	count := len(s.sessions)
	s.mu.Unlock()

	s.template.Metrics.SetActiveSessions(count)
	s.log.WithField("session_id", session.ID).Info("Session created")
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	return e.session, nil
}

// Engine returns the engine driving a session.
func (s *Service) Engine(_ context.Context, sessionID string) (*engine.Engine, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return e.engine, nil
}

// Submit forwards a customer turn. accepted is false when the engine ignored
// it.
func (s *Service) Submit(_ context.Context, sessionID, text string) (accepted bool, state chat.State, err error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return false, "", err
	}
	accepted = e.engine.Submit(text)
	return accepted, e.engine.State(), nil
}

// Reset starts the session over from the greeting.
func (s *Service) Reset(_ context.Context, sessionID string) (engine.Snapshot, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return engine.Snapshot{}, err
	}
	if !e.engine.Reset() {
		return e.engine.Snapshot(), ErrSessionBusy
	}
	return e.engine.Snapshot(), nil
}

// CloseSession discards a session and stops its engine.
func (s *Service) CloseSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	count := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	e.engine.Close()
	s.template.Metrics.SetActiveSessions(count)
	s.log.WithField("session_id", sessionID).Info("Session closed")
	return nil
}

// Count returns the number of live sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ExpireIdle closes sessions whose last activity is older than ttl. Sessions
// with a reply still scheduled are left alone.
func (s *Service) ExpireIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	var expired []*entry
	for id, e := range s.sessions {
		if e.engine.Busy() || e.engine.LastActivity().After(cutoff) {
			continue
		}
		expired = append(expired, e)
		delete(s.sessions, id)
	}
	count := len(s.sessions)
	s.mu.Unlock()

	for _, e := range expired {
		e.engine.Close()
	}
	if len(expired) > 0 {
		s.template.Metrics.SetActiveSessions(count)
		s.log.WithField("expired", len(expired)).Info("Expired idle sessions")
	}
	return len(expired)
}

// Shutdown closes every session.
func (s *Service) Shutdown() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range sessions {
		e.engine.Close()
	}
	s.template.Metrics.SetActiveSessions(0)
}

func (s *Service) lookup(sessionID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}
