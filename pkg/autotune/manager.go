// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package autotune

import (
	"errors"
	"sort"
	"sync"
	"time"

	"relaytune/pkg/log"
	"relaytune/pkg/reactor"
)

var (
	ErrUnknownSession   = errors.New("autotune: unknown session")
	ErrDuplicateSession = errors.New("autotune: duplicate session id")
)

type managed struct {
	session *Session
	period  time.Duration
	timer   *reactor.Timer
}

// Manager owns the registered sessions and schedules their sampling
// ticks on the reactor.
type Manager struct {
	reactor *reactor.Reactor
	logger  *log.Logger

	mu       sync.Mutex
	sessions map[string]*managed
}

// NewManager creates a manager dispatching on r.
func NewManager(r *reactor.Reactor, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.GetLogger("autotune")
	}
	return &Manager{
		reactor:  r,
		logger:   logger,
		sessions: make(map[string]*managed),
	}
}

// Add registers a session. The session is not activated.
func (m *Manager) Add(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID()]; ok {
		return ErrDuplicateSession
	}
	m.sessions[s.ID()] = &managed{session: s, period: s.Params().Period}
	m.logger.InfoFields("session registered", log.Fields{
		"session": s.ID(), "name": s.Name()})
	return nil
}

// Activate starts a run and schedules its tick timer.
func (m *Manager) Activate(id string) error {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}

	now := time.Now()
	if err := ms.session.Activate(now); err != nil {
		return err
	}

	m.mu.Lock()
	ms.timer = m.reactor.RegisterTimer(func(now time.Time) time.Time {
		if ms.session.Tick(now) {
			return now.Add(ms.period)
		}
		return time.Time{}
	}, now.Add(ms.period))
	m.mu.Unlock()
	return nil
}

// Deactivate cancels a run. The tick timer unregisters itself on the
// next dispatch once the session reports terminal.
func (m *Manager) Deactivate(id string) error {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}
	return ms.session.Deactivate()
}

// Get returns a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return ms.session, true
}

// List returns all sessions ordered by name, then id.
func (m *Manager) List() []*Session {
	m.mu.Lock()
	out := make([]*Session, 0, len(m.sessions))
	for _, ms := range m.sessions {
		out = append(out, ms.session)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name() != out[j].Name() {
			return out[i].Name() < out[j].Name()
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

// Shutdown cancels every active run so actuators are left idle.
func (m *Manager) Shutdown() {
	for _, s := range m.List() {
		if err := s.Deactivate(); err != nil {
			m.logger.WarnFields("deactivate on shutdown failed", log.Fields{
				"session": s.ID(), "error": err.Error()})
		}
	}
}
