// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package autotune

import (
	"io"
	"testing"
	"time"

	"relaytune/pkg/log"
	"relaytune/pkg/reactor"
)

func newTestManager() *Manager {
	lg := log.New("test")
	lg.SetWriter(io.Discard)
	return NewManager(reactor.New(), lg)
}

func addSession(t *testing.T, m *Manager, id, name string) *Session {
	t.Helper()
	src := &fakeSource{ok: true, value: 7.0, at: time.Now()}
	s := newTestSession(t, testParams(), src, &recordingActuator{})
	s.id = id
	s.name = name
	if err := m.Add(s); err != nil {
		t.Fatalf("Add(%q): %v", id, err)
	}
	return s
}

func TestManagerAddAndGet(t *testing.T) {
	m := newTestManager()
	s := addSession(t, m, "a", "first")

	got, ok := m.Get("a")
	if !ok || got != s {
		t.Fatalf("Get(a) = %v, %v", got, ok)
	}
	if _, ok := m.Get("nope"); ok {
		t.Fatal("Get returned a session for an unknown id")
	}
}

func TestManagerDuplicateID(t *testing.T) {
	m := newTestManager()
	addSession(t, m, "a", "first")

	src := &fakeSource{ok: true}
	dup := newTestSession(t, testParams(), src, &recordingActuator{})
	dup.id = "a"
	if err := m.Add(dup); err != ErrDuplicateSession {
		t.Fatalf("Add duplicate = %v, want ErrDuplicateSession", err)
	}
}

func TestManagerListOrder(t *testing.T) {
	m := newTestManager()
	addSession(t, m, "c", "zeta")
	addSession(t, m, "a", "alpha")
	addSession(t, m, "b", "alpha")

	list := m.List()
	if len(list) != 3 {
		t.Fatalf("List() has %d sessions, want 3", len(list))
	}
	wantIDs := []string{"a", "b", "c"}
	for i, s := range list {
		if s.ID() != wantIDs[i] {
			t.Fatalf("List()[%d] = %q, want %q", i, s.ID(), wantIDs[i])
		}
	}
}

func TestManagerUnknownSession(t *testing.T) {
	m := newTestManager()
	if err := m.Activate("ghost"); err != ErrUnknownSession {
		t.Fatalf("Activate(ghost) = %v, want ErrUnknownSession", err)
	}
	if err := m.Deactivate("ghost"); err != ErrUnknownSession {
		t.Fatalf("Deactivate(ghost) = %v, want ErrUnknownSession", err)
	}
}

func TestManagerActivateDeactivate(t *testing.T) {
	m := newTestManager()
	s := addSession(t, m, "a", "fermenter")

	if err := m.Activate("a"); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if st := s.Status(); st.State != StateStepUp {
		t.Fatalf("state = %v, want step_up", st.State)
	}
	if err := m.Activate("a"); err != ErrActive {
		t.Fatalf("second Activate = %v, want ErrActive", err)
	}

	if err := m.Deactivate("a"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	st := s.Status()
	if st.State != StateFailed || st.Reason != FailCancelled {
		t.Fatalf("state = %v reason = %q, want failed/cancelled", st.State, st.Reason)
	}
}

func TestManagerShutdownCancelsActive(t *testing.T) {
	m := newTestManager()
	a := addSession(t, m, "a", "one")
	b := addSession(t, m, "b", "two")

	if err := m.Activate("a"); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	m.Shutdown()

	if st := a.Status(); st.State != StateFailed || st.Reason != FailCancelled {
		t.Fatalf("active session state = %v reason = %q", st.State, st.Reason)
	}
	if st := b.Status(); st.State != StateOff {
		t.Fatalf("idle session state = %v, want off", st.State)
	}
}
