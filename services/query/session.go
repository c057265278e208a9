// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import "sync"

// Exchange is one resolved (question, condition) pair in a session's history.
type Exchange struct {
	Question  string
	Condition Condition
}

// Session is per-caller conversational memory: a bounded, append-only
// sequence of past exchanges, most recent last.
//
// Thread Safety: All methods are safe for concurrent use; appends on the
// same session are serialized by the session's own mutex.
type Session struct {
	mu         sync.Mutex
	id         string
	history    []Exchange
	maxHistory int
}

// ID returns the opaque caller-supplied session identifier.
func (s *Session) ID() string {
	return s.id
}

// Append records a resolved exchange, evicting the oldest entry once the
// bounded history is full. A nil session drops the exchange, so anonymous
// requests need no special casing upstream.
func (s *Session) Append(question string, cond Condition) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, Exchange{Question: question, Condition: cond})
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
}

// History returns a copy of the session's exchanges, oldest first. A nil
// session has no history.
func (s *Session) History() []Exchange {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Exchange, len(s.history))
	copy(out, s.history)
	return out
}

// DefaultMaxHistory bounds per-session memory when no limit is configured.
const DefaultMaxHistory = 10

// SessionStore owns every session for the life of the process.
//
// Description:
//
//	Sessions are created lazily on first use and never destroyed; the
//	practical bound on store growth is external session hygiene (callers
//	reusing identifiers), which is an operational concern rather than a
//	guarantee enforced here. Creation is idempotent: repeated identifiers
//	reuse the existing session.
//
// Thread Safety: SessionStore is safe for concurrent use. The store map is
// guarded by its own lock; history mutation is serialized per session.
type SessionStore struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	maxHistory int
}

// NewSessionStore creates an empty store. maxHistory <= 0 falls back to
// DefaultMaxHistory.
func NewSessionStore(maxHistory int) *SessionStore {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &SessionStore{
		sessions:   make(map[string]*Session),
		maxHistory: maxHistory,
	}
}

// GetOrCreate returns the session for id, creating it on first use.
func (st *SessionStore) GetOrCreate(id string) *Session {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if ok {
		return s
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		return s
	}
	s = &Session{id: id, maxHistory: st.maxHistory}
	st.sessions[id] = s
	return s
}

// Len returns the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
