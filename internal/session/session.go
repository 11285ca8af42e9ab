// Package session holds in-progress assessment state, keyed by opaque
// tokens handed out at start. State is ephemeral: it lives only until the
// session is finalized into the store or abandoned.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/pavelanni/speakeval/internal/model"
)

var (
	// ErrEmptyName is returned when a session is started without a student name.
	ErrEmptyName = errors.New("student name must not be empty")
	// ErrNoSession is returned when no session exists for a token.
	ErrNoSession = errors.New("no active session")
	// ErrComplete is returned when appending past the catalog size.
	ErrComplete = errors.New("all prompts already answered")
	// ErrOutOfOrder is returned when an appended result does not advance the
	// question sequence.
	ErrOutOfOrder = errors.New("answers must be appended in ascending question order")
)

// State is one student's in-progress assessment.
type State struct {
	StudentName string
	StartedAt   time.Time
	Answers     []model.QuestionResult
}

// Position returns the highest answered question number (0 before the
// first answer).
func (s *State) Position() int {
	if len(s.Answers) == 0 {
		return 0
	}
	return s.Answers[len(s.Answers)-1].QuestionNumber
}

// Manager tracks active sessions. Each student interacts through their own
// token, so concurrent students never share state; the mutex guards only
// the map and append operations, never an external call.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*State
	total    int
}

// NewManager creates a manager for assessments of the given prompt count.
func NewManager(totalQuestions int) *Manager {
	return &Manager{
		sessions: make(map[string]*State),
		total:    totalQuestions,
	}
}

// Start creates a fresh session for the named student and returns its token.
// Starting is always a reset; any prior state held under another token for
// the same student is simply left to expire with its token.
func (m *Manager) Start(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}

	token, err := generateToken()
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = &State{
		StudentName: name,
		StartedAt:   time.Now(),
	}
	return token, nil
}

// Get returns a snapshot of the session for the given token.
func (m *Manager) Get(token string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[token]
	if !ok {
		return State{}, ErrNoSession
	}
	snap := State{
		StudentName: s.StudentName,
		StartedAt:   s.StartedAt,
		Answers:     make([]model.QuestionResult, len(s.Answers)),
	}
	copy(snap.Answers, s.Answers)
	return snap, nil
}

// Append records one answered prompt. Answers never exceed the catalog size
// and question numbers are strictly increasing within a session.
func (m *Manager) Append(token string, qr model.QuestionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return ErrNoSession
	}
	if len(s.Answers) >= m.total {
		return ErrComplete
	}
	if qr.QuestionNumber <= s.Position() {
		return ErrOutOfOrder
	}
	s.Answers = append(s.Answers, qr)
	return nil
}

// Delete discards a session. Deleting an unknown token is a no-op.
func (m *Manager) Delete(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
