package session

import (
	"context"
	"errors"
	"time"

	"github.com/lox/spend-advisor/internal/llm"
	"golang.org/x/exp/slices"
)

var (
	// ErrNotFound is returned by Store.Get for unknown ids
	ErrNotFound = errors.New("session not found")

	// ErrBusy is returned when another operation holds the session for
	// longer than the lock timeout
	ErrBusy = errors.New("session busy")
)

// Session is one caller's conversation with the model
type Session struct {
	ID        string        `json:"id"`
	History   []llm.Message `json:"history"`
	Primed    bool          `json:"primed"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// New creates an empty, unprimed session
func New(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds turns to the history and bumps UpdatedAt
func (s *Session) Append(now time.Time, messages ...llm.Message) {
	s.History = append(s.History, messages...)
	s.UpdatedAt = now
}

// Files returns every file referenced in the history
func (s *Session) Files() []llm.FileRef {
	var refs []llm.FileRef
	for _, m := range s.History {
		refs = append(refs, m.Files()...)
	}
	return refs
}

// Clone returns a copy that shares no mutable state with s
func (s *Session) Clone() *Session {
	c := *s
	c.History = make([]llm.Message, len(s.History))
	for i, m := range s.History {
		parts := slices.Clone(m.Parts)
		for j, p := range parts {
			if p.File != nil {
				ref := *p.File
				parts[j].File = &ref
			}
		}
		c.History[i] = llm.Message{Role: m.Role, Parts: parts}
	}
	return &c
}

// Store persists sessions
type Store interface {
	// Get returns the session or ErrNotFound
	Get(ctx context.Context, id string) (*Session, error)

	// Save inserts or replaces the session
	Save(ctx context.Context, s *Session) error

	// Delete removes the session, deleting an unknown id is not an error
	Delete(ctx context.Context, id string) error

	// List returns every stored session
	List(ctx context.Context) ([]*Session, error)
}
