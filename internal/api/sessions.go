package api

import (
	"sync"

	"dpack/internal/errors"
	"dpack/internal/metrics"
	"dpack/internal/preview"
	"dpack/internal/session"

	"github.com/google/uuid"
)

type entry struct {
	session *session.Session
	gallery *preview.Gallery
}

// Sessions keeps the sessions opened over HTTP, each with its own gallery.
type Sessions struct {
	mu       sync.RWMutex
	items    map[string]*entry
	opts     session.Options
	previews *preview.Registry
}

func NewSessions(opts session.Options, previews *preview.Registry) *Sessions {
	return &Sessions{
		items:    make(map[string]*entry),
		opts:     opts,
		previews: previews,
	}
}

// Open loads data into a new session and returns its id.
func (s *Sessions) Open(data []byte, fileName string) (string, *session.Session, error) {
	sess := session.New(s.opts)
	if err := sess.Load(data, fileName); err != nil {
		return "", nil, err
	}

	id := uuid.New().String()
	s.mu.Lock()
	s.items[id] = &entry{session: sess, gallery: s.previews.NewGallery()}
	metrics.SetSessionsActive(len(s.items))
	s.mu.Unlock()
	return id, sess, nil
}

func (s *Sessions) get(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[id]
	if !ok {
		return nil, errors.NotFound("session " + id + " not found")
	}
	return e, nil
}

func (s *Sessions) Get(id string) (*session.Session, error) {
	e, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return e.session, nil
}

// Close drops a session and releases its preview handles.
func (s *Sessions) Close(id string) error {
	s.mu.Lock()
	e, ok := s.items[id]
	delete(s.items, id)
	metrics.SetSessionsActive(len(s.items))
	s.mu.Unlock()

	if !ok {
		return errors.NotFound("session " + id + " not found")
	}
	e.gallery.Close()
	return e.session.Close()
}

// CloseAll drops every session.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	items := s.items
	s.items = make(map[string]*entry)
	metrics.SetSessionsActive(0)
	s.mu.Unlock()

	for _, e := range items {
		e.gallery.Close()
		e.session.Close()
	}
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
