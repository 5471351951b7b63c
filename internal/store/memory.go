package store

import (
	"sync"

	"weekplanner/internal/model"
)

// MemoryStore keeps the document in memory.
type MemoryStore struct {
	mu      sync.Mutex
	doc     Document
	saves   int
	saveErr error
}

func NewMemoryStore(doc Document) *MemoryStore {
	return &MemoryStore{doc: doc.Clone()}
}

func (m *MemoryStore) Load() (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc.Clone(), nil
}

func (m *MemoryStore) Save(doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return &model.PersistenceError{Op: "save", Err: m.saveErr}
	}
	m.doc = doc.Clone()
	m.saves++
	return nil
}

// Saves returns how many saves succeeded.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// FailSaves makes every following Save return err without storing anything.
// A nil err restores normal saves.
func (m *MemoryStore) FailSaves(err error) {
	m.mu.Lock()
	m.saveErr = err
	m.mu.Unlock()
}
