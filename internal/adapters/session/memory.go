package session

import (
	"context"
	"sync"

	"wb-products-bot/internal/domain"
)

// Memory хранит сессии в памяти процесса. После перезапуска сессии теряются.
type Memory struct {
	mu       sync.RWMutex
	sessions map[int64]domain.PagerSession
}

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[int64]domain.PagerSession)}
}

// Get возвращает сессию пользователя, если она есть.
func (m *Memory) Get(_ context.Context, userID int64) (domain.PagerSession, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return s, ok, nil
}

// Set заменяет сессию пользователя.
func (m *Memory) Set(_ context.Context, s domain.PagerSession) error {
	m.mu.Lock()
	m.sessions[s.UserID] = s
	m.mu.Unlock()
	return nil
}

// Clear удаляет сессию пользователя.
func (m *Memory) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
	return nil
}
