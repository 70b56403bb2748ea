package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"wb-products-bot/internal/domain"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Once(_ context.Context, key string, ttl time.Duration, fn func() error) error {
	c.mu.Lock()
	_, ok := c.data[key]
	if !ok {
		c.data[key] = []byte("1")
	}
	c.mu.Unlock()
	if ok {
		return nil
	}
	return fn()
}

func (c *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (c *memCache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func sampleSession(userID int64) domain.PagerSession {
	return domain.PagerSession{
		UserID:      userID,
		CurrentPage: 1,
		CreatedAt:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Results: []domain.CredentialResult{
			{Label: "a", Kind: domain.CredentialUserOwned, Threshold: 28, Products: []domain.ReconciledProduct{{ProductID: 1, RealDiscount: 31.5, SubjectName: "Шторы"}}},
			{Label: "b", Kind: domain.CredentialSharedDefault, Threshold: 28, HadError: true, Error: "ошибка API 401"},
		},
	}
}

func checkStore(t *testing.T, store domain.SessionStore) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, 7); ok || err != nil {
		t.Fatalf("ожидали отсутствие сессии, получили ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, sampleSession(7)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	got, ok, err := store.Get(ctx, 7)
	if err != nil || !ok {
		t.Fatalf("ожидали сессию, получили ok=%v err=%v", ok, err)
	}
	if got.CurrentPage != 1 || len(got.Results) != 2 || got.Results[0].Products[0].SubjectName != "Шторы" {
		t.Fatalf("неожиданная сессия: %+v", got)
	}
	if !got.Results[1].IsShared() || got.Results[1].Error != "ошибка API 401" {
		t.Fatalf("потерян тип ключа: %+v", got.Results[1])
	}
	if err := store.Clear(ctx, 7); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, ok, _ := store.Get(ctx, 7); ok {
		t.Fatalf("сессия должна быть удалена")
	}
}

func TestMemoryStore(t *testing.T) {
	checkStore(t, NewMemory())
}

func TestCachedStore(t *testing.T) {
	cache := newMemCache()
	store := NewCached(cache, time.Hour)
	checkStore(t, store)

	_ = store.Set(context.Background(), sampleSession(8))
	if cache.ttls["pager:session:8"] != time.Hour {
		t.Fatalf("ожидали TTL час, получили %v", cache.ttls["pager:session:8"])
	}
}

func TestCachedStoreCorrupted(t *testing.T) {
	cache := newMemCache()
	cache.data["pager:session:1"] = []byte("не snappy")
	_, ok, err := NewCached(cache, time.Minute).Get(context.Background(), 1)
	if err != nil || ok {
		t.Fatalf("повреждённая сессия должна читаться как отсутствующая: ok=%v err=%v", ok, err)
	}
	if _, left := cache.data["pager:session:1"]; left {
		t.Fatalf("повреждённая запись должна удаляться")
	}
}
