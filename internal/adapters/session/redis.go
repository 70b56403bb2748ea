package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang/snappy"

	"wb-products-bot/internal/domain"
)

const keyPrefix = "pager:session:"

// Cached хранит сессии в domain.Cache (Redis) в виде JSON, сжатого snappy.
type Cached struct {
	cache domain.Cache
	ttl   time.Duration
}

// NewCached создаёт хранилище с заданным временем жизни сессии.
func NewCached(cache domain.Cache, ttl time.Duration) *Cached {
	return &Cached{cache: cache, ttl: ttl}
}

func sessionKey(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

// Get читает сессию пользователя. Повреждённая запись удаляется и считается отсутствующей.
func (c *Cached) Get(ctx context.Context, userID int64) (domain.PagerSession, bool, error) {
	raw, err := c.cache.Get(ctx, sessionKey(userID))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.PagerSession{}, false, nil
	}
	if err != nil {
		return domain.PagerSession{}, false, err
	}
	s, err := decode(raw)
	if err != nil {
		_ = c.cache.Del(ctx, sessionKey(userID))
		return domain.PagerSession{}, false, nil
	}
	return s, true, nil
}

func decode(raw []byte) (domain.PagerSession, error) {
	var s domain.PagerSession
	data, err := snappy.Decode(nil, raw)
	if err != nil {
		return s, fmt.Errorf("распаковка сессии: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("декодирование сессии: %w", err)
	}
	return s, nil
}

// Set сохраняет сессию целиком, заменяя предыдущую.
func (c *Cached) Set(ctx context.Context, s domain.PagerSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("кодирование сессии: %w", err)
	}
	return c.cache.Set(ctx, sessionKey(s.UserID), snappy.Encode(nil, data), c.ttl)
}

// Clear удаляет сессию пользователя.
func (c *Cached) Clear(ctx context.Context, userID int64) error {
	return c.cache.Del(ctx, sessionKey(userID))
}
