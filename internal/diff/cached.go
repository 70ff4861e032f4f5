package diff

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedService — Service с LRU-кэшем результатов.
//
// Ключ — пара ревизий. Ревизии неизменяемы, поэтому запись не
// инвалидируется; вытеснение только по ёмкости.
type CachedService struct {
	inner Service
	cache *lru.Cache[string, []string]
}

// NewCached оборачивает Service LRU-кэшем на size записей.
func NewCached(inner Service, size int) (*CachedService, error) {
	cache, err := lru.New[string, []string](size)
	if err != nil {
		return nil, fmt.Errorf("create diff cache: %w", err)
	}
	return &CachedService{inner: inner, cache: cache}, nil
}

func (s *CachedService) ModifiedFiles(ctx context.Context, base, head string) ([]string, error) {
	key := base + ".." + head

	if files, ok := s.cache.Get(key); ok {
		return files, nil
	}

	files, err := s.inner.ModifiedFiles(ctx, base, head)
	if err != nil {
		return nil, err
	}

	s.cache.Add(key, files)
	return files, nil
}
