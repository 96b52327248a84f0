package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"

	"github.com/AzielCF/az-grouppost/infrastructure/valkey"
)

// ValkeyCacheStore keeps ephemeral entries in Valkey and lets the server expire them.
type ValkeyCacheStore struct {
	client *valkey.Client
	prefix string
}

func NewValkeyCacheStore(client *valkey.Client) *ValkeyCacheStore {
	return &ValkeyCacheStore{
		client: client,
		prefix: client.Key("ephemeral") + ":",
	}
}

func (s *ValkeyCacheStore) inner() valkeylib.Client {
	return s.client.Inner()
}

func (s *ValkeyCacheStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	cmd := s.inner().B().Get().Key(s.prefix + key).Build()
	data, err := s.inner().Do(ctx, cmd).AsBytes()
	if err != nil {
		if valkey.IsNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return true, nil
}

func (s *ValkeyCacheStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	set := s.inner().B().Set().Key(s.prefix + key).Value(string(data))
	cmd := set.Build()
	if ttl > 0 {
		cmd = set.Ex(ttl).Build()
	}
	if err := s.inner().Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set cache entry %s: %w", key, err)
	}
	return nil
}

func (s *ValkeyCacheStore) Clear(ctx context.Context) error {
	n, err := s.client.DeletePrefix(ctx, s.prefix)
	if err != nil {
		return err
	}
	logrus.Debugf("[CACHE] Cleared %d valkey entries", n)
	return nil
}

func (s *ValkeyCacheStore) Len(ctx context.Context) int {
	keys, err := s.client.ScanKeys(ctx, s.prefix+"*")
	if err != nil {
		logrus.WithError(err).Warn("[CACHE] Failed to count valkey entries")
		return 0
	}
	return len(keys)
}
