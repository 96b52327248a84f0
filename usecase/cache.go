package usecase

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	domainCache "github.com/AzielCF/az-grouppost/domains/cache"
	"github.com/AzielCF/az-grouppost/infrastructure/storage"
)

type cacheService struct {
	store     storage.Store
	ephemeral domainCache.EphemeralStore
}

func NewCacheService(store storage.Store, ephemeral domainCache.EphemeralStore) domainCache.ICacheUsecase {
	return &cacheService{store: store, ephemeral: ephemeral}
}

func (s *cacheService) GetStats(ctx context.Context) (domainCache.CacheStats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return domainCache.CacheStats{}, err
	}
	return domainCache.CacheStats{
		Documents:        st.Documents,
		TotalSize:        st.Bytes,
		HumanSize:        humanize.Bytes(uint64(st.Bytes)),
		EphemeralEntries: s.ephemeral.Len(ctx),
	}, nil
}

func (s *cacheService) ClearEphemeral(ctx context.Context) error {
	n := s.ephemeral.Len(ctx)
	if err := s.ephemeral.Clear(ctx); err != nil {
		return err
	}
	logrus.Infof("[CACHE] cleared %d ephemeral entries", n)
	return nil
}
