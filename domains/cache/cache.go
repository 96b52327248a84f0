package cache

import (
	"context"
	"time"
)

// EphemeralStore is a short-lived cache for remote lookups (role lists,
// single-group details) shared by one permission scan.
type EphemeralStore interface {
	// Get decodes the entry into dest and reports whether a live entry existed.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Clear(ctx context.Context) error
	Len(ctx context.Context) int
}

type CacheStats struct {
	Documents        int    `json:"documents"`
	TotalSize        int64  `json:"total_size"`
	HumanSize        string `json:"human_size"`
	EphemeralEntries int    `json:"ephemeral_entries"`
}

type ICacheUsecase interface {
	GetStats(ctx context.Context) (CacheStats, error)
	ClearEphemeral(ctx context.Context) error
}
