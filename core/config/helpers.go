package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetAllSettings returns the non-secret settings currently loaded in memory.
func GetAllSettings() map[string]any {
	if Global == nil {
		return map[string]any{}
	}
	return map[string]any{
		"app_version":             Global.App.Version,
		"app_debug":               Global.App.Debug,
		"app_timezone":            Global.App.Timezone,
		"storage_driver":          Global.Storage.Driver,
		"valkey_enabled":          Global.Valkey.Enabled,
		"vrchat_min_interval":     Global.VRChat.MinInterval.String(),
		"vrchat_max_retries":      Global.VRChat.MaxRetries,
		"groups_cache_ttl":        Global.Groups.CacheTTL.String(),
		"groups_refresh_cooldown": Global.Groups.RefreshCooldown.String(),
		"encryption_configured":   Global.Security.SecretKey != "",
	}
}

// Helpers
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		vLower := strings.ToLower(v)
		return vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
	}
	return fallback
}

// getEnvDuration accepts Go durations ("750ms") or a bare number of milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	return fallback
}
