// Package persona resolves the bot identity and keeps LLM output consistent
// with it: settings lookup with caching, personal question classification and
// post-processing of generic self-descriptions.
package persona

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/BotRouter/internal/cache"
	"github.com/BTreeMap/BotRouter/internal/models"
	"github.com/BTreeMap/BotRouter/internal/store"
)

const globalCacheKey = "global"

// Resolver resolves bot identity from Settings rows.
// Lookups fall back user row -> global row -> first row -> defaults.
type Resolver struct {
	settings store.SettingsRepo
	cache    cache.Cache[models.BotInfo]
}

// NewResolver creates a Resolver. The cache may be shared between replicas.
func NewResolver(settings store.SettingsRepo, c cache.Cache[models.BotInfo]) *Resolver {
	return &Resolver{settings: settings, cache: c}
}

func cacheKey(userID int64) string {
	if userID == 0 {
		return globalCacheKey
	}
	return fmt.Sprintf("user_%d", userID)
}

// BotInfo returns the identity for userID. A zero userID selects the global row.
// Storage errors are logged and yield the defaults.
func (r *Resolver) BotInfo(ctx context.Context, userID int64) models.BotInfo {
	key := cacheKey(userID)
	if info, ok := r.cache.Get(ctx, key); ok {
		return info
	}
	return r.load(ctx, userID)
}

// Refresh bypasses the cache and reloads the identity for userID.
func (r *Resolver) Refresh(ctx context.Context, userID int64) models.BotInfo {
	return r.load(ctx, userID)
}

func (r *Resolver) load(ctx context.Context, userID int64) models.BotInfo {
	key := cacheKey(userID)
	settings, err := r.lookup(userID)
	if err != nil {
		slog.Error("Resolver.BotInfo: settings lookup failed, using defaults", "user_id", userID, "error", err)
		return models.DefaultBotInfo()
	}
	var info models.BotInfo
	if settings == nil {
		slog.Warn("Resolver.BotInfo: no settings found, using defaults", "cache_key", key)
		info = models.DefaultBotInfo()
	} else {
		info = models.BotInfoFromSettings(settings)
		slog.Debug("Resolver.BotInfo: loaded", "cache_key", key, "name", info.Name)
	}
	r.cache.Set(ctx, key, info)
	return info
}

func (r *Resolver) lookup(userID int64) (*models.Settings, error) {
	if userID != 0 {
		s, err := r.settings.GetUserSettings(userID)
		if err != nil {
			return nil, fmt.Errorf("failed to get user settings: %w", err)
		}
		if s != nil && strings.TrimSpace(s.BotName) != "" {
			return s, nil
		}
	}
	s, err := r.settings.GetGlobalSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to get global settings: %w", err)
	}
	if s != nil {
		return s, nil
	}
	s, err = r.settings.GetFirstSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to get first settings: %w", err)
	}
	return s, nil
}

// ClearCache drops the cached identity for userID, or every entry when userID is zero.
func (r *Resolver) ClearCache(ctx context.Context, userID int64) {
	if userID == 0 {
		r.cache.Clear(ctx)
		slog.Info("Resolver.ClearCache: bot info cache cleared")
		return
	}
	r.cache.Invalidate(ctx, cacheKey(userID))
	slog.Info("Resolver.ClearCache: bot info cache cleared", "user_id", userID)
}
