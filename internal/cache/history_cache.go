package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"vextral/internal/model"
)

// HistoryCache keeps recently read chat history per tenant (and per source
// document) in Redis. A short-lived dirty marker suppresses caching right
// after a write so readers don't pin a stale snapshot while the async persist
// worker catches up.
type HistoryCache struct {
	client         *redisv9.Client
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewHistoryCache(client *redisv9.Client, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *HistoryCache) GetHistory(ctx context.Context, tenantID string, sourceFile *string) ([]model.ChatTurn, bool, error) {
	raw, err := c.client.Get(ctx, c.historyKey(tenantID, sourceFile)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var turns []model.ChatTurn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return turns, true, nil
}

func (c *HistoryCache) SetHistory(ctx context.Context, tenantID string, sourceFile *string, turns []model.ChatTurn) error {
	payload, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.historyKey(tenantID, sourceFile), payload, c.historyTTL).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) DeleteHistory(ctx context.Context, tenantID string, sourceFile *string) error {
	if err := c.client.Del(ctx, c.historyKey(tenantID, sourceFile)).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

// DeleteTenantHistory drops every cached history snapshot and dirty marker
// for one tenant, across all source files.
func (c *HistoryCache) DeleteTenantHistory(ctx context.Context, tenantID string) error {
	for _, pattern := range []string{
		"chat:history:" + tenantID + ":*",
		"chat:history:dirty:" + tenantID + ":*",
	} {
		iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("redis delete history key failed: %w", err)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("redis scan history keys failed: %w", err)
		}
	}
	return nil
}

func (c *HistoryCache) MarkDirty(ctx context.Context, tenantID string, sourceFile *string) error {
	if err := c.client.Set(ctx, c.dirtyKey(tenantID, sourceFile), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) IsDirty(ctx context.Context, tenantID string, sourceFile *string) (bool, error) {
	exists, err := c.client.Exists(ctx, c.dirtyKey(tenantID, sourceFile)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func (c *HistoryCache) historyKey(tenantID string, sourceFile *string) string {
	return "chat:history:" + tenantID + ":" + sourceLabel(sourceFile)
}

func (c *HistoryCache) dirtyKey(tenantID string, sourceFile *string) string {
	return "chat:history:dirty:" + tenantID + ":" + sourceLabel(sourceFile)
}

func sourceLabel(sourceFile *string) string {
	if sourceFile == nil {
		return "general"
	}
	return "doc:" + *sourceFile
}
