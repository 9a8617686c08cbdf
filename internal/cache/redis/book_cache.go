package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aggstream/aggbook/internal/domain"
)

const snapshotTTL = 5 * time.Minute

// BookCache mirrors consolidated book state into redis. Snapshots live under
// a per-symbol key with a TTL so a stalled aggregator does not serve stale
// books forever; batches are relayed on a per-symbol pub/sub channel.
type BookCache struct {
	client *Client
}

// NewBookCache wraps an established client.
func NewBookCache(client *Client) *BookCache {
	return &BookCache{client: client}
}

func snapshotKey(symbol string) string {
	return "aggbook:snapshot:" + symbol
}

func batchChannel(symbol string) string {
	return "aggbook:batches:" + symbol
}

// SetSnapshot stores the latest consolidated snapshot for the symbol.
func (b *BookCache) SetSnapshot(ctx context.Context, symbol string, snap domain.BookSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot: %w", err)
	}
	if err := b.client.rdb.Set(ctx, snapshotKey(symbol), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot: %w", err)
	}
	return nil
}

// GetSnapshot loads the latest stored snapshot. Returns domain.ErrNotFound
// when no snapshot exists or its TTL expired.
func (b *BookCache) GetSnapshot(ctx context.Context, symbol string) (domain.BookSnapshot, error) {
	var snap domain.BookSnapshot
	data, err := b.client.rdb.Get(ctx, snapshotKey(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return snap, domain.ErrNotFound
		}
		return snap, fmt.Errorf("redis: get snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("redis: unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// PublishBatch relays an encoded book update frame to mirror subscribers.
func (b *BookCache) PublishBatch(ctx context.Context, symbol string, payload []byte) error {
	if err := b.client.rdb.Publish(ctx, batchChannel(symbol), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish batch: %w", err)
	}
	return nil
}
