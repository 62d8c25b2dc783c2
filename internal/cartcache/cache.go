package cartcache

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mbarroso/giftregistry/internal/models"
)

// DefaultKey is the fixed slot the cart snapshot is written under.
const DefaultKey = "cart"

// Slot is a persistent key-value cell. Get returns (nil, nil) when the
// key is absent.
type Slot interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Cache persists cart snapshots best-effort. Write failures are logged
// and swallowed; the in-memory snapshot stays authoritative for the
// session. Corrupt or missing persisted state degrades to an empty
// cart, never to an error.
type Cache struct {
	slot Slot
	key  string
	log  *slog.Logger
}

func New(slot Slot, log *slog.Logger) *Cache {
	return &Cache{slot: slot, key: DefaultKey, log: log}
}

func (c *Cache) Save(ctx context.Context, items []models.Gift) {
	data, err := json.Marshal(items)
	if err != nil {
		c.log.Error("cart_cache_marshal_failed", "error", err)
		return
	}
	if err := c.slot.Put(ctx, c.key, data); err != nil {
		c.log.Warn("cart_cache_save_failed", "error", err)
	}
}

func (c *Cache) Load(ctx context.Context) []models.Gift {
	data, err := c.slot.Get(ctx, c.key)
	if err != nil {
		c.log.Warn("cart_cache_load_failed", "error", err)
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	var items []models.Gift
	if err := json.Unmarshal(data, &items); err != nil {
		// Old or corrupt payload: degrade to an empty cart.
		c.log.Warn("cart_cache_corrupt", "error", err)
		return nil
	}

	out := make([]models.Gift, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, g := range items {
		if g.ID == 0 {
			continue
		}
		if _, dup := seen[g.ID]; dup {
			continue
		}
		seen[g.ID] = struct{}{}
		out = append(out, g)
	}
	return out
}

func (c *Cache) Clear(ctx context.Context) {
	if err := c.slot.Delete(ctx, c.key); err != nil {
		c.log.Warn("cart_cache_clear_failed", "error", err)
	}
}
