package cartsync

import (
	"context"
	"log/slog"
	"sync"
)

// Availability is the derived, non-persisted view of the current cart:
// which entries were bought by someone else since being cached, and
// how many other guests hold each entry. Both sides are recomputed
// whole on every check, never merged.
type Availability struct {
	Unavailable map[int64]struct{}
	Others      map[int64]int
}

func emptyAvailability() Availability {
	return Availability{
		Unavailable: map[int64]struct{}{},
		Others:      map[int64]int{},
	}
}

func (a Availability) IsUnavailable(giftID int64) bool {
	_, ok := a.Unavailable[giftID]
	return ok
}

func (a Availability) OthersFor(giftID int64) int {
	return a.Others[giftID]
}

// Checker cross-checks cart contents against gift purchase state. The
// two backend calls run concurrently and fail independently: a broken
// others-count never hides an unavailable gift, and vice versa.
type Checker struct {
	syncer *Syncer
	remote RemoteCart
	log    *slog.Logger

	mu     sync.Mutex
	latest Availability
}

func NewChecker(syncer *Syncer, remote RemoteCart, log *slog.Logger) *Checker {
	return &Checker{
		syncer: syncer,
		remote: remote,
		log:    log,
		latest: emptyAvailability(),
	}
}

// Check recomputes availability for the current snapshot. An empty
// cart or absent identity resets both results without a network call.
func (c *Checker) Check(ctx context.Context) Availability {
	items := c.syncer.Snapshot()
	userID := c.syncer.UserID()

	result := emptyAvailability()
	if len(items) == 0 || userID == 0 {
		c.setLatest(result)
		return result
	}

	giftIDs := make([]int64, 0, len(items))
	for _, g := range items {
		giftIDs = append(giftIDs, g.ID)
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		res, err := c.remote.CheckAvailability(ctx, userID, giftIDs)
		if err != nil {
			c.log.Warn("availability_check_failed", "error", err)
			return
		}
		for _, id := range res.UnavailableGiftIDs {
			result.Unavailable[id] = struct{}{}
		}
	}()

	go func() {
		defer wg.Done()
		counts, err := c.remote.OthersCount(ctx, userID, giftIDs)
		if err != nil {
			c.log.Warn("others_count_failed", "error", err)
			return
		}
		for id, n := range counts {
			result.Others[id] = n
		}
	}()

	wg.Wait()

	c.setLatest(result)
	return result
}

// Latest returns the cached result of the most recent Check as a deep
// copy, so callers cannot reach the cached maps. Checkout confirmation
// must not use this; it re-checks synchronously.
func (c *Checker) Latest() Availability {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := emptyAvailability()
	for id := range c.latest.Unavailable {
		out.Unavailable[id] = struct{}{}
	}
	for id, n := range c.latest.Others {
		out.Others[id] = n
	}
	return out
}

// Run re-checks on every snapshot change until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	snapshots, cancel := c.syncer.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-snapshots:
			if !ok {
				return
			}
			c.Check(ctx)
		}
	}
}

func (c *Checker) setLatest(a Availability) {
	c.mu.Lock()
	c.latest = a
	c.mu.Unlock()
}
