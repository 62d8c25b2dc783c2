package cartstore

import (
	"sync"

	"github.com/mbarroso/giftregistry/internal/models"
)

// Store holds the current cart snapshot and publishes every change to
// subscribers. New subscribers immediately receive the latest value.
//
// The store never touches the network or the durability slot; the
// synchronizer owns the single Replace path and persists separately.
type Store struct {
	mu      sync.RWMutex
	items   []models.Gift
	ids     map[int64]struct{}
	subs    map[int]chan []models.Gift
	nextSub int
}

func New() *Store {
	return &Store{
		ids:  make(map[int64]struct{}),
		subs: make(map[int]chan []models.Gift),
	}
}

// Current returns a copy of the latest snapshot.
func (s *Store) Current() []models.Gift {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyItems(s.items)
}

// Len reports how many entries the snapshot holds.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Contains is an O(1) membership test backed by a derived id set.
func (s *Store) Contains(giftID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[giftID]
	return ok
}

// Replace swaps the whole snapshot atomically and publishes once.
// Duplicate ids keep the first occurrence, so the invariant "ids are
// unique within a snapshot" holds no matter what the caller passes.
func (s *Store) Replace(items []models.Gift) {
	s.mu.Lock()

	deduped := make([]models.Gift, 0, len(items))
	ids := make(map[int64]struct{}, len(items))
	for _, g := range items {
		if _, seen := ids[g.ID]; seen {
			continue
		}
		ids[g.ID] = struct{}{}
		deduped = append(deduped, g)
	}
	s.items = deduped
	s.ids = ids

	// Publishing stays under the lock so a concurrent cancel cannot
	// close a channel between collection and send.
	snapshot := copyItems(s.items)
	for _, ch := range s.subs {
		publish(ch, snapshot)
	}
	s.mu.Unlock()
}

// Subscribe registers a listener. The current snapshot is delivered
// immediately; the cancel func unregisters and closes the channel.
// Slow subscribers may miss intermediate snapshots but always observe
// the most recent one.
func (s *Store) Subscribe() (<-chan []models.Gift, func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan []models.Gift, 1)
	s.subs[id] = ch
	ch <- copyItems(s.items)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// publish replaces a pending un-consumed snapshot instead of blocking.
// Only called with the store lock held, so the freed buffer slot
// cannot be re-filled before the send.
func publish(ch chan []models.Gift, snapshot []models.Gift) {
	select {
	case <-ch:
	default:
	}
	ch <- snapshot
}

func copyItems(items []models.Gift) []models.Gift {
	out := make([]models.Gift, len(items))
	copy(out, items)
	return out
}
