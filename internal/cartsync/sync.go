package cartsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mbarroso/giftregistry/internal/cartapi"
	"github.com/mbarroso/giftregistry/internal/cartcache"
	"github.com/mbarroso/giftregistry/internal/cartstore"
	"github.com/mbarroso/giftregistry/internal/models"
	"github.com/mbarroso/giftregistry/internal/notify"
)

var (
	ErrNoIdentity = errors.New("no authenticated user")
	ErrSyncing    = errors.New("cart sync in progress")
	ErrRejected   = errors.New("rejected by server")
)

// State of the cart session.
type State int

const (
	StateEmpty State = iota
	StateSyncing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateSyncing:
		return "syncing"
	case StateReady:
		return "ready"
	default:
		return "empty"
	}
}

// RemoteCart is the backend cart endpoints the syncer writes through.
type RemoteCart interface {
	Fetch(ctx context.Context, userID int64) ([]models.RemoteCartRecord, error)
	Add(ctx context.Context, userID, giftID int64) (*cartapi.AddResult, error)
	Remove(ctx context.Context, userID, giftID int64) (*cartapi.RemoveResult, error)
	CheckAvailability(ctx context.Context, userID int64, giftIDs []int64) (*cartapi.AvailabilityResult, error)
	OthersCount(ctx context.Context, userID int64, giftIDs []int64) (map[int64]int, error)
}

// Catalog resolves gift ids to full records during a resync.
type Catalog interface {
	List(ctx context.Context) ([]models.Gift, error)
}

// Syncer reconciles the local cart store with backend truth. It is the
// only writer of the store and of the durability slot: every mutation
// is server-confirmed first, applied to the snapshot that is current
// at acknowledgment time, then persisted.
type Syncer struct {
	remote  RemoteCart
	catalog Catalog
	cache   *cartcache.Cache
	sink    notify.Sink
	log     *slog.Logger

	mu      sync.Mutex
	store   *cartstore.Store
	state   State
	actorID int64 // 0 when signed out
}

// New builds a syncer and rehydrates the store from the durability
// slot so a restarted process shows the last persisted cart at once.
func New(ctx context.Context, remote RemoteCart, catalog Catalog, cache *cartcache.Cache, sink notify.Sink, log *slog.Logger) *Syncer {
	s := &Syncer{
		remote:  remote,
		catalog: catalog,
		cache:   cache,
		sink:    sink,
		log:     log,
		store:   cartstore.New(),
	}
	s.store.Replace(cache.Load(ctx))
	return s
}

// Run consumes identity changes until ctx is done. Meant to be started
// once, as a goroutine, with the channel from identity.Provider.Watch.
func (s *Syncer) Run(ctx context.Context, identities <-chan *models.Actor) {
	for {
		select {
		case <-ctx.Done():
			return
		case actor, ok := <-identities:
			if !ok {
				return
			}
			s.OnIdentity(ctx, actor)
		}
	}
}

// OnIdentity handles an identity transition. A nil actor clears the
// cart and the persisted slot immediately; a present actor triggers a
// full resync from backend truth.
func (s *Syncer) OnIdentity(ctx context.Context, actor *models.Actor) {
	if actor == nil {
		s.mu.Lock()
		// The replayed initial nil is not a logout: a cart rehydrated
		// from the slot stays visible until an identity shows up.
		if s.actorID == 0 && s.state == StateEmpty {
			s.mu.Unlock()
			return
		}
		s.actorID = 0
		s.state = StateEmpty
		s.store.Replace(nil)
		s.cache.Clear(ctx)
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	if s.actorID == actor.ID && s.state == StateReady {
		s.mu.Unlock()
		return
	}
	s.actorID = actor.ID
	s.state = StateSyncing
	s.mu.Unlock()

	s.resync(ctx, actor.ID)
}

// resync pulls the remote membership records and materializes them
// against a single catalog listing. Read failures fail open: the user
// lands in Ready with an empty cart rather than a stuck sync.
func (s *Syncer) resync(ctx context.Context, userID int64) {
	l := s.log.With("user_id", userID)

	var items []models.Gift

	records, err := s.remote.Fetch(ctx, userID)
	if err != nil {
		l.Warn("cart_resync_fetch_failed", "error", err)
		s.applyResync(ctx, userID, nil)
		return
	}

	if len(records) > 0 {
		catalog, err := s.catalog.List(ctx)
		if err != nil {
			l.Warn("cart_resync_catalog_failed", "error", err)
			s.applyResync(ctx, userID, nil)
			return
		}
		byID := make(map[int64]models.Gift, len(catalog))
		for _, g := range catalog {
			byID[g.ID] = g
		}
		items = make([]models.Gift, 0, len(records))
		for _, rec := range records {
			if g, ok := byID[rec.GiftID]; ok {
				items = append(items, g)
			}
		}
	}

	s.applyResync(ctx, userID, items)
}

// applyResync installs a resync result unless the identity that
// started it has been superseded meanwhile.
func (s *Syncer) applyResync(ctx context.Context, userID int64, items []models.Gift) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.actorID != userID {
		s.log.Info("cart_resync_superseded", "user_id", userID)
		return
	}
	s.store.Replace(items)
	s.cache.Save(ctx, items)
	s.state = StateReady
}

// Add reserves a gift. Idempotent: an id already in the snapshot is a
// no-op without a backend call. Membership is server-confirmed before
// the local snapshot changes; rejections and transport failures leave
// the cart untouched and emit one error notification.
//
// Add is only legal in Ready. While a resync is in flight its fetched
// record set predates any new mutation, so an add accepted mid-sync
// would be wiped when the resync result lands.
func (s *Syncer) Add(ctx context.Context, gift models.Gift) error {
	s.mu.Lock()
	userID := s.actorID
	if userID == 0 {
		s.mu.Unlock()
		return ErrNoIdentity
	}
	if s.state != StateReady {
		s.mu.Unlock()
		return ErrSyncing
	}
	if s.store.Contains(gift.ID) {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	res, err := s.remote.Add(ctx, userID, gift.ID)
	if err != nil {
		msg := notify.NewMessage(notify.SeverityError, "Could not add to cart",
			fmt.Sprintf("%s could not be added. Try again.", gift.Name))
		msg.GiftID = gift.ID
		s.sink.Publish(ctx, msg)
		return fmt.Errorf("add gift %d: %w", gift.ID, err)
	}
	if !res.Accepted {
		msg := notify.NewMessage(notify.SeverityWarn, "Gift unavailable", res.Reason)
		msg.GiftID = gift.ID
		s.sink.Publish(ctx, msg)
		return fmt.Errorf("add gift %d: %s: %w", gift.ID, res.Reason, ErrRejected)
	}

	s.mu.Lock()
	if s.actorID == userID {
		// Read-modify-write on the snapshot current at ack time, so a
		// concurrent add acknowledged earlier is never overwritten.
		if !s.store.Contains(gift.ID) {
			items := append(s.store.Current(), gift)
			s.store.Replace(items)
			s.cache.Save(ctx, items)
		}
	}
	s.mu.Unlock()

	if res.OthersHoldingCount > 0 {
		msg := notify.NewMessage(notify.SeverityInfo, "Someone else also wants this",
			fmt.Sprintf("%d other guest(s) have %s in their cart.", res.OthersHoldingCount, gift.Name))
		msg.GiftID = gift.ID
		s.sink.Publish(ctx, msg)
	}
	return nil
}

// Remove releases a gift. Idempotent by construction: on a confirmed
// removal the entry is filtered out whether or not it was present.
func (s *Syncer) Remove(ctx context.Context, giftID int64) error {
	s.mu.Lock()
	userID := s.actorID
	state := s.state
	s.mu.Unlock()
	if userID == 0 {
		return ErrNoIdentity
	}
	if state != StateReady {
		return ErrSyncing
	}

	res, err := s.remote.Remove(ctx, userID, giftID)
	if err == nil && !res.Accepted {
		err = ErrRejected
	}
	if err != nil {
		msg := notify.NewMessage(notify.SeverityError, "Could not remove from cart",
			"The item could not be removed. Try again.")
		msg.GiftID = giftID
		s.sink.Publish(ctx, msg)
		return fmt.Errorf("remove gift %d: %w", giftID, err)
	}

	s.mu.Lock()
	if s.actorID == userID {
		current := s.store.Current()
		items := make([]models.Gift, 0, len(current))
		for _, g := range current {
			if g.ID != giftID {
				items = append(items, g)
			}
		}
		s.store.Replace(items)
		s.cache.Save(ctx, items)
	}
	s.mu.Unlock()
	return nil
}

// CompleteCheckout removes every current entry one by one after a
// successful purchase confirmation. Best-effort: a failed removal is
// logged and the rest continue.
func (s *Syncer) CompleteCheckout(ctx context.Context) {
	for _, g := range s.Snapshot() {
		if err := s.Remove(ctx, g.ID); err != nil {
			s.log.Warn("checkout_cleanup_failed", "gift_id", g.ID, "error", err)
		}
	}
}

// Snapshot returns a copy of the current cart contents.
func (s *Syncer) Snapshot() []models.Gift {
	return s.store.Current()
}

func (s *Syncer) Contains(giftID int64) bool {
	return s.store.Contains(giftID)
}

// Subscribe exposes the store's replay-latest stream.
func (s *Syncer) Subscribe() (<-chan []models.Gift, func()) {
	return s.store.Subscribe()
}

func (s *Syncer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserID returns the identity the cart is currently bound to, 0 when
// signed out.
func (s *Syncer) UserID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actorID
}
