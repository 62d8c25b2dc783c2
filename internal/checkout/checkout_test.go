package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbarroso/giftregistry/internal/cartapi"
	"github.com/mbarroso/giftregistry/internal/cartcache"
	"github.com/mbarroso/giftregistry/internal/cartsync"
	"github.com/mbarroso/giftregistry/internal/giftapi"
	"github.com/mbarroso/giftregistry/internal/models"
	"github.com/mbarroso/giftregistry/internal/notify"
)

type fakeRemote struct {
	mu          sync.Mutex
	unavailable []int64
}

func (f *fakeRemote) Fetch(ctx context.Context, userID int64) ([]models.RemoteCartRecord, error) {
	return nil, nil
}

func (f *fakeRemote) Add(ctx context.Context, userID, giftID int64) (*cartapi.AddResult, error) {
	return &cartapi.AddResult{Accepted: true}, nil
}

func (f *fakeRemote) Remove(ctx context.Context, userID, giftID int64) (*cartapi.RemoveResult, error) {
	return &cartapi.RemoveResult{Accepted: true}, nil
}

func (f *fakeRemote) CheckAvailability(ctx context.Context, userID int64, giftIDs []int64) (*cartapi.AvailabilityResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &cartapi.AvailabilityResult{UnavailableGiftIDs: f.unavailable}, nil
}

func (f *fakeRemote) OthersCount(ctx context.Context, userID int64, giftIDs []int64) (map[int64]int, error) {
	return map[int64]int{}, nil
}

type fakeCatalog struct{}

func (fakeCatalog) List(ctx context.Context) ([]models.Gift, error) { return nil, nil }

type fakePurchaser struct {
	mu     sync.Mutex
	calls  []int64
	opts   []giftapi.PurchaseOptions
	failOn int64
}

func (f *fakePurchaser) MarkPurchased(ctx context.Context, giftID, userID int64, opts giftapi.PurchaseOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != 0 && giftID == f.failOn {
		return errors.New("purchase failed")
	}
	f.calls = append(f.calls, giftID)
	f.opts = append(f.opts, opts)
	return nil
}

type fakeSink struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (f *fakeSink) Publish(_ context.Context, msg notify.Message) {
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	f.mu.Unlock()
}

type checkoutEnv struct {
	svc       *Service
	syncer    *cartsync.Syncer
	remote    *fakeRemote
	purchaser *fakePurchaser
	sink      *fakeSink
}

func newCheckoutEnv(t *testing.T) *checkoutEnv {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	slot, err := cartcache.OpenSQLite(":memory:")
	require.NoError(t, err)

	remote := &fakeRemote{}
	sink := &fakeSink{}
	syncer := cartsync.New(context.Background(), remote, fakeCatalog{}, cartcache.New(slot, log), sink, log)
	syncer.OnIdentity(context.Background(), &models.Actor{ID: 1})

	purchaser := &fakePurchaser{}
	svc := &Service{
		Sync:    syncer,
		Checker: cartsync.NewChecker(syncer, remote, log),
		Catalog: purchaser,
		Sink:    sink,
		PixKey:  "festa@example.com",
	}
	return &checkoutEnv{svc: svc, syncer: syncer, remote: remote, purchaser: purchaser, sink: sink}
}

func (env *checkoutEnv) fill(t *testing.T, gifts ...models.Gift) {
	t.Helper()
	for _, g := range gifts {
		require.NoError(t, env.syncer.Add(context.Background(), g))
	}
}

func TestConfirm_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{name: "no method", req: Request{}, wantErr: ErrNoPaymentMethod},
		{name: "unknown method", req: Request{Method: "credit_card"}, wantErr: ErrNoPaymentMethod},
		{name: "ship to host without address", req: Request{Method: models.PaymentBuyAndSend}, wantErr: ErrMissingAddress},
		{name: "blank address", req: Request{Method: models.PaymentBuyAndSend, DeliveryAddress: "   "}, wantErr: ErrMissingAddress},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newCheckoutEnv(t)
			env.fill(t, models.Gift{ID: 1, Name: "mug", AveragePrice: 800})

			_, err := env.svc.Confirm(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, env.purchaser.calls)
		})
	}
}

func TestConfirm_EmptyCart(t *testing.T) {
	t.Parallel()

	env := newCheckoutEnv(t)
	_, err := env.svc.Confirm(context.Background(), Request{Method: models.PaymentPix})
	require.ErrorIs(t, err, ErrCartEmpty)
}

func TestConfirm_UnavailableItemBlocksWithNoPurchaseCall(t *testing.T) {
	t.Parallel()

	env := newCheckoutEnv(t)
	env.fill(t,
		models.Gift{ID: 3, Name: "vase", AveragePrice: 2000},
		models.Gift{ID: 7, Name: "toaster", AveragePrice: 5000},
	)

	// Gift 3 was bought by another guest after it was cached locally.
	env.remote.mu.Lock()
	env.remote.unavailable = []int64{3}
	env.remote.mu.Unlock()

	_, err := env.svc.Confirm(context.Background(), Request{Method: models.PaymentPix})
	require.ErrorIs(t, err, ErrUnavailable)

	assert.Empty(t, env.purchaser.calls)
	assert.Len(t, env.syncer.Snapshot(), 2)
}

func TestConfirm_Success(t *testing.T) {
	t.Parallel()

	env := newCheckoutEnv(t)
	env.fill(t,
		models.Gift{ID: 7, Name: "toaster", AveragePrice: 5000},
		models.Gift{ID: 9, Name: "blender", AveragePrice: 12000},
	)

	res, err := env.svc.Confirm(context.Background(), Request{Method: models.PaymentPix})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Purchased)
	assert.Equal(t, int64(17000), res.TotalPrice)
	assert.Equal(t, "festa@example.com", res.PixKey)
	assert.Equal(t, []int64{7, 9}, env.purchaser.calls)
	assert.Empty(t, env.syncer.Snapshot())
}

func TestConfirm_ShipToHost_PassesAddress(t *testing.T) {
	t.Parallel()

	env := newCheckoutEnv(t)
	env.fill(t, models.Gift{ID: 7, Name: "toaster", AveragePrice: 5000})

	res, err := env.svc.Confirm(context.Background(), Request{
		Method:          models.PaymentBuyAndSend,
		DeliveryAddress: "Rua das Flores 10",
	})
	require.NoError(t, err)

	assert.Empty(t, res.PixKey)
	require.Len(t, env.purchaser.opts, 1)
	assert.Equal(t, models.PaymentBuyAndSend, env.purchaser.opts[0].PaymentMethod)
	assert.Equal(t, "Rua das Flores 10", env.purchaser.opts[0].DeliveryAddress)
}

func TestConfirm_PurchaseFailureAborts_CartKept(t *testing.T) {
	t.Parallel()

	env := newCheckoutEnv(t)
	env.fill(t,
		models.Gift{ID: 7, Name: "toaster", AveragePrice: 5000},
		models.Gift{ID: 9, Name: "blender", AveragePrice: 12000},
	)
	env.purchaser.failOn = 9

	_, err := env.svc.Confirm(context.Background(), Request{Method: models.PaymentPix})
	require.Error(t, err)

	// The cart is not cleaned up on a failed confirmation.
	assert.Len(t, env.syncer.Snapshot(), 2)
}
