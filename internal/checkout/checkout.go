package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mbarroso/giftregistry/internal/cartsync"
	"github.com/mbarroso/giftregistry/internal/giftapi"
	"github.com/mbarroso/giftregistry/internal/logging"
	"github.com/mbarroso/giftregistry/internal/models"
	"github.com/mbarroso/giftregistry/internal/notify"
)

var (
	ErrCartEmpty       = errors.New("cart is empty")
	ErrNoPaymentMethod = errors.New("payment method required")
	ErrMissingAddress  = errors.New("delivery address required")
	ErrUnavailable     = errors.New("cart contains unavailable gifts")
)

// Purchaser marks catalog gifts as bought.
type Purchaser interface {
	MarkPurchased(ctx context.Context, giftID, userID int64, opts giftapi.PurchaseOptions) error
}

type Request struct {
	Method          models.PaymentMethod `json:"payment_method"`
	DeliveryAddress string               `json:"delivery_address"`
}

type Result struct {
	Purchased  int    `json:"purchased"`
	TotalPrice int64  `json:"total_price"`
	PixKey     string `json:"pix_key,omitempty"`
}

// Service confirms a checkout: validates the payment choice, hard-
// blocks on entries bought by someone else, marks every entry
// purchased, then hands cleanup to the synchronizer.
type Service struct {
	Sync    *cartsync.Syncer
	Checker *cartsync.Checker
	Catalog Purchaser
	Sink    notify.Sink
	PixKey  string
}

func (s *Service) Confirm(ctx context.Context, req Request) (*Result, error) {
	l := logging.FromContext(ctx).With("component", "checkout")

	if !req.Method.Valid() {
		return nil, ErrNoPaymentMethod
	}
	if req.Method.RequiresAddress() && strings.TrimSpace(req.DeliveryAddress) == "" {
		return nil, ErrMissingAddress
	}

	userID := s.Sync.UserID()
	if userID == 0 {
		return nil, cartsync.ErrNoIdentity
	}

	items := s.Sync.Snapshot()
	if len(items) == 0 {
		return nil, ErrCartEmpty
	}

	// Availability is re-fetched at confirmation time; a cached value
	// could miss a purchase that raced the user to the button.
	avail := s.Checker.Check(ctx)
	if len(avail.Unavailable) > 0 {
		msg := notify.NewMessage(notify.SeverityWarn, "Some gifts are no longer available",
			"Another guest bought part of your cart. Remove those items before finishing.")
		s.Sink.Publish(ctx, msg)
		return nil, fmt.Errorf("%d item(s) already bought: %w", len(avail.Unavailable), ErrUnavailable)
	}

	opts := giftapi.PurchaseOptions{PaymentMethod: req.Method}
	if req.Method.RequiresAddress() {
		opts.DeliveryAddress = req.DeliveryAddress
	}

	for _, g := range items {
		if err := s.Catalog.MarkPurchased(ctx, g.ID, userID, opts); err != nil {
			l.Error("checkout_purchase_failed", "gift_id", g.ID, "error", err)
			msg := notify.NewMessage(notify.SeverityError, "Checkout failed",
				fmt.Sprintf("Could not confirm the purchase of %s. Try again.", g.Name))
			msg.GiftID = g.ID
			s.Sink.Publish(ctx, msg)
			return nil, fmt.Errorf("purchase gift %d: %w", g.ID, err)
		}
	}

	total := models.TotalPrice(items)
	l.Info("checkout_confirmed", "user_id", userID, "items", len(items), "total", total, "method", req.Method)

	s.Sync.CompleteCheckout(ctx)

	s.Sink.Publish(ctx, notify.NewMessage(notify.SeveritySuccess, "Purchase confirmed",
		fmt.Sprintf("%d gift(s) were marked as purchased.", len(items))))

	res := &Result{Purchased: len(items), TotalPrice: total}
	if req.Method == models.PaymentPix {
		res.PixKey = s.PixKey
	}
	return res, nil
}
