package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mbarroso/giftregistry/internal/cartsync"
	"github.com/mbarroso/giftregistry/internal/checkout"
	"github.com/mbarroso/giftregistry/internal/identity"
	"github.com/mbarroso/giftregistry/internal/logging"
	"github.com/mbarroso/giftregistry/internal/models"
)

// GiftResolver resolves a gift id to its full catalog record before an
// add, so the snapshot carries everything the UI needs to render.
type GiftResolver interface {
	Get(ctx context.Context, id int64) (*models.Gift, error)
}

type CartHTTP struct {
	Sync     *cartsync.Syncer
	Checker  *cartsync.Checker
	Checkout *checkout.Service
	Catalog  GiftResolver
	Identity *identity.Provider
}

type cartResponse struct {
	Items      []models.Gift `json:"items"`
	TotalPrice int64         `json:"total_price"`
	State      string        `json:"state"`
}

func (h *CartHTTP) GetCart(c echo.Context) error {
	items := h.Sync.Snapshot()
	return c.JSON(http.StatusOK, cartResponse{
		Items:      items,
		TotalPrice: models.TotalPrice(items),
		State:      h.Sync.State().String(),
	})
}

func (h *CartHTTP) AddToCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.add")

	var req struct {
		GiftID int64 `json:"gift_id"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("add_to_cart_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, "invalid body")
	}
	if req.GiftID <= 0 {
		l.Warn("add_to_cart_error", "status", 400)
		return c.JSON(http.StatusBadRequest, "gift_id required")
	}

	// Identity first: an unauthenticated request must not cost a
	// catalog roundtrip, and a catalog outage must not mask the 401.
	if h.Sync.UserID() == 0 {
		l.Warn("add_to_cart_error", "status", 401)
		return c.JSON(http.StatusUnauthorized, "unauthorized")
	}

	gift, err := h.Catalog.Get(ctx, req.GiftID)
	if err != nil {
		l.Error("add_to_cart_error", "status", 502, "error", err)
		return c.JSON(http.StatusBadGateway, "catalog unavailable")
	}

	if err := h.Sync.Add(ctx, *gift); err != nil {
		switch {
		case errors.Is(err, cartsync.ErrNoIdentity):
			l.Warn("add_to_cart_error", "status", 401)
			return c.JSON(http.StatusUnauthorized, "unauthorized")
		case errors.Is(err, cartsync.ErrSyncing):
			l.Warn("add_to_cart_error", "status", 503)
			return c.JSON(http.StatusServiceUnavailable, "cart is syncing, retry shortly")
		case errors.Is(err, cartsync.ErrRejected):
			l.Warn("add_to_cart_rejected", "status", 409, "gift_id", req.GiftID)
			return c.JSON(http.StatusConflict, "gift no longer available")
		default:
			l.Error("add_to_cart_error", "status", 502, "error", err)
			return c.JSON(http.StatusBadGateway, "cart backend unavailable")
		}
	}

	l.Info("gift added to cart", "gift_id", req.GiftID)
	return c.JSON(http.StatusCreated, cartResponse{
		Items:      h.Sync.Snapshot(),
		TotalPrice: models.TotalPrice(h.Sync.Snapshot()),
		State:      h.Sync.State().String(),
	})
}

func (h *CartHTTP) RemoveFromCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.remove")

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, "invalid id")
	}

	if err := h.Sync.Remove(ctx, id); err != nil {
		if errors.Is(err, cartsync.ErrNoIdentity) {
			return c.JSON(http.StatusUnauthorized, "unauthorized")
		}
		if errors.Is(err, cartsync.ErrSyncing) {
			return c.JSON(http.StatusServiceUnavailable, "cart is syncing, retry shortly")
		}
		l.Error("remove_from_cart_error", "status", 502, "error", err)
		return c.JSON(http.StatusBadGateway, "cart backend unavailable")
	}

	l.Info("gift removed from cart", "gift_id", id)
	return c.JSON(http.StatusOK, cartResponse{
		Items:      h.Sync.Snapshot(),
		TotalPrice: models.TotalPrice(h.Sync.Snapshot()),
		State:      h.Sync.State().String(),
	})
}

func (h *CartHTTP) GetAvailability(c echo.Context) error {
	ctx := c.Request().Context()

	avail := h.Checker.Check(ctx)

	unavailable := make([]int64, 0, len(avail.Unavailable))
	for id := range avail.Unavailable {
		unavailable = append(unavailable, id)
	}
	others := make(map[string]int, len(avail.Others))
	for id, n := range avail.Others {
		others[strconv.FormatInt(id, 10)] = n
	}

	return c.JSON(http.StatusOK, map[string]any{
		"unavailable_gift_ids": unavailable,
		"others_count":         others,
	})
}

func (h *CartHTTP) ConfirmCheckout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.checkout")

	var req checkout.Request
	if err := c.Bind(&req); err != nil {
		l.Warn("checkout_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Checkout.Confirm(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrNoPaymentMethod),
			errors.Is(err, checkout.ErrMissingAddress),
			errors.Is(err, checkout.ErrCartEmpty):
			l.Warn("checkout_error", "status", 400, "error", err)
			return c.JSON(http.StatusBadRequest, err.Error())
		case errors.Is(err, checkout.ErrUnavailable):
			l.Warn("checkout_blocked", "status", 409, "error", err)
			return c.JSON(http.StatusConflict, err.Error())
		case errors.Is(err, cartsync.ErrNoIdentity):
			return c.JSON(http.StatusUnauthorized, "unauthorized")
		default:
			l.Error("checkout_error", "status", 502, "error", err)
			return c.JSON(http.StatusBadGateway, "checkout failed")
		}
	}

	l.Info("checkout confirmed", "purchased", res.Purchased, "total", res.TotalPrice)
	return c.JSON(http.StatusOK, res)
}

func (h *CartHTTP) CreateSession(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "session.create")

	var req struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, "invalid body")
	}

	if err := h.Identity.SetToken(req.Token); err != nil {
		l.Warn("session_create_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, "invalid token")
	}

	l.Info("session established")
	return c.NoContent(http.StatusNoContent)
}

func (h *CartHTTP) DeleteSession(c echo.Context) error {
	h.Identity.Clear()
	return c.NoContent(http.StatusNoContent)
}
