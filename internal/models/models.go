package models

import "time"

// Gift is the catalog record as served by the gift service. Prices are
// stored in centavos; AveragePrice of zero means "no price listed".
type Gift struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	ImageURL          string    `json:"imageUrl"`
	AveragePrice      int64     `json:"averagePrice"`
	IsPurchased       bool      `json:"isPurchased"`
	PurchasedByUserID *int64    `json:"purchasedByUserId,omitempty"`
	PurchasedBy       string    `json:"purchasedBy,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Actor is the authenticated user as seen by the cart subsystem.
// A nil *Actor means "nobody is signed in".
type Actor struct {
	ID      int64 `json:"id"`
	IsAdmin bool  `json:"isAdmin"`
}

// RemoteCartRecord is the backend's authoritative cart membership
// record for one (user, gift) pair.
type RemoteCartRecord struct {
	GiftID  int64     `json:"giftId"`
	UserID  int64     `json:"userId"`
	AddedAt time.Time `json:"addedAt"`
}

// TotalPrice sums the listed prices of a snapshot.
func TotalPrice(items []Gift) int64 {
	var total int64
	for _, g := range items {
		total += g.AveragePrice
	}
	return total
}

type PaymentMethod string

const (
	PaymentPix           PaymentMethod = "pix"
	PaymentBuyAndSend    PaymentMethod = "buy_and_send"
	PaymentBuyAndDeliver PaymentMethod = "buy_and_deliver"
)

// Valid reports whether m is one of the offered offline payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentPix, PaymentBuyAndSend, PaymentBuyAndDeliver:
		return true
	}
	return false
}

// RequiresAddress reports whether the method needs a delivery address
// before checkout can be confirmed.
func (m PaymentMethod) RequiresAddress() bool {
	return m == PaymentBuyAndSend
}
