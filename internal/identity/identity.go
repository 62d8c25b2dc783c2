package identity

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mbarroso/giftregistry/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

// Provider holds the current authenticated actor as a reactive value.
// A nil actor means unauthenticated. Watchers receive the current
// value immediately and every change after it.
type Provider struct {
	secret []byte

	mu      sync.Mutex
	current *models.Actor
	subs    map[int]chan *models.Actor
	nextSub int
}

func NewProvider(secret []byte) *Provider {
	return &Provider{
		secret: secret,
		subs:   make(map[int]chan *models.Actor),
	}
}

// Current returns the actor at this instant, nil when signed out.
func (p *Provider) Current() *models.Actor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// SetToken validates an HS256 access token and publishes the actor it
// names. Claims: numeric "sub" and optional "is_admin".
func (p *Provider) SetToken(tokenString string) error {
	if tokenString == "" {
		return fmt.Errorf("empty token: %w", ErrInvalidToken)
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return fmt.Errorf("missing claims: %w", ErrInvalidToken)
	}
	subRaw, ok := claims["sub"].(float64)
	if !ok || subRaw <= 0 {
		return fmt.Errorf("invalid subject claim: %w", ErrInvalidToken)
	}
	isAdmin, _ := claims["is_admin"].(bool)

	p.set(&models.Actor{ID: int64(subRaw), IsAdmin: isAdmin})
	return nil
}

// Clear publishes a nil actor (logout). It cannot fail.
func (p *Provider) Clear() {
	p.set(nil)
}

func (p *Provider) set(actor *models.Actor) {
	p.mu.Lock()
	p.current = actor
	// Buffered one deep: drop the pending value so watchers always see
	// the latest, then send without blocking.
	for _, ch := range p.subs {
		select {
		case <-ch:
		default:
		}
		ch <- actor
	}
	p.mu.Unlock()
}

// Watch registers a listener; the current actor is replayed at once.
func (p *Provider) Watch() (<-chan *models.Actor, func()) {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	ch := make(chan *models.Actor, 1)
	p.subs[id] = ch
	ch <- p.current
	p.mu.Unlock()

	cancel := func() {
		p.mu.Lock()
		if _, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(ch)
		}
		p.mu.Unlock()
	}
	return ch, cancel
}
