package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ssr0016/next-rental-eq-marketplace/pkg/redis"
)

var errEventIDRequired = errors.New("stripe event id is required")

// WebhookGuard remembers processed Stripe event ids so redeliveries are
// acknowledged without being applied twice. The stored value is the time
// the event was first accepted.
type WebhookGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
	now   func() time.Time
}

func NewWebhookGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*WebhookGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("webhook guard needs an idempotency store")
	case ttl < 0:
		return nil, fmt.Errorf("webhook guard ttl %s is negative", ttl)
	case scope == "":
		return nil, errors.New("webhook guard needs a scope")
	}
	return &WebhookGuard{store: store, ttl: ttl, scope: scope, now: time.Now}, nil
}

// CheckAndMark returns true when eventID was accepted before.
func (g *WebhookGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	key, err := g.key(eventID)
	if err != nil {
		return false, err
	}
	marked, err := g.store.SetNX(ctx, key, g.now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark stripe event %s: %w", eventID, err)
	}
	return !marked, nil
}

// Delete forgets eventID so the next delivery is applied again.
func (g *WebhookGuard) Delete(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	if err := g.store.Del(ctx, key); err != nil {
		return fmt.Errorf("forget stripe event %s: %w", eventID, err)
	}
	return nil
}

func (g *WebhookGuard) key(eventID string) (string, error) {
	if eventID == "" {
		return "", errEventIDRequired
	}
	return g.store.IdempotencyKey(g.scope, eventID), nil
}
