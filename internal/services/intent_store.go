package services

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountIntent captures a discount that was quoted but not yet charged
// against the ledger. Settlement consumes it to stamp order lines.
type DiscountIntent struct {
	OriginalPrice   decimal.Decimal
	DiscountAmount  decimal.Decimal
	DiscountedPrice decimal.Decimal
	RecordedAt      time.Time
}

type intentKey struct {
	userID    string
	productID string
}

// IntentStore is an in-process map of quoted discounts with a TTL. A quote
// is consume-once: Take removes what it returns, so one order line settles
// against the ledger exactly once.
type IntentStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	intents map[intentKey]DiscountIntent
	now     func() time.Time
}

// NewIntentStore creates a store whose entries expire after ttl.
func NewIntentStore(ttl time.Duration) *IntentStore {
	return &IntentStore{
		ttl:     ttl,
		intents: make(map[intentKey]DiscountIntent),
		now:     time.Now,
	}
}

// Record stores or overwrites the intent for a user+product pair.
// Re-quoting the same product is idempotent: the latest quote wins.
func (s *IntentStore) Record(userID, productID string, intent DiscountIntent) {
	intent.RecordedAt = s.now()
	s.mu.Lock()
	s.intents[intentKey{userID: userID, productID: productID}] = intent
	s.mu.Unlock()
}

// Take returns and removes the live intent for a user+product pair.
// Expired entries are treated as absent.
func (s *IntentStore) Take(userID, productID string) (DiscountIntent, bool) {
	key := intentKey{userID: userID, productID: productID}
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[key]
	if !ok {
		return DiscountIntent{}, false
	}
	delete(s.intents, key)
	if s.ttl > 0 && s.now().Sub(intent.RecordedAt) > s.ttl {
		return DiscountIntent{}, false
	}
	return intent, true
}

// Drop removes any intent for a user+product pair without returning it.
func (s *IntentStore) Drop(userID, productID string) {
	s.mu.Lock()
	delete(s.intents, intentKey{userID: userID, productID: productID})
	s.mu.Unlock()
}
