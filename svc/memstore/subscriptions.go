package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/rankfoundry/shopseo/pkg/billing"
)

// Subscriptions implements billing.SubscriptionStore.
type Subscriptions struct {
	mu   sync.Mutex
	rows map[string]*billing.Subscription
	now  func() time.Time
}

var _ billing.SubscriptionStore = (*Subscriptions)(nil)

func NewSubscriptions() *Subscriptions {
	return &Subscriptions{
		rows: make(map[string]*billing.Subscription),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Subscriptions) Get(_ context.Context, shop string) (*billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[shop]
	if !ok {
		return nil, billing.ErrSubscriptionNotFound
	}
	return row.Clone(), nil
}

func (s *Subscriptions) Update(_ context.Context, shop string, u billing.Update) (*billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[shop]
	if !ok || !u.Expect.Matches(row) {
		return nil, billing.ErrStaleWrite
	}
	next := row.Clone()
	u.ApplyTo(next, s.now())
	s.rows[shop] = next
	return next.Clone(), nil
}

func (s *Subscriptions) Finalize(_ context.Context, shop string, f billing.Finalization) (*billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := f.Apply(s.rows[shop], shop, s.now())
	if !ok {
		return nil, billing.ErrStaleWrite
	}
	s.rows[shop] = next
	return next.Clone(), nil
}

func (s *Subscriptions) Delete(_ context.Context, shop string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, shop)
	return nil
}

// Put stores sub unconditionally. Tests use it to seed rows.
func (s *Subscriptions) Put(sub *billing.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[sub.Shop] = sub.Clone()
}
