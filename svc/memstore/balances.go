package memstore

import (
	"context"
	"sync"

	"github.com/rankfoundry/shopseo/pkg/tokens"
)

// Balances implements tokens.Store.
type Balances struct {
	mu   sync.Mutex
	docs map[string]*tokens.Balance
}

var _ tokens.Store = (*Balances)(nil)

func NewBalances() *Balances {
	return &Balances{docs: make(map[string]*tokens.Balance)}
}

func (s *Balances) Get(_ context.Context, shop string) (*tokens.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.docs[shop]
	if !ok {
		return nil, tokens.ErrBalanceNotFound
	}
	return b.Clone(), nil
}

func (s *Balances) Create(_ context.Context, b *tokens.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[b.Shop]; ok {
		return tokens.ErrBalanceExists
	}
	s.docs[b.Shop] = b.Clone()
	return nil
}

func (s *Balances) Apply(_ context.Context, shop string, m tokens.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.docs[shop]
	if !ok || b.Version != m.ExpectVersion {
		return tokens.ErrConflict
	}
	next := b.Clone()
	m.ApplyTo(next)
	s.docs[shop] = next
	return nil
}

func (s *Balances) Delete(_ context.Context, shop string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, shop)
	return nil
}
