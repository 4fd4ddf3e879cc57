package memstore

import (
	"context"
	"sync"

	"github.com/rankfoundry/shopseo/pkg/billing"
)

// Shops implements billing.CredentialStore over an in-memory token table.
type Shops struct {
	mu     sync.RWMutex
	tokens map[string]string
}

var _ billing.CredentialStore = (*Shops)(nil)

func NewShops() *Shops {
	return &Shops{tokens: make(map[string]string)}
}

// Install records the offline access token of a shop.
func (s *Shops) Install(_ context.Context, shop, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[shop] = accessToken
	return nil
}

func (s *Shops) Credentials(_ context.Context, shop string) (billing.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[shop]
	if !ok || token == "" {
		return billing.Credentials{}, billing.ErrShopNotFound
	}
	return billing.Credentials{Shop: shop, AccessToken: token}, nil
}

func (s *Shops) Delete(_ context.Context, shop string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, shop)
	return nil
}
