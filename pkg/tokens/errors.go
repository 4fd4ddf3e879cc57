package tokens

import (
	"errors"
	"fmt"
)

var (
	ErrBalanceNotFound     = errors.New("token balance not found")
	ErrBalanceExists       = errors.New("token balance already exists")
	ErrConflict            = errors.New("token balance was modified concurrently")
	ErrInvalidAmount       = errors.New("invalid token amount")
	ErrInvalidShop         = errors.New("shop domain is required")
	ErrInsufficientBalance = errors.New("insufficient token balance")
)

// InsufficientBalanceError is returned by Debit when the requested amount exceeds the balance.
// Shortfall is the number of tokens the shop would need to buy to cover the request.
type InsufficientBalanceError struct {
	Requested int64
	Available int64
	Shortfall int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient token balance: requested %d, available %d, short by %d",
		e.Requested, e.Available, e.Shortfall)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}
