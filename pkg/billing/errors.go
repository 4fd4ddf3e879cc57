package billing

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidPlan          = errors.New("invalid subscription plan")
	ErrInvalidAmount        = errors.New("invalid purchase amount")
	ErrInvalidCommand       = errors.New("invalid billing command")
	ErrShopNotFound         = errors.New("shop credentials not found")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrAlreadyActivated     = errors.New("subscription already activated")
	ErrChargeNotApproved    = errors.New("charge has not been approved")
	ErrAccessDenied         = errors.New("feature access denied")

	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrStaleWrite           = errors.New("subscription changed concurrently")
	ErrCacheMiss            = errors.New("billing view not cached")

	ErrGatewayUnreachable = errors.New("billing gateway unreachable")
	ErrGatewayRejected    = errors.New("billing gateway rejected the request")

	ErrInvalidCatalog  = errors.New("invalid plan catalog")
	ErrFailedLoadPlans = errors.New("failed to load plan catalog")
	ErrInvalidMoney    = errors.New("invalid monetary amount")
)

// UserError is a business-level error reported by the gateway for a single input field.
type UserError struct {
	Field   []string `json:"field,omitempty"`
	Message string   `json:"message"`
}

// GatewayRejectedError carries the gateway's user errors for a rejected call.
type GatewayRejectedError struct {
	Op         string
	UserErrors []UserError
}

func (e *GatewayRejectedError) Error() string {
	msgs := make([]string, 0, len(e.UserErrors))
	for _, ue := range e.UserErrors {
		if len(ue.Field) > 0 {
			msgs = append(msgs, strings.Join(ue.Field, ".")+": "+ue.Message)
			continue
		}
		msgs = append(msgs, ue.Message)
	}
	return fmt.Sprintf("%s rejected: %s", e.Op, strings.Join(msgs, "; "))
}

func (e *GatewayRejectedError) Is(target error) bool {
	return target == ErrGatewayRejected
}

// CommandError lists the invalid fields of a command, keyed by JSON name.
type CommandError struct {
	Fields map[string][]string
}

func (e *CommandError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	return "invalid billing command: " + strings.Join(keys, ", ")
}

func (e *CommandError) Is(target error) bool {
	return target == ErrInvalidCommand
}

// AccessDeniedError explains why a feature check failed.
type AccessDeniedError struct {
	Feature string
	Reason  AccessReason
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access to %q denied: %s", e.Feature, e.Reason)
}

func (e *AccessDeniedError) Is(target error) bool {
	return target == ErrAccessDenied
}
