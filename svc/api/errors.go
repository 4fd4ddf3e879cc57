package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rankfoundry/shopseo/handler"
	"github.com/rankfoundry/shopseo/pkg/billing"
	"github.com/rankfoundry/shopseo/pkg/tokens"
)

var statusByError = []struct {
	err    error
	status int
	code   string
}{
	{billing.ErrInvalidPlan, http.StatusBadRequest, "invalid_plan"},
	{billing.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{tokens.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{tokens.ErrInvalidShop, http.StatusBadRequest, "invalid_shop"},
	{billing.ErrShopNotFound, http.StatusNotFound, "shop_not_found"},
	{billing.ErrSubscriptionNotFound, http.StatusNotFound, "subscription_not_found"},
	{billing.ErrNoActiveSubscription, http.StatusConflict, "no_active_subscription"},
	{billing.ErrAlreadyActivated, http.StatusConflict, "already_activated"},
	{billing.ErrChargeNotApproved, http.StatusConflict, "charge_not_approved"},
	{billing.ErrStaleWrite, http.StatusConflict, "conflict"},
	{tokens.ErrConflict, http.StatusConflict, "conflict"},
	{billing.ErrGatewayUnreachable, http.StatusBadGateway, "gateway_unreachable"},
}

// classify maps a service error onto its HTTP status, error code and any
// structured fields the client needs to recover.
func classify(err error) (handler.HTTPError, map[string]any) {
	var (
		httpErr  handler.HTTPError
		cmdErr   *billing.CommandError
		short    *tokens.InsufficientBalanceError
		denied   *billing.AccessDeniedError
		rejected *billing.GatewayRejectedError
	)

	switch {
	case errors.As(err, &httpErr):
		return httpErr, nil
	case errors.As(err, &cmdErr):
		return handler.HTTPError{Status: http.StatusUnprocessableEntity, Code: "invalid_command", Cause: err, Details: cmdErr.Fields}, nil
	case errors.As(err, &short):
		return handler.NewHTTPError(http.StatusPaymentRequired, "insufficient_balance", err), map[string]any{
			"requested": short.Requested,
			"available": short.Available,
			"shortfall": short.Shortfall,
		}
	case errors.As(err, &denied):
		return handler.NewHTTPError(http.StatusForbidden, "access_denied", err), map[string]any{"reason": denied.Reason}
	case errors.As(err, &rejected):
		return handler.HTTPError{
			Status:  http.StatusUnprocessableEntity,
			Code:    "gateway_rejected",
			Cause:   err,
			Details: userErrorDetails(rejected.UserErrors),
		}, nil
	}

	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return handler.NewHTTPError(m.status, m.code, err), nil
		}
	}
	return handler.NewHTTPError(http.StatusInternalServerError, "internal_server_error", err), nil
}

func userErrorDetails(ues []billing.UserError) map[string][]string {
	if len(ues) == 0 {
		return nil
	}
	out := make(map[string][]string, len(ues))
	for _, ue := range ues {
		key := strings.Join(ue.Field, ".")
		if key == "" {
			key = "base"
		}
		out[key] = append(out[key], ue.Message)
	}
	return out
}
