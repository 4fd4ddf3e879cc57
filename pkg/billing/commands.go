package billing

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// SubscribeCommand requests a plan subscription or plan change.
type SubscribeCommand struct {
	Shop     string `json:"shop" validate:"required,fqdn"`
	Plan     string `json:"plan" validate:"required"`
	EndTrial bool   `json:"endTrial"`
	ReturnTo string `json:"returnTo" validate:"omitempty,startswith=/"`
}

// ApprovalCallback is the merchant returning from the subscription approval page.
type ApprovalCallback struct {
	Shop     string `query:"shop" validate:"required,fqdn"`
	Plan     string `query:"plan"`
	ChargeID string `query:"charge_id"`
	ReturnTo string `query:"returnTo" validate:"omitempty,startswith=/"`
}

// ActivateCommand ends the trial (EndTrial) or starts billing explicitly.
type ActivateCommand struct {
	Shop     string `json:"shop" validate:"required,fqdn"`
	EndTrial bool   `json:"endTrial"`
	ReturnTo string `json:"returnTo" validate:"omitempty,startswith=/"`
}

type CancelCommand struct {
	Shop string `json:"shop" validate:"required,fqdn"`
}

// PurchaseTokensCommand buys tokens for a USD amount.
type PurchaseTokensCommand struct {
	Shop      string          `json:"shop" validate:"required,fqdn"`
	USDAmount decimal.Decimal `json:"usdAmount"`
	ReturnTo  string          `json:"returnTo" validate:"omitempty,startswith=/"`
}

// TokenPurchaseCallback is the merchant returning from the one-time charge approval page.
type TokenPurchaseCallback struct {
	Shop      string          `query:"shop" validate:"required,fqdn"`
	USDAmount decimal.Decimal `query:"usd"`
	ChargeID  string          `query:"charge_id" validate:"required"`
	ReturnTo  string          `query:"returnTo" validate:"omitempty,startswith=/"`
}

// BillingSuccessSignal reports a successful recurring charge.
type BillingSuccessSignal struct {
	Shop           string `json:"shop" validate:"required,fqdn"`
	SubscriptionID string `json:"subscriptionId" validate:"required"`
	EventID        string `json:"-"`
}

// AccessCheck asks whether shop may use feature, optionally spending Tokens.
type AccessCheck struct {
	Shop    string `json:"shop" validate:"required,fqdn"`
	Feature string `json:"feature" validate:"required"`
	Tokens  int64  `json:"tokens" validate:"gte=0"`
}

// ConsumeCommand debits tokens for a feature use.
type ConsumeCommand struct {
	Shop     string         `json:"shop" validate:"required,fqdn"`
	Feature  string         `json:"feature" validate:"required"`
	Amount   int64          `json:"amount" validate:"gt=0"`
	Metadata map[string]any `json:"metadata"`
}

// UninstallSignal reports that the app was removed from a shop.
type UninstallSignal struct {
	Shop string `json:"shop" validate:"required,fqdn"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})
	return v
}

// Validate checks a command's struct tags and returns a *CommandError listing invalid fields.
func Validate(cmd any) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Join(ErrInvalidCommand, err)
	}

	fields := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], fe.Tag())
	}
	return &CommandError{Fields: fields}
}
