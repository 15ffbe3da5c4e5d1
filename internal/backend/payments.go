package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
)

// PaymentRequest starts a hosted payment session for a created order.
type PaymentRequest struct {
	OrderID    string
	Amount     decimal.Decimal
	Customer   domain.GuestInfo
	SuccessURL string
	FailureURL string
	CancelURL  string
}

type wirePaymentRequest struct {
	OrderID    string           `json:"orderId"`
	Amount     amount           `json:"amount"`
	Customer   domain.GuestInfo `json:"customer"`
	SuccessURL string           `json:"successUrl,omitempty"`
	FailureURL string           `json:"failureUrl,omitempty"`
	CancelURL  string           `json:"cancelUrl,omitempty"`
}

type paymentProvider struct {
	path     string
	urlField string
}

var paymentProviders = map[domain.PaymentMethod]paymentProvider{
	domain.PaymentCard:   {path: "/api/payment/ngenius/card", urlField: "paymentUrl"},
	domain.PaymentTamara: {path: "/api/payment/tamara/checkout", urlField: "checkout_url"},
	domain.PaymentTabby:  {path: "/api/payment/tabby/checkout", urlField: "payment_url"},
}

var ErrUnknownProvider = errors.New("backend: no payment provider for method")

// StartPayment calls the provider endpoint of method and returns the hosted
// page URL. An empty URL with a nil error means the provider answered
// without one; callers decide how to treat that.
func (c *Client) StartPayment(ctx context.Context, method domain.PaymentMethod, req PaymentRequest) (string, error) {
	provider, ok := paymentProviders[method]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownProvider, method)
	}

	body := wirePaymentRequest{
		OrderID:    req.OrderID,
		Amount:     amount(req.Amount),
		Customer:   req.Customer,
		SuccessURL: req.SuccessURL,
		FailureURL: req.FailureURL,
		CancelURL:  req.CancelURL,
	}

	var raw json.RawMessage
	if err := c.post(ctx, provider.path, body, &raw); err != nil {
		return "", err
	}
	return redirectURL(raw, provider.urlField), nil
}

func redirectURL(raw json.RawMessage, field string) string {
	for _, obj := range []json.RawMessage{raw, unwrapObject(raw)} {
		var payload map[string]json.RawMessage
		if err := json.Unmarshal(obj, &payload); err != nil {
			continue
		}
		var u string
		if err := json.Unmarshal(payload[field], &u); err == nil && u != "" {
			return u
		}
	}
	return ""
}
