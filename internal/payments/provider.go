package payments

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidSession is returned when a checkout request cannot be sent to the PSP.
var ErrInvalidSession = errors.New("payments: invalid checkout session request")

// CheckoutLineItem is one priced line, in currency minor units.
type CheckoutLineItem struct {
	Name        string
	Description string
	Key         string
	Quantity    int64
	UnitAmount  int64
	Currency    string
}

// CheckoutSessionRequest captures the payload required to create a checkout session.
type CheckoutSessionRequest struct {
	Currency       string
	SuccessURL     string
	CancelURL      string
	Locale         string
	Metadata       map[string]string
	IdempotencyKey string
	Items          []CheckoutLineItem
}

// Total sums the line items in minor units.
func (r CheckoutSessionRequest) Total() int64 {
	var total int64
	for _, item := range r.Items {
		total += item.UnitAmount * max(item.Quantity, 1)
	}
	return total
}

// CheckoutSession represents the PSP session returned to the client.
type CheckoutSession struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	RedirectURL string    `json:"redirectUrl"`
	IntentID    string    `json:"intentId,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Provider creates hosted checkout sessions.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
}
