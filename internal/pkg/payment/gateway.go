package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"

	"github.com/markverse/replenish/internal/pkg/env"
)

// ErrEmptyOrder is returned when an order carries no chargeable items.
var ErrEmptyOrder = errors.New("order has no items")

// Item is one order line.
type Item struct {
	ProductID uint            `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Order is the payload handed to the gateway for one occurrence.
type Order struct {
	Items           []Item `json:"items"`
	Currency        string `json:"currency,omitempty"`
	PaymentMethod   string `json:"payment_method"`
	PaymentMethodID string `json:"payment_method_id,omitempty"`
	ShippingCountry string `json:"shipping_country"`
	ShippingMethod  string `json:"shipping_method"`
}

// Total sums the order lines.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// Processor charges a customer and produces the order for one due occurrence.
// Implementations must treat a returned error as "nothing was recorded": the
// schedule engine will redeliver the occurrence.
type Processor interface {
	ProcessPaymentAndCreateOrder(ctx context.Context, customerID uint, order Order) (orderRef string, err error)
}

// StripeProcessor charges via Stripe PaymentIntents. All gateway calls run
// through a circuit breaker so a dead gateway fails fast instead of tying up
// delivery workers.
type StripeProcessor struct {
	breaker         *gobreaker.CircuitBreaker[*stripe.PaymentIntent]
	defaultCurrency string
}

// NewStripeProcessor creates a processor configured from the environment.
func NewStripeProcessor() *StripeProcessor {
	stripe.Key = env.GetEnv("STRIPE_SECRET_KEY", "")

	breaker := gobreaker.NewCircuitBreaker[*stripe.PaymentIntent](gobreaker.Settings{
		Name:        "stripe-payments",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &StripeProcessor{
		breaker:         breaker,
		defaultCurrency: strings.ToLower(env.GetEnv("PAYMENT_DEFAULT_CURRENCY", "usd")),
	}
}

// ProcessPaymentAndCreateOrder confirms an off-session PaymentIntent for the
// order total and returns the intent id as the order reference.
func (p *StripeProcessor) ProcessPaymentAndCreateOrder(ctx context.Context, customerID uint, order Order) (string, error) {
	if len(order.Items) == 0 {
		return "", ErrEmptyOrder
	}

	currency := strings.ToLower(order.Currency)
	if currency == "" {
		currency = p.defaultCurrency
	}

	// Stripe amounts are in the currency's minor unit
	amount := order.Total().Shift(2).IntPart()
	if amount <= 0 {
		return "", fmt.Errorf("invalid order total %s for customer %d", order.Total(), customerID)
	}

	params := &stripe.PaymentIntentParams{
		Amount:     stripe.Int64(amount),
		Currency:   stripe.String(currency),
		Confirm:    stripe.Bool(true),
		OffSession: stripe.Bool(true),
	}
	params.Context = ctx
	if order.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(order.PaymentMethodID)
	}
	params.AddMetadata("customer_id", fmt.Sprintf("%d", customerID))
	params.AddMetadata("shipping_country", order.ShippingCountry)
	params.AddMetadata("shipping_method", order.ShippingMethod)

	intent, err := p.breaker.Execute(func() (*stripe.PaymentIntent, error) {
		return paymentintent.New(params)
	})
	if err != nil {
		return "", fmt.Errorf("payment failed for customer %d: %w", customerID, err)
	}

	log.Infof("[Payment] Charged customer %d: %s %s (intent %s)", customerID, order.Total(), currency, intent.ID)
	return intent.ID, nil
}
