// Package payments wraps the Mercado Pago SDK: checkout preference creation
// at booking time and payment lookups when the webhook fires. The payable
// amount at checkout is the deposit, half of each treatment price; the
// balance is settled at the clinic.
package payments

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	mpconfig "github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"

	"github.com/aluna-estetica/backend/internal/booking"
)

type Config struct {
	AccessToken     string
	SuccessURL      string
	FailureURL      string
	PendingURL      string
	NotificationURL string
}

type Client struct {
	prefs  preference.Client
	pays   payment.Client
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("mercado pago access token is required")
	}
	mpCfg, err := mpconfig.New(cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("mercado pago config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		prefs:  preference.NewClient(mpCfg),
		pays:   payment.NewClient(mpCfg),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Deposit is the payable amount for a treatment price: 50%, rounded to
// cents.
func Deposit(price float64) float64 {
	return math.Round(price*50) / 100
}

type Checkout struct {
	PreferenceID string  `json:"preference_id"`
	InitPoint    string  `json:"init_point"`
	Reference    string  `json:"reference"`
	Amount       float64 `json:"amount"`
}

// CreateCheckout builds a preference whose items are the deposits for the
// cart lines. reference ties the eventual payment back to our order.
func (c *Client) CreateCheckout(ctx context.Context, reference string, lines []booking.CartLine) (Checkout, error) {
	if len(lines) == 0 {
		return Checkout{}, fmt.Errorf("empty cart")
	}

	items := make([]preference.ItemRequest, 0, len(lines))
	var total float64
	for i, line := range lines {
		deposit := Deposit(line.Price)
		total += deposit
		title := line.Treatment
		if line.Zone != "" {
			title += " - " + line.Zone
		}
		items = append(items, preference.ItemRequest{
			ID:          strconv.Itoa(i + 1),
			Title:       title,
			Description: fmt.Sprintf("Reserva %s %s (seña 50%%)", line.Date, line.Time),
			Quantity:    1,
			UnitPrice:   deposit,
		})
	}

	req := preference.Request{
		Items:             items,
		ExternalReference: reference,
		NotificationURL:   c.cfg.NotificationURL,
		BackURLs: &preference.BackURLsRequest{
			Success: c.cfg.SuccessURL,
			Failure: c.cfg.FailureURL,
			Pending: c.cfg.PendingURL,
		},
	}

	resp, err := c.prefs.Create(ctx, req)
	if err != nil {
		return Checkout{}, fmt.Errorf("create preference: %w", err)
	}
	return Checkout{
		PreferenceID: resp.ID,
		InitPoint:    resp.InitPoint,
		Reference:    reference,
		Amount:       total,
	}, nil
}

// PaymentResult is what the webhook path needs: where the money stands and
// which order it belongs to.
type PaymentResult struct {
	Status    string
	Reference string
	Amount    float64
}

func (c *Client) LookupPayment(ctx context.Context, id int) (PaymentResult, error) {
	resp, err := c.pays.Get(ctx, id)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("get payment %d: %w", id, err)
	}
	return PaymentResult{
		Status:    resp.Status,
		Reference: resp.ExternalReference,
		Amount:    resp.TransactionAmount,
	}, nil
}

// OrderStatusFor maps a Mercado Pago payment status onto our order machine.
func OrderStatusFor(paymentStatus string) string {
	switch paymentStatus {
	case "approved":
		return "paid"
	case "rejected", "cancelled":
		return "failed"
	default:
		return "pending"
	}
}
