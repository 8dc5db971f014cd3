package simulated

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/simaogato/cryptokiosk-backend/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultLightningAddress = "liquidgold@strike.me"
	DefaultTRC20Wallet      = "liquidgold_wallet"
)

// InvoiceGenerator builds the payment request URIs shown to sale customers as QR codes
type InvoiceGenerator struct {
	LightningAddress string
	TRC20Wallet      string
}

// NewInvoiceGenerator creates a new InvoiceGenerator instance; empty receivers fall back to the defaults
func NewInvoiceGenerator(lightningAddress, trc20Wallet string) *InvoiceGenerator {
	if lightningAddress == "" {
		lightningAddress = DefaultLightningAddress
	}
	if trc20Wallet == "" {
		trc20Wallet = DefaultTRC20Wallet
	}
	return &InvoiceGenerator{LightningAddress: lightningAddress, TRC20Wallet: trc20Wallet}
}

// CreatePaymentRequest implements domain.PaymentRequester
// Lightning: <address>?session=<id>&amount=<crypto>
// TRC20:     TRC20:<wallet>?session=<id>&amount=<crypto>
func (g *InvoiceGenerator) CreatePaymentRequest(_ context.Context, in domain.PaymentRequestInput) (string, error) {
	if !in.CryptoAmount.IsPositive() {
		return "", errors.New("payment request amount must be positive")
	}

	query := fmt.Sprintf("session=%s&amount=%s", in.SessionID, in.CryptoAmount.String())

	switch in.Network {
	case "Lightning":
		return g.LightningAddress + "?" + query, nil
	case "TRC20":
		return "TRC20:" + g.TRC20Wallet + "?" + query, nil
	default:
		return "", fmt.Errorf("no receiver configured for network %q", in.Network)
	}
}

// PaymentConfirmer reports every payment request as paid after a delay
type PaymentConfirmer struct {
	Delay  time.Duration
	Logger *zap.Logger
}

// NewPaymentConfirmer creates a new PaymentConfirmer instance
func NewPaymentConfirmer(delay time.Duration, logger *zap.Logger) *PaymentConfirmer {
	return &PaymentConfirmer{Delay: delay, Logger: logger}
}

// AwaitPayment implements domain.PaymentConfirmer
func (c *PaymentConfirmer) AwaitPayment(ctx context.Context, paymentRequest string) error {
	if paymentRequest == "" {
		return errors.New("no payment request to wait for")
	}

	if err := wait(ctx, c.Delay); err != nil {
		return err
	}

	c.Logger.Info("simulated payment confirmed", zap.String("payment_request", paymentRequest))
	return nil
}
