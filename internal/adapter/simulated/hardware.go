package simulated

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/simaogato/cryptokiosk-backend/internal/domain"
	"go.uber.org/zap"
)

// CashAcceptor reports a fixed banknote total after a delay, standing in for the bill validator
type CashAcceptor struct {
	Amount int64
	Delay  time.Duration
	Logger *zap.Logger
}

// NewCashAcceptor creates a new CashAcceptor instance
func NewCashAcceptor(amount int64, delay time.Duration, logger *zap.Logger) *CashAcceptor {
	return &CashAcceptor{Amount: amount, Delay: delay, Logger: logger}
}

// DetectInsertedCash implements domain.CashAcceptor
func (a *CashAcceptor) DetectInsertedCash(ctx context.Context) (int64, error) {
	if err := wait(ctx, a.Delay); err != nil {
		return 0, err
	}

	a.Logger.Info("simulated cash detected", zap.Int64("amount_ars", a.Amount))
	return a.Amount, nil
}

// SettlementGateway pretends to send crypto to a wallet and returns a random reference
type SettlementGateway struct {
	Delay  time.Duration
	Logger *zap.Logger
}

// NewSettlementGateway creates a new SettlementGateway instance
func NewSettlementGateway(delay time.Duration, logger *zap.Logger) *SettlementGateway {
	return &SettlementGateway{Delay: delay, Logger: logger}
}

// Settle implements domain.SettlementGateway
func (g *SettlementGateway) Settle(ctx context.Context, req domain.SettlementRequest) (string, error) {
	if req.WalletAddress == "" {
		return "", errors.New("settlement needs a wallet address")
	}
	if !req.CryptoAmount.IsPositive() {
		return "", errors.New("settlement amount must be positive")
	}

	if err := wait(ctx, g.Delay); err != nil {
		return "", err
	}

	ref := "sim-" + uuid.NewString()
	g.Logger.Info("simulated settlement sent",
		zap.String("session_id", req.SessionID.String()),
		zap.String("asset", string(req.Asset)),
		zap.String("network", req.Network),
		zap.String("crypto_amount", req.CryptoAmount.String()),
		zap.String("settlement_ref", ref),
	)
	return ref, nil
}

// wait sleeps for d unless ctx ends first
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
