package flow

import (
	"context"
	"fmt"

	"github.com/simaogato/cryptokiosk-backend/internal/domain"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/validator"
)

// SelectSaleCrypto records the asset the customer sells
func (c *Controller) SelectSaleCrypto(ctx context.Context, asset domain.Asset) error {
	return c.do(func() error {
		s, err := c.expect(domain.KindSale, domain.StepSaleSelectCrypto)
		if err != nil {
			return err
		}

		if err := c.setAsset(s, asset); err != nil {
			return err
		}

		c.advance(s, domain.StepSaleEnterAmount)
		return nil
	})
}

// RequestQuote validates the ARS amount and prices it against a fresh quote.
// Quoting never blocks the sale: a failed lookup yields a Fallback quote.
func (c *Controller) RequestQuote(ctx context.Context, amountArs int64) error {
	return c.do(func() error {
		s, err := c.expect(domain.KindSale, domain.StepSaleEnterAmount)
		if err != nil {
			return err
		}

		if ok, reason := validator.IsAmountInRange(amountArs, c.deps.Policy.Limits); !ok {
			return domain.NewValidationError("amount", reason)
		}

		asset := s.Asset
		c.launch(ctx, "quote", func(ctx context.Context) func(*domain.TransactionSession) error {
			quote := c.deps.Quotes.GetPrice(ctx, asset)

			return func(s *domain.TransactionSession) error {
				s.AmountArs = amountArs
				s.Quote = &quote
				if err := c.reprice(s); err != nil {
					s.ClearPricing()
					return err
				}
				c.advance(s, domain.StepSaleReviewQuote)
				return nil
			}
		})
		return nil
	})
}

// ShowSaleInfo is RequestQuote under the name the sale screen uses
func (c *Controller) ShowSaleInfo(ctx context.Context, amountArs int64) error {
	return c.RequestQuote(ctx, amountArs)
}

// ConfirmShowQR accepts the quote and generates the payment request shown as a QR code
func (c *Controller) ConfirmShowQR(ctx context.Context) error {
	return c.do(func() error {
		s, err := c.expect(domain.KindSale, domain.StepSaleReviewQuote)
		if err != nil {
			return err
		}

		pr, err := c.deps.Invoices.CreatePaymentRequest(ctx, domain.PaymentRequestInput{
			SessionID:    s.ID,
			Asset:        s.Asset,
			Network:      s.Network,
			CryptoAmount: s.CryptoAmount,
		})
		if err != nil {
			return fmt.Errorf("could not create payment request: %w", err)
		}

		s.PaymentRequest = pr
		c.advance(s, domain.StepSaleAwaitPayment)
		return nil
	})
}

// ConfirmPayment waits for the customer's payment and completes the sale when it arrives.
// Without a confirmation the session stays on AwaitPayment.
func (c *Controller) ConfirmPayment(ctx context.Context) error {
	return c.do(func() error {
		s, err := c.expect(domain.KindSale, domain.StepSaleAwaitPayment)
		if err != nil {
			return err
		}

		snapshot := s.Snapshot()
		c.launch(ctx, "payment_confirmation", func(ctx context.Context) func(*domain.TransactionSession) error {
			if err := c.deps.Payments.AwaitPayment(ctx, snapshot.PaymentRequest); err != nil {
				return fail(fmt.Errorf("payment not confirmed: %w", err))
			}

			completedAt := c.now()
			c.record(ctx, snapshot, completedAt)

			return func(s *domain.TransactionSession) error {
				c.complete(s, completedAt)
				return nil
			}
		})
		return nil
	})
}
