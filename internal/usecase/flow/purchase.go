package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/simaogato/cryptokiosk-backend/internal/domain"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/validator"
)

// SelectCommunicationMethod records the channel verification codes are sent through
func (c *Controller) SelectCommunicationMethod(ctx context.Context, method domain.CommunicationMethod) error {
	return c.do(func() error {
		s, err := c.expect(domain.KindPurchase, domain.StepPurchaseSelectMethod)
		if err != nil {
			return err
		}

		if method != domain.MethodWhatsApp && method != domain.MethodSMS {
			return domain.NewValidationError("communication_method", "choose WhatsApp or SMS")
		}

		s.CommunicationMethod = method
		return nil
	})
}

// ConfirmCommunicationMethod continues to phone entry once a method is chosen
func (c *Controller) ConfirmCommunicationMethod(ctx context.Context) error {
	return c.do(func() error {
		s, err := c.expect(domain.KindPurchase, domain.StepPurchaseSelectMethod)
		if err != nil {
			return err
		}

		if s.CommunicationMethod == "" {
			return domain.NewValidationError("communication_method", "choose WhatsApp or SMS to continue")
		}

		c.advance(s, domain.StepPurchaseEnterPhone)
		return nil
	})
}

// SendVerificationCode issues a code for phone and moves to code entry.
// The code is dispatched in the background; delivery is never awaited.
func (c *Controller) SendVerificationCode(ctx context.Context, phone string) error {
	return c.do(func() error {
		s, err := c.expect(domain.KindPurchase, domain.StepPurchaseEnterPhone)
		if err != nil {
			return err
		}

		if ok, reason := validator.IsPhoneProvided(phone); !ok {
			return domain.NewValidationError("phone", reason)
		}

		phone = strings.TrimSpace(phone)
		if err := c.issueCode(ctx, s, phone); err != nil {
			return err
		}

		s.Phone = phone
		c.advance(s, domain.StepPurchaseAwaitingCode)
		return nil
	})
}

// ResendVerificationCode issues a fresh code to the phone already entered
func (c *Controller) ResendVerificationCode(ctx context.Context) error {
	return c.do(func() error {
		s, err := c.expect(domain.KindPurchase, domain.StepPurchaseAwaitingCode)
		if err != nil {
			return err
		}

		return c.issueCode(ctx, s, s.Phone)
	})
}

func (c *Controller) issueCode(ctx context.Context, s *domain.TransactionSession, phone string) error {
	delivery, err := c.deps.Verifier.Issue(ctx, s.ID, s.CommunicationMethod, phone)
	if err != nil {
		if domain.IsValidationError(err) {
			return err
		}
		return fmt.Errorf("could not issue verification code: %w", err)
	}

	sendCtx := context.WithoutCancel(ctx)
	c.background.goTracked(func() {
		runCtx, cancel := context.WithTimeout(sendCtx, c.deps.OperationTimeout)
		defer cancel()
		_ = delivery.Send(runCtx)
	})
	return nil
}

// VerifyCode compares the entered code with the one issued for this session.
// On success the phone is locked in and the code discarded.
func (c *Controller) VerifyCode(ctx context.Context, code string) error {
	var verified uuid.UUID

	err := c.do(func() error {
		s, err := c.expect(domain.KindPurchase, domain.StepPurchaseAwaitingCode)
		if err != nil {
			return err
		}

		expected, err := c.deps.Verifier.Expected(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("could not check verification code: %w", err)
		}

		if ok, reason := validator.IsCodeValid(code, expected); !ok {
			return domain.NewValidationError("verification_code", reason)
		}

		s.PhoneVerified = true
		verified = s.ID
		c.advance(s, domain.StepPurchaseSelectCrypto)
		return nil
	})

	if verified != uuid.Nil {
		c.deps.Verifier.Release(ctx, verified)
	}
	return err
}

// SelectCrypto records the asset to buy and its network metadata
func (c *Controller) SelectCrypto(ctx context.Context, asset domain.Asset) error {
	return c.do(func() error {
		s, err := c.expect(domain.KindPurchase, domain.StepPurchaseSelectCrypto)
		if err != nil {
			return err
		}

		if err := c.setAsset(s, asset); err != nil {
			return err
		}

		c.advance(s, domain.StepPurchaseConfirmWallet)
		return nil
	})
}

// ConfirmWalletAddress records the destination wallet. Only presence is checked.
func (c *Controller) ConfirmWalletAddress(ctx context.Context, address string) error {
	return c.do(func() error {
		s, err := c.expect(domain.KindPurchase, domain.StepPurchaseConfirmWallet)
		if err != nil {
			return err
		}

		if ok, reason := validator.IsWalletProvided(address); !ok {
			return domain.NewValidationError("wallet_address", reason)
		}

		s.WalletAddress = strings.TrimSpace(address)
		c.advance(s, domain.StepPurchaseAwaitCash)
		return nil
	})
}

// ConfirmCashInsertion waits for the cash acceptor and fetches a quote for the selected asset.
// Both results arrive together; the session moves to ConfirmAmount, priced for the
// detected amount, only if cash was detected.
func (c *Controller) ConfirmCashInsertion(ctx context.Context) error {
	return c.do(func() error {
		s, err := c.expect(domain.KindPurchase, domain.StepPurchaseAwaitCash)
		if err != nil {
			return err
		}

		asset := s.Asset
		c.launch(ctx, "cash_detection", func(ctx context.Context) func(*domain.TransactionSession) error {
			amount, err := c.deps.Cash.DetectInsertedCash(ctx)
			if err != nil {
				return fail(fmt.Errorf("cash detection failed: %w", err))
			}
			if amount <= 0 {
				return fail(domain.NewValidationError("cash", "no banknotes detected, insert cash and try again"))
			}

			quote := c.deps.Quotes.GetPrice(ctx, asset)

			return func(s *domain.TransactionSession) error {
				s.DetectedCashAmount = amount
				s.AmountArs = amount
				s.Quote = &quote
				if err := c.reprice(s); err != nil {
					s.DetectedCashAmount = 0
					s.ClearPricing()
					return err
				}
				c.advance(s, domain.StepPurchaseConfirmAmount)
				return nil
			}
		})
		return nil
	})
}

// ConfirmAmount commits the detected cash as the transaction amount and starts settlement.
// The detected amount is authoritative.
func (c *Controller) ConfirmAmount(ctx context.Context) error {
	return c.do(func() error {
		s, err := c.expect(domain.KindPurchase, domain.StepPurchaseConfirmAmount)
		if err != nil {
			return err
		}

		if ok, reason := validator.IsAmountInRange(s.DetectedCashAmount, c.deps.Policy.Limits); !ok {
			return domain.NewValidationError("amount", reason)
		}

		s.AmountArs = s.DetectedCashAmount
		if err := c.reprice(s); err != nil {
			return err
		}

		c.advance(s, domain.StepPurchaseProcessing)
		c.startSettlement(ctx, s)
		return nil
	})
}

func (c *Controller) startSettlement(ctx context.Context, s *domain.TransactionSession) {
	snapshot := s.Snapshot()
	req := domain.SettlementRequest{
		SessionID:     s.ID,
		Asset:         s.Asset,
		Network:       s.Network,
		WalletAddress: s.WalletAddress,
		CryptoAmount:  s.CryptoAmount,
	}

	c.launch(ctx, "settlement", func(ctx context.Context) func(*domain.TransactionSession) error {
		ref, err := c.deps.Settlement.Settle(ctx, req)
		if err != nil {
			return fail(fmt.Errorf("settlement failed: %w", err))
		}

		completedAt := c.now()
		snapshot.SettlementRef = ref
		c.record(ctx, snapshot, completedAt)

		return func(s *domain.TransactionSession) error {
			s.SettlementRef = ref
			c.complete(s, completedAt)
			return nil
		}
	})
}

// setAsset records a configured asset and reprices, since derived values depend on it
func (c *Controller) setAsset(s *domain.TransactionSession, asset domain.Asset) error {
	info, ok := c.deps.Policy.AssetInfo(asset)
	if !ok {
		return domain.NewValidationError("asset", "asset is not available at this kiosk")
	}

	if s.Asset != asset {
		s.Quote = nil
	}
	s.Asset = info.Asset
	s.Network = info.Network
	return c.reprice(s)
}

// fail returns an apply function that leaves the session where it is and reports err
func fail(err error) func(*domain.TransactionSession) error {
	return func(*domain.TransactionSession) error { return err }
}

// RetrySettlement restarts settlement after a failed attempt. Processing accepts no other input.
func (c *Controller) RetrySettlement(ctx context.Context) error {
	return c.do(func() error {
		s, err := c.expect(domain.KindPurchase, domain.StepPurchaseProcessing)
		if err != nil {
			return err
		}

		c.startSettlement(ctx, s)
		return nil
	})
}
