package flow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/simaogato/cryptokiosk-backend/internal/domain"
	"go.uber.org/zap"
)

// StartPurchase discards any active session and opens a purchase at its first step
func (c *Controller) StartPurchase(ctx context.Context) error {
	return c.start(ctx, domain.KindPurchase)
}

// StartSale discards any active session and opens a sale at its first step
func (c *Controller) StartSale(ctx context.Context) error {
	return c.start(ctx, domain.KindSale)
}

func (c *Controller) start(ctx context.Context, kind domain.TransactionKind) error {
	var released uuid.UUID

	err := c.do(func() error {
		session, err := domain.NewTransactionSession(kind, c.now())
		if err != nil {
			return err
		}

		released = c.discardLocked()
		c.session = session
		c.deps.Metrics.StepEntered(string(kind), session.StepName())
		c.deps.Logger.Info("session started",
			zap.String("session_id", session.ID.String()),
			zap.String("kind", string(kind)),
		)
		return nil
	})

	c.release(ctx, released)
	return err
}

// Cancel destroys the active session and returns to the main screen.
// An outstanding operation is not aborted; its result is dropped when it arrives.
func (c *Controller) Cancel(ctx context.Context) error {
	var released uuid.UUID

	err := c.do(func() error {
		if c.session == nil {
			return domain.ErrNoActiveSession
		}
		released = c.discardLocked()
		return nil
	})

	c.release(ctx, released)
	return err
}

// ReturnToMain leaves a completed session for the main screen
func (c *Controller) ReturnToMain(ctx context.Context) error {
	return c.do(func() error {
		if c.session == nil {
			return domain.ErrNoActiveSession
		}
		if c.session.Status != domain.StatusCompleted {
			return fmt.Errorf("%w: only a completed session returns to main, use cancel", domain.ErrInvalidAction)
		}
		c.discardLocked()
		return nil
	})
}

// GoBack moves one step back.
// On the first step it cancels; on a completed session it returns to main;
// during purchase processing it is refused.
func (c *Controller) GoBack(ctx context.Context) error {
	var released uuid.UUID

	err := c.do(func() error {
		s := c.session
		if s == nil {
			return domain.ErrNoActiveSession
		}

		if s.Status == domain.StatusCompleted || s.Step == 1 {
			released = c.discardLocked()
			return nil
		}

		if s.Kind == domain.KindPurchase && s.Step == domain.StepPurchaseProcessing {
			return domain.ErrStepLocked
		}

		if c.pending != nil {
			c.deps.Logger.Info("abandoning pending operation",
				zap.String("operation", c.pending.name),
				zap.String("session_id", s.ID.String()),
			)
			c.pending = nil
		}

		released = c.stepBackLocked(s)
		return nil
	})

	c.release(ctx, released)
	return err
}

// stepBackLocked undoes what the current step's predecessor produced.
// It returns the session ID when the issued verification code must be voided.
func (c *Controller) stepBackLocked(s *domain.TransactionSession) uuid.UUID {
	var released uuid.UUID

	if s.Kind == domain.KindSale {
		if s.Step == domain.StepSaleEnterAmount {
			s.Asset = ""
			s.Network = ""
			s.ClearPricing()
			c.advance(s, domain.StepSaleSelectCrypto)
			return released
		}

		// ReviewQuote and AwaitPayment both reset the sale amount
		s.ClearPricing()
		c.advance(s, domain.StepSaleEnterAmount)
		return released
	}

	switch s.Step {
	case domain.StepPurchaseAwaitingCode:
		// back to phone entry, the code already sent is void
		released = s.ID
	case domain.StepPurchaseSelectCrypto:
		// the code was consumed on verification, so the customer requests a new one
		s.PhoneVerified = false
		c.advance(s, domain.StepPurchaseEnterPhone)
		return released
	case domain.StepPurchaseConfirmAmount:
		s.DetectedCashAmount = 0
		s.ClearPricing()
	}

	c.advance(s, s.Step-1)
	return released
}

// discardLocked drops the active session. An unfinished session counts as cancelled
// and has its customer data wiped. Returns the dropped session's ID.
func (c *Controller) discardLocked() uuid.UUID {
	s := c.session
	if s == nil {
		return uuid.Nil
	}

	c.session = nil
	c.pending = nil

	if s.Status != domain.StatusCompleted {
		c.deps.Logger.Info("session cancelled",
			zap.String("session_id", s.ID.String()),
			zap.String("kind", string(s.Kind)),
			zap.String("step", s.StepName()),
		)
		s.Status = domain.StatusCancelled
		s.ReleaseTransient()
		c.deps.Metrics.SessionCancelled(string(s.Kind))
	}

	return s.ID
}

func (c *Controller) release(ctx context.Context, sessionID uuid.UUID) {
	if sessionID != uuid.Nil {
		c.deps.Verifier.Release(ctx, sessionID)
	}
}
