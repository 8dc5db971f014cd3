package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/simaogato/cryptokiosk-backend/internal/domain"
	"github.com/simaogato/cryptokiosk-backend/internal/metrics"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/fee"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/ledger"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/verification"
	"go.uber.org/zap"
)

// Screen is the top-level screen a terminal shows
type Screen string

const (
	ScreenMain     Screen = "MAIN"
	ScreenPurchase Screen = "PURCHASE"
	ScreenSale     Screen = "SALE"
)

// View is what the view layer renders after every transition
type View struct {
	Screen    Screen
	Step      domain.Step
	StepName  string
	Session   *domain.TransactionSession // copy; nil on the main screen
	LastError string
	Pending   string // name of the outstanding operation, "" when idle
}

// Observer receives a View after every transition, in transition order.
// Render must not call back into the Controller's actions.
type Observer interface {
	Render(view View)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(view View)

// Render calls f(view)
func (f ObserverFunc) Render(view View) { f(view) }

// QuoteProvider returns a quote for an asset and never fails
type QuoteProvider interface {
	GetPrice(ctx context.Context, asset domain.Asset) domain.Quote
}

// Verifier issues and checks per-session verification codes
type Verifier interface {
	Issue(ctx context.Context, sessionID uuid.UUID, method domain.CommunicationMethod, phone string) (*verification.Delivery, error)
	Expected(ctx context.Context, sessionID uuid.UUID) (string, error)
	Release(ctx context.Context, sessionID uuid.UUID)
}

// Recorder persists completed sessions
type Recorder interface {
	RecordCompletion(ctx context.Context, input ledger.RecordCompletionInput) (*domain.TransactionRecord, error)
}

// Dependencies wires a Controller to its collaborators
type Dependencies struct {
	Policy     domain.Policy
	Quotes     QuoteProvider
	Pricer     *fee.Calculator
	Verifier   Verifier
	Cash       domain.CashAcceptor
	Settlement domain.SettlementGateway
	Invoices   domain.PaymentRequester
	Payments   domain.PaymentConfirmer
	Ledger     Recorder
	Observer   Observer // optional
	Metrics    *metrics.Metrics
	Logger     *zap.Logger

	// OperationTimeout bounds every background operation (cash detection, settlement, ...)
	OperationTimeout time.Duration
}

// operation is the single step-bound asynchronous operation a session may have outstanding
type operation struct {
	name      string
	sessionID uuid.UUID
}

// Controller drives the purchase and sale wizards of one kiosk terminal.
// It owns the terminal's only TransactionSession. User actions are synchronous
// method calls; network and hardware work runs on tracked goroutines whose
// results are applied only if the operation is still the current one.
type Controller struct {
	deps Dependencies
	now  func() time.Time

	mu       sync.Mutex
	renderMu sync.Mutex // taken before mu is released so views render in order
	session  *domain.TransactionSession
	pending  *operation
	lastErr  string

	background tracker
}

// NewController creates a new Controller instance showing the main screen
func NewController(deps Dependencies) (*Controller, error) {
	if err := deps.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	if deps.Quotes == nil || deps.Pricer == nil || deps.Verifier == nil ||
		deps.Cash == nil || deps.Settlement == nil || deps.Invoices == nil ||
		deps.Payments == nil || deps.Ledger == nil {
		return nil, errors.New("flow controller is missing a collaborator")
	}

	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	if deps.OperationTimeout <= 0 {
		deps.OperationTimeout = 2 * time.Minute
	}

	return &Controller{deps: deps, now: time.Now}, nil
}

// View returns the current view
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Settle blocks until every background operation has finished, including
// abandoned ones and code dispatches, or ctx ends
func (c *Controller) Settle(ctx context.Context) error {
	return c.background.wait(ctx)
}

// do runs an action against the controller state and renders the outcome.
// Guard errors (no session, wrong step, pending operation) leave everything untouched.
// A ValidationError becomes lastError; success clears it.
func (c *Controller) do(action func() error) error {
	c.mu.Lock()
	err := action()
	if isGuardError(err) {
		c.mu.Unlock()
		return err
	}
	c.recordOutcomeLocked(err)
	c.renderAndUnlock()
	return err
}

func isGuardError(err error) bool {
	return errors.Is(err, domain.ErrNoActiveSession) ||
		errors.Is(err, domain.ErrInvalidAction) ||
		errors.Is(err, domain.ErrOperationPending) ||
		errors.Is(err, domain.ErrSessionCompleted) ||
		errors.Is(err, domain.ErrStepLocked)
}

func (c *Controller) recordOutcomeLocked(err error) {
	if err == nil {
		c.lastErr = ""
		return
	}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		c.lastErr = ve.Reason
		if c.session != nil {
			c.deps.Metrics.ActionRejected(string(c.session.Kind), ve.Field)
		}
		return
	}

	c.lastErr = err.Error()
	c.deps.Logger.Warn("flow action failed", zap.Error(err))
}

// expect returns the active session if it is of kind, on step, and idle
func (c *Controller) expect(kind domain.TransactionKind, step domain.Step) (*domain.TransactionSession, error) {
	s := c.session
	if s == nil {
		return nil, domain.ErrNoActiveSession
	}

	if c.pending != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrOperationPending, c.pending.name)
	}

	if s.Status == domain.StatusCompleted {
		return nil, domain.ErrSessionCompleted
	}

	if s.Kind != kind || s.Step != step {
		return nil, fmt.Errorf("%w: %s session is on %s, action needs %s",
			domain.ErrInvalidAction, s.Kind, s.StepName(), kind.StepName(step))
	}

	return s, nil
}

// advance moves the session to step
func (c *Controller) advance(s *domain.TransactionSession, step domain.Step) {
	s.Step = step
	c.deps.Metrics.StepEntered(string(s.Kind), s.StepName())
	c.deps.Logger.Debug("step entered",
		zap.String("session_id", s.ID.String()),
		zap.String("kind", string(s.Kind)),
		zap.String("step", s.StepName()),
	)
}

// reprice recomputes every derived value from AmountArs, Asset and Quote
func (c *Controller) reprice(s *domain.TransactionSession) error {
	if s.AmountArs == 0 || s.Quote == nil {
		amount, quote := s.AmountArs, s.Quote
		s.ClearPricing()
		s.AmountArs, s.Quote = amount, quote
		return nil
	}

	pricing, err := c.deps.Pricer.Price(s.AmountArs, s.Kind, *s.Quote)
	if err != nil {
		return fmt.Errorf("failed to price transaction: %w", err)
	}

	s.FeePercentage = pricing.FeePercentage
	s.FeeAmount = pricing.FeeAmount
	s.NetAmount = pricing.NetAmount
	s.CryptoAmount = pricing.CryptoAmount
	return nil
}

// launch starts the step-bound operation of the active session.
// work runs without the lock and returns the function that applies its result;
// the result is dropped if the operation was abandoned in the meantime.
func (c *Controller) launch(ctx context.Context, name string, work func(ctx context.Context) func(s *domain.TransactionSession) error) {
	op := &operation{name: name, sessionID: c.session.ID}
	c.pending = op

	opCtx := context.WithoutCancel(ctx)
	c.background.goTracked(func() {
		runCtx, cancel := context.WithTimeout(opCtx, c.deps.OperationTimeout)
		defer cancel()

		apply := work(runCtx)
		c.finish(op, apply)
	})
}

func (c *Controller) finish(op *operation, apply func(s *domain.TransactionSession) error) {
	c.mu.Lock()
	if c.pending != op || c.session == nil || c.session.ID != op.sessionID {
		c.mu.Unlock()
		c.deps.Logger.Info("discarding result of abandoned operation",
			zap.String("operation", op.name),
			zap.String("session_id", op.sessionID.String()),
		)
		return
	}

	c.pending = nil
	err := apply(c.session)
	c.recordOutcomeLocked(err)
	c.renderAndUnlock()
}

// complete marks the active session Completed
func (c *Controller) complete(s *domain.TransactionSession, at time.Time) {
	s.Status = domain.StatusCompleted
	s.CompletedAt = &at
	c.advance(s, s.Kind.CompletedStep())
	c.deps.Metrics.TransactionCompleted(string(s.Kind), string(s.Asset))
	c.deps.Logger.Info("transaction completed",
		zap.String("session_id", s.ID.String()),
		zap.String("kind", string(s.Kind)),
		zap.String("asset", string(s.Asset)),
		zap.Int64("amount_ars", s.AmountArs),
		zap.String("crypto_amount", s.CryptoAmount.String()),
	)
}

// record persists the receipt of a settled session. The customer's money has
// already moved at this point, so a storage failure is logged and not surfaced.
func (c *Controller) record(ctx context.Context, snapshot domain.TransactionSession, completedAt time.Time) {
	snapshot.Status = domain.StatusCompleted
	snapshot.Step = snapshot.Kind.CompletedStep()

	_, err := c.deps.Ledger.RecordCompletion(ctx, ledger.RecordCompletionInput{
		Session:      snapshot,
		ExchangeRate: c.deps.Policy.ExchangeRate,
		CompletedAt:  completedAt,
	})
	if err != nil {
		c.deps.Logger.Error("failed to record completed transaction",
			zap.String("session_id", snapshot.ID.String()),
			zap.Error(err),
		)
	}
}

func (c *Controller) viewLocked() View {
	if c.session == nil {
		return View{Screen: ScreenMain, LastError: c.lastErr}
	}

	snap := c.session.Snapshot()
	view := View{
		Screen:    ScreenPurchase,
		Step:      snap.Step,
		StepName:  snap.StepName(),
		Session:   &snap,
		LastError: c.lastErr,
	}
	if snap.Kind == domain.KindSale {
		view.Screen = ScreenSale
	}
	if c.pending != nil {
		view.Pending = c.pending.name
	}
	return view
}

// renderAndUnlock releases mu and hands the current view to the observer
func (c *Controller) renderAndUnlock() {
	view := c.viewLocked()
	c.renderMu.Lock()
	c.mu.Unlock()
	defer c.renderMu.Unlock()

	if c.deps.Observer != nil {
		c.deps.Observer.Render(view)
	}
}
