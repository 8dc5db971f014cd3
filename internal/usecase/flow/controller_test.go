package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/simaogato/cryptokiosk-backend/internal/adapter/cache"
	"github.com/simaogato/cryptokiosk-backend/internal/domain"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/fee"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/ledger"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/quote"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testCode = "123456"

type downSource struct{}

func (downSource) FetchPrice(context.Context, domain.Asset) (decimal.Decimal, string, error) {
	return decimal.Zero, "", errors.New("connection refused")
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, domain.CommunicationMethod, string, string) error {
	return nil
}

// gate blocks a fake until it is opened or the operation context ends
type gate chan struct{}

func (g gate) wait(ctx context.Context) error {
	if g == nil {
		return nil
	}
	select {
	case <-g:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeCash struct {
	amount int64
	err    error
	gate   gate
}

func (f *fakeCash) DetectInsertedCash(ctx context.Context) (int64, error) {
	if err := f.gate.wait(ctx); err != nil {
		return 0, err
	}
	return f.amount, f.err
}

type fakeSettlement struct {
	mu    sync.Mutex
	err   error
	gate  gate
	calls int
}

func (f *fakeSettlement) Settle(ctx context.Context, req domain.SettlementRequest) (string, error) {
	if err := f.gate.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "settle-" + req.SessionID.String(), nil
}

func (f *fakeSettlement) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeInvoices struct{}

func (fakeInvoices) CreatePaymentRequest(_ context.Context, in domain.PaymentRequestInput) (string, error) {
	return "invoice:" + in.SessionID.String() + ":" + in.CryptoAmount.String(), nil
}

type fakePayments struct {
	err  error
	gate gate
}

func (f *fakePayments) AwaitPayment(ctx context.Context, _ string) error {
	if err := f.gate.wait(ctx); err != nil {
		return err
	}
	return f.err
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []ledger.RecordCompletionInput
}

func (f *fakeRecorder) RecordCompletion(_ context.Context, input ledger.RecordCompletionInput) (*domain.TransactionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, input)
	return &domain.TransactionRecord{}, nil
}

func (f *fakeRecorder) recorded() []ledger.RecordCompletionInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledger.RecordCompletionInput(nil), f.records...)
}

type viewLog struct {
	mu    sync.Mutex
	views []View
}

func (l *viewLog) Render(v View) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.views = append(l.views, v)
}

func (l *viewLog) all() []View {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]View(nil), l.views...)
}

type harness struct {
	c          *Controller
	codes      domain.CodeStore
	cash       *fakeCash
	settlement *fakeSettlement
	payments   *fakePayments
	recorder   *fakeRecorder
	views      *viewLog
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	policy := domain.DefaultPolicy()
	logger := zap.NewNop()

	codes := cache.NewMemoryCodeStore(time.Minute)
	verifier, err := verification.NewVerificationService(codes, nopDispatcher{}, nil, verification.Settings{
		Mode:       verification.ModeStatic,
		StaticCode: testCode,
		TTL:        5 * time.Minute,
	}, nil, logger)
	require.NoError(t, err)

	quotes := quote.NewProviderService(downSource{}, map[domain.Asset]quote.FallbackPrice{
		domain.AssetBTC:  {Price: decimal.NewFromInt(113000), Currency: "USD"},
		domain.AssetUSDT: {Price: decimal.NewFromInt(1), Currency: "USD"},
	}, time.Second, nil, logger)

	h := &harness{
		codes:      codes,
		cash:       &fakeCash{amount: 50000},
		settlement: &fakeSettlement{},
		payments:   &fakePayments{},
		recorder:   &fakeRecorder{},
		views:      &viewLog{},
	}

	h.c, err = NewController(Dependencies{
		Policy:           policy,
		Quotes:           quotes,
		Pricer:           fee.NewCalculator(policy),
		Verifier:         verifier,
		Cash:             h.cash,
		Settlement:       h.settlement,
		Invoices:         fakeInvoices{},
		Payments:         h.payments,
		Ledger:           h.recorder,
		Observer:         h.views,
		Logger:           logger,
		OperationTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.c.Settle(ctx))
}

// toConfirmWallet drives a purchase up to the wallet step
func (h *harness) toConfirmWallet(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.c.StartPurchase(ctx))
	require.NoError(t, h.c.SelectCommunicationMethod(ctx, domain.MethodWhatsApp))
	require.NoError(t, h.c.ConfirmCommunicationMethod(ctx))
	require.NoError(t, h.c.SendVerificationCode(ctx, " +54 11 5555 0000 "))
	require.NoError(t, h.c.VerifyCode(ctx, testCode))
	require.NoError(t, h.c.SelectCrypto(ctx, domain.AssetUSDT))
}

// toConfirmAmount drives a purchase up to the amount confirmation
func (h *harness) toConfirmAmount(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	h.toConfirmWallet(t)
	require.NoError(t, h.c.ConfirmWalletAddress(ctx, "TXyzWallet"))
	require.NoError(t, h.c.ConfirmCashInsertion(ctx))
	h.settle(t)
	require.Equal(t, domain.StepPurchaseConfirmAmount, h.c.View().Step)
}

func TestNewController_MissingCollaborator(t *testing.T) {
	_, err := NewController(Dependencies{Policy: domain.DefaultPolicy()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing a collaborator")
}

func TestNewController_InvalidPolicy(t *testing.T) {
	policy := domain.DefaultPolicy()
	policy.ExchangeRate = decimal.Zero

	_, err := NewController(Dependencies{Policy: policy})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid policy")
}

func TestController_StartsOnMainScreen(t *testing.T) {
	h := newHarness(t)

	view := h.c.View()
	assert.Equal(t, ScreenMain, view.Screen)
	assert.Nil(t, view.Session)

	err := h.c.ConfirmAmount(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)
}

func TestController_PurchaseHappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.toConfirmAmount(t)

	view := h.c.View()
	require.NotNil(t, view.Session)
	assert.Equal(t, int64(50000), view.Session.DetectedCashAmount)
	require.NotNil(t, view.Session.Quote)
	assert.True(t, view.Session.Quote.IsFallback())

	// the confirmation screen already shows what the cash buys
	assert.Equal(t, int64(50000), view.Session.AmountArs)
	assert.Equal(t, "10", view.Session.FeePercentage.String())
	assert.Equal(t, "5000", view.Session.FeeAmount.String())
	assert.Equal(t, "45000", view.Session.NetAmount.String())
	assert.Equal(t, "33.333333", view.Session.CryptoAmount.String())

	require.NoError(t, h.c.ConfirmAmount(ctx))
	assert.Equal(t, domain.StepPurchaseProcessing, h.c.View().Step)
	h.settle(t)

	view = h.c.View()
	require.NotNil(t, view.Session)
	assert.Equal(t, ScreenPurchase, view.Screen)
	assert.Equal(t, domain.StepPurchaseCompleted, view.Step)
	assert.Equal(t, domain.StatusCompleted, view.Session.Status)
	assert.Equal(t, "+54 11 5555 0000", view.Session.Phone)
	assert.True(t, view.Session.PhoneVerified)
	assert.Equal(t, "TRC20", view.Session.Network)
	assert.Equal(t, int64(50000), view.Session.AmountArs)
	assert.Equal(t, "5000", view.Session.FeeAmount.String())
	assert.Equal(t, "45000", view.Session.NetAmount.String())
	assert.Equal(t, "33.333333", view.Session.CryptoAmount.String())
	assert.Equal(t, "settle-"+view.Session.ID.String(), view.Session.SettlementRef)
	assert.NotNil(t, view.Session.CompletedAt)
	assert.Empty(t, view.LastError)

	records := h.recorder.recorded()
	require.Len(t, records, 1)
	assert.Equal(t, view.Session.ID, records[0].Session.ID)
	assert.Equal(t, domain.StatusCompleted, records[0].Session.Status)
	assert.Equal(t, view.Session.SettlementRef, records[0].Session.SettlementRef)

	// completed sessions accept only navigation
	err := h.c.ConfirmAmount(ctx)
	assert.ErrorIs(t, err, domain.ErrSessionCompleted)

	require.NoError(t, h.c.ReturnToMain(ctx))
	assert.Equal(t, ScreenMain, h.c.View().Screen)
}

func TestController_WrongCodeStaysOnAwaitingCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.c.StartPurchase(ctx))
	require.NoError(t, h.c.SelectCommunicationMethod(ctx, domain.MethodSMS))
	require.NoError(t, h.c.ConfirmCommunicationMethod(ctx))
	require.NoError(t, h.c.SendVerificationCode(ctx, "1155550000"))

	err := h.c.VerifyCode(ctx, "000000")
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))

	view := h.c.View()
	assert.Equal(t, domain.StepPurchaseAwaitingCode, view.Step)
	assert.False(t, view.Session.PhoneVerified)
	assert.NotEmpty(t, view.LastError)

	// the code survives a wrong attempt
	require.NoError(t, h.c.VerifyCode(ctx, testCode))
	view = h.c.View()
	assert.Equal(t, domain.StepPurchaseSelectCrypto, view.Step)
	assert.Empty(t, view.LastError)

	// a verified code cannot be reused
	_, err = h.codes.Get(ctx, view.Session.ID)
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}

func TestController_PurchaseInputValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.c.StartPurchase(ctx))

	err := h.c.ConfirmCommunicationMethod(ctx)
	assert.True(t, domain.IsValidationError(err))
	assert.Equal(t, domain.StepPurchaseSelectMethod, h.c.View().Step)

	require.NoError(t, h.c.SelectCommunicationMethod(ctx, domain.MethodWhatsApp))
	require.NoError(t, h.c.ConfirmCommunicationMethod(ctx))

	err = h.c.SendVerificationCode(ctx, "   ")
	assert.True(t, domain.IsValidationError(err))
	assert.Equal(t, domain.StepPurchaseEnterPhone, h.c.View().Step)

	// an action for another step is refused without touching the session
	err = h.c.ConfirmWalletAddress(ctx, "wallet")
	assert.ErrorIs(t, err, domain.ErrInvalidAction)
	assert.Equal(t, domain.StepPurchaseEnterPhone, h.c.View().Step)
}

func TestController_EmptyWalletRejected(t *testing.T) {
	h := newHarness(t)
	h.toConfirmWallet(t)

	err := h.c.ConfirmWalletAddress(context.Background(), "")
	assert.True(t, domain.IsValidationError(err))

	view := h.c.View()
	assert.Equal(t, domain.StepPurchaseConfirmWallet, view.Step)
	assert.Empty(t, view.Session.WalletAddress)
}

func TestController_OutOfRangeAmountRejected(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
	}{
		{name: "below minimum", amount: 5000},
		{name: "above maximum", amount: 300000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.cash.amount = tt.amount
			h.toConfirmAmount(t)

			err := h.c.ConfirmAmount(context.Background())
			require.Error(t, err)
			assert.True(t, domain.IsValidationError(err))

			view := h.c.View()
			assert.Equal(t, domain.StepPurchaseConfirmAmount, view.Step)
			assert.Equal(t, tt.amount, view.Session.AmountArs)
			assert.Equal(t, domain.StatusInProgress, view.Session.Status)
			assert.NotEmpty(t, view.LastError)
			assert.Equal(t, 0, h.settlement.calls)
		})
	}
}

func TestController_NoCashDetected(t *testing.T) {
	h := newHarness(t)
	h.cash.amount = 0
	h.toConfirmWallet(t)
	ctx := context.Background()

	require.NoError(t, h.c.ConfirmWalletAddress(ctx, "TXyzWallet"))
	require.NoError(t, h.c.ConfirmCashInsertion(ctx))
	h.settle(t)

	view := h.c.View()
	assert.Equal(t, domain.StepPurchaseAwaitCash, view.Step)
	assert.Empty(t, view.Pending)
	assert.NotEmpty(t, view.LastError)
}

func TestController_SaleWithFallbackQuote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.c.StartSale(ctx))
	assert.Equal(t, ScreenSale, h.c.View().Screen)

	require.NoError(t, h.c.SelectSaleCrypto(ctx, domain.AssetBTC))
	require.NoError(t, h.c.RequestQuote(ctx, 100000))
	h.settle(t)

	view := h.c.View()
	require.NotNil(t, view.Session)
	assert.Equal(t, domain.StepSaleReviewQuote, view.Step)
	assert.Equal(t, "Lightning", view.Session.Network)
	require.NotNil(t, view.Session.Quote)
	assert.Equal(t, domain.QuoteSourceFallback, view.Session.Quote.Source)
	assert.Equal(t, "8", view.Session.FeePercentage.String())
	assert.Equal(t, "8000", view.Session.FeeAmount.String())
	assert.Equal(t, "92000", view.Session.NetAmount.String())
	assert.Equal(t, "0.00060308", view.Session.CryptoAmount.String())

	require.NoError(t, h.c.ConfirmShowQR(ctx))
	view = h.c.View()
	assert.Equal(t, domain.StepSaleAwaitPayment, view.Step)
	assert.Contains(t, view.Session.PaymentRequest, view.Session.ID.String())

	require.NoError(t, h.c.ConfirmPayment(ctx))
	h.settle(t)

	view = h.c.View()
	assert.Equal(t, domain.StepSaleCompleted, view.Step)
	assert.Equal(t, domain.StatusCompleted, view.Session.Status)
	require.Len(t, h.recorder.recorded(), 1)
}

func TestController_SaleAmountOutOfRange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.c.StartSale(ctx))
	require.NoError(t, h.c.SelectSaleCrypto(ctx, domain.AssetUSDT))

	err := h.c.RequestQuote(ctx, 9999)
	assert.True(t, domain.IsValidationError(err))

	view := h.c.View()
	assert.Equal(t, domain.StepSaleEnterAmount, view.Step)
	assert.Empty(t, view.Pending)
	assert.NotEmpty(t, view.LastError)
}

func TestController_UnpaidSaleStaysOnAwaitPayment(t *testing.T) {
	h := newHarness(t)
	h.payments.err = errors.New("invoice expired")
	ctx := context.Background()

	require.NoError(t, h.c.StartSale(ctx))
	require.NoError(t, h.c.SelectSaleCrypto(ctx, domain.AssetUSDT))
	require.NoError(t, h.c.RequestQuote(ctx, 20000))
	h.settle(t)
	require.NoError(t, h.c.ConfirmShowQR(ctx))
	require.NoError(t, h.c.ConfirmPayment(ctx))
	h.settle(t)

	view := h.c.View()
	assert.Equal(t, domain.StepSaleAwaitPayment, view.Step)
	assert.Contains(t, view.LastError, "invoice expired")
	assert.Empty(t, h.recorder.recorded())
}

func TestController_ActionsIgnoredWhileOperationPending(t *testing.T) {
	h := newHarness(t)
	h.cash.gate = make(gate)
	ctx := context.Background()

	h.toConfirmWallet(t)
	require.NoError(t, h.c.ConfirmWalletAddress(ctx, "TXyzWallet"))
	require.NoError(t, h.c.ConfirmCashInsertion(ctx))

	view := h.c.View()
	assert.Equal(t, "cash_detection", view.Pending)

	err := h.c.ConfirmCashInsertion(ctx)
	assert.ErrorIs(t, err, domain.ErrOperationPending)
	err = h.c.ConfirmAmount(ctx)
	assert.ErrorIs(t, err, domain.ErrOperationPending)
	assert.Equal(t, domain.StepPurchaseAwaitCash, h.c.View().Step)

	close(h.cash.gate)
	h.settle(t)

	view = h.c.View()
	assert.Equal(t, domain.StepPurchaseConfirmAmount, view.Step)
	assert.Empty(t, view.Pending)
}

func TestController_CancelDiscardsLateResult(t *testing.T) {
	h := newHarness(t)
	h.cash.gate = make(gate)
	ctx := context.Background()

	h.toConfirmWallet(t)
	require.NoError(t, h.c.ConfirmWalletAddress(ctx, "TXyzWallet"))
	require.NoError(t, h.c.ConfirmCashInsertion(ctx))

	require.NoError(t, h.c.Cancel(ctx))
	assert.Equal(t, ScreenMain, h.c.View().Screen)
	rendered := len(h.views.all())

	close(h.cash.gate)
	h.settle(t)

	view := h.c.View()
	assert.Equal(t, ScreenMain, view.Screen)
	assert.Nil(t, view.Session)
	assert.Len(t, h.views.all(), rendered)
}

func TestController_GoBackDiscardsLateQuote(t *testing.T) {
	h := newHarness(t)
	h.cash.gate = make(gate)
	ctx := context.Background()

	h.toConfirmWallet(t)
	require.NoError(t, h.c.ConfirmWalletAddress(ctx, "TXyzWallet"))
	require.NoError(t, h.c.ConfirmCashInsertion(ctx))

	require.NoError(t, h.c.GoBack(ctx))
	close(h.cash.gate)
	h.settle(t)

	view := h.c.View()
	assert.Equal(t, domain.StepPurchaseConfirmWallet, view.Step)
	assert.Empty(t, view.Pending)
	assert.Nil(t, view.Session.Quote)
	assert.Equal(t, int64(0), view.Session.DetectedCashAmount)
}

func TestController_GoBackFromConfirmAmountClearsPricing(t *testing.T) {
	h := newHarness(t)
	h.toConfirmAmount(t)
	require.False(t, h.c.View().Session.CryptoAmount.IsZero())

	require.NoError(t, h.c.GoBack(context.Background()))

	view := h.c.View()
	assert.Equal(t, domain.StepPurchaseAwaitCash, view.Step)
	assert.Equal(t, int64(0), view.Session.DetectedCashAmount)
	assert.Equal(t, int64(0), view.Session.AmountArs)
	assert.Nil(t, view.Session.Quote)
	assert.True(t, view.Session.FeeAmount.IsZero())
	assert.True(t, view.Session.CryptoAmount.IsZero())
}

func TestController_GoBackWalksToMain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.toConfirmWallet(t)

	sessionID := h.c.View().Session.ID
	expected := []struct {
		step     domain.Step
		verified bool
	}{
		{step: domain.StepPurchaseSelectCrypto, verified: true},
		{step: domain.StepPurchaseEnterPhone, verified: false},
		{step: domain.StepPurchaseSelectMethod, verified: false},
	}

	for _, e := range expected {
		require.NoError(t, h.c.GoBack(ctx))
		view := h.c.View()
		require.Equal(t, e.step, view.Step)
		assert.Equal(t, e.verified, view.Session.PhoneVerified)
	}

	_, err := h.codes.Get(ctx, sessionID)
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)

	require.NoError(t, h.c.GoBack(ctx))
	assert.Equal(t, ScreenMain, h.c.View().Screen)

	err = h.c.GoBack(ctx)
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)
}

func TestController_GoBackFromAwaitingCodeVoidsCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.c.StartPurchase(ctx))
	require.NoError(t, h.c.SelectCommunicationMethod(ctx, domain.MethodSMS))
	require.NoError(t, h.c.ConfirmCommunicationMethod(ctx))
	require.NoError(t, h.c.SendVerificationCode(ctx, "1155550000"))
	sessionID := h.c.View().Session.ID

	require.NoError(t, h.c.GoBack(ctx))
	assert.Equal(t, domain.StepPurchaseEnterPhone, h.c.View().Step)

	_, err := h.codes.Get(ctx, sessionID)
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}

func TestController_ReverifyAfterGoingBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.toConfirmWallet(t)

	require.NoError(t, h.c.GoBack(ctx))
	require.NoError(t, h.c.GoBack(ctx))
	require.Equal(t, domain.StepPurchaseEnterPhone, h.c.View().Step)

	// a code entered right after going back must have something to match
	require.NoError(t, h.c.SendVerificationCode(ctx, "1155550001"))
	require.Equal(t, domain.StepPurchaseAwaitingCode, h.c.View().Step)
	require.NoError(t, h.c.VerifyCode(ctx, testCode))

	view := h.c.View()
	assert.Equal(t, domain.StepPurchaseSelectCrypto, view.Step)
	assert.True(t, view.Session.PhoneVerified)
	assert.Equal(t, "1155550001", view.Session.Phone)
	assert.Empty(t, view.LastError)
}

func TestController_ResendVerificationCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.c.StartPurchase(ctx))
	require.NoError(t, h.c.SelectCommunicationMethod(ctx, domain.MethodWhatsApp))
	require.NoError(t, h.c.ConfirmCommunicationMethod(ctx))

	err := h.c.ResendVerificationCode(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidAction)
	assert.Equal(t, domain.StepPurchaseEnterPhone, h.c.View().Step)

	require.NoError(t, h.c.SendVerificationCode(ctx, "1155550000"))
	require.NoError(t, h.c.ResendVerificationCode(ctx))
	h.settle(t)

	view := h.c.View()
	assert.Equal(t, domain.StepPurchaseAwaitingCode, view.Step)
	assert.Empty(t, view.LastError)

	_, err = h.codes.Get(ctx, view.Session.ID)
	require.NoError(t, err)

	require.NoError(t, h.c.VerifyCode(ctx, testCode))
	assert.Equal(t, domain.StepPurchaseSelectCrypto, h.c.View().Step)
}

func TestController_SaleGoBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.c.StartSale(ctx))
	require.NoError(t, h.c.SelectSaleCrypto(ctx, domain.AssetBTC))
	require.NoError(t, h.c.RequestQuote(ctx, 100000))
	h.settle(t)
	require.NoError(t, h.c.ConfirmShowQR(ctx))

	require.NoError(t, h.c.GoBack(ctx))
	view := h.c.View()
	assert.Equal(t, domain.StepSaleEnterAmount, view.Step)
	assert.Equal(t, int64(0), view.Session.AmountArs)
	assert.Empty(t, view.Session.PaymentRequest)
	assert.True(t, view.Session.CryptoAmount.IsZero())
	assert.Equal(t, domain.AssetBTC, view.Session.Asset)

	require.NoError(t, h.c.GoBack(ctx))
	view = h.c.View()
	assert.Equal(t, domain.StepSaleSelectCrypto, view.Step)
	assert.Empty(t, view.Session.Asset)
}

func TestController_GoBackRefusedWhileProcessing(t *testing.T) {
	h := newHarness(t)
	h.settlement.gate = make(gate)
	ctx := context.Background()

	h.toConfirmAmount(t)
	require.NoError(t, h.c.ConfirmAmount(ctx))

	err := h.c.GoBack(ctx)
	assert.ErrorIs(t, err, domain.ErrStepLocked)
	assert.Equal(t, domain.StepPurchaseProcessing, h.c.View().Step)

	close(h.settlement.gate)
	h.settle(t)
	assert.Equal(t, domain.StepPurchaseCompleted, h.c.View().Step)
}

func TestController_SettlementFailureAndRetry(t *testing.T) {
	h := newHarness(t)
	h.settlement.setErr(errors.New("node unreachable"))
	ctx := context.Background()

	h.toConfirmAmount(t)
	require.NoError(t, h.c.ConfirmAmount(ctx))
	h.settle(t)

	view := h.c.View()
	assert.Equal(t, domain.StepPurchaseProcessing, view.Step)
	assert.Equal(t, domain.StatusInProgress, view.Session.Status)
	assert.Contains(t, view.LastError, "node unreachable")
	assert.Empty(t, h.recorder.recorded())

	h.settlement.setErr(nil)
	require.NoError(t, h.c.RetrySettlement(ctx))
	h.settle(t)

	view = h.c.View()
	assert.Equal(t, domain.StepPurchaseCompleted, view.Step)
	assert.Empty(t, view.LastError)
	assert.Len(t, h.recorder.recorded(), 1)
}

func TestController_NewFlowStartsClean(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.toConfirmWallet(t)
	old := h.c.View().Session

	require.NoError(t, h.c.StartSale(ctx))

	view := h.c.View()
	require.NotNil(t, view.Session)
	assert.NotEqual(t, old.ID, view.Session.ID)
	assert.Equal(t, domain.KindSale, view.Session.Kind)
	assert.Equal(t, domain.StepSaleSelectCrypto, view.Step)
	assert.Empty(t, view.Session.Phone)
	assert.Empty(t, view.Session.Asset)
	assert.False(t, view.Session.PhoneVerified)

	require.NoError(t, h.c.StartPurchase(ctx))
	view = h.c.View()
	assert.Equal(t, domain.KindPurchase, view.Session.Kind)
	assert.Equal(t, domain.StepPurchaseSelectMethod, view.Step)
	assert.Empty(t, view.Session.CommunicationMethod)
}

func TestController_ReturnToMainNeedsCompletedSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.c.StartSale(ctx))
	err := h.c.ReturnToMain(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidAction)
	assert.Equal(t, ScreenSale, h.c.View().Screen)
}

func TestController_ViewIsACopy(t *testing.T) {
	h := newHarness(t)
	h.toConfirmWallet(t)

	view := h.c.View()
	view.Session.Phone = "tampered"
	view.Session.Step = domain.StepPurchaseCompleted

	fresh := h.c.View()
	assert.Equal(t, "+54 11 5555 0000", fresh.Session.Phone)
	assert.Equal(t, domain.StepPurchaseConfirmWallet, fresh.Step)
}

func TestController_ObserverReceivesEveryTransition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.c.StartSale(ctx))
	require.NoError(t, h.c.SelectSaleCrypto(ctx, domain.AssetUSDT))
	require.NoError(t, h.c.RequestQuote(ctx, 20000))
	h.settle(t)

	views := h.views.all()
	require.Len(t, views, 4)
	assert.Equal(t, domain.StepSaleSelectCrypto, views[0].Step)
	assert.Equal(t, domain.StepSaleEnterAmount, views[1].Step)
	assert.Equal(t, "quote", views[2].Pending)
	assert.Equal(t, domain.StepSaleReviewQuote, views[3].Step)
	assert.Empty(t, views[3].Pending)
}

func TestController_Dispatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.c.Dispatch(ctx, "fly_away", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAction)

	err = h.c.Dispatch(ctx, ActionRequestQuote, map[string]string{PayloadAmount: "1000"})
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	require.NoError(t, h.c.Dispatch(ctx, ActionStartSale, nil))
	require.NoError(t, h.c.Dispatch(ctx, ActionSelectSaleCrypto, map[string]string{PayloadAsset: "usdt"}))

	err = h.c.Dispatch(ctx, ActionRequestQuote, map[string]string{PayloadAmount: "lots"})
	assert.True(t, domain.IsValidationError(err))
	assert.Equal(t, "enter the amount as a whole number of pesos", h.c.View().LastError)
	assert.Equal(t, domain.StepSaleEnterAmount, h.c.View().Step)

	require.NoError(t, h.c.Dispatch(ctx, " REQUEST_QUOTE ", map[string]string{PayloadAmount: "20000"}))
	h.settle(t)
	assert.Equal(t, domain.StepSaleReviewQuote, h.c.View().Step)

	require.NoError(t, h.c.Dispatch(ctx, ActionCancel, nil))
	assert.Equal(t, ScreenMain, h.c.View().Screen)
}

func TestController_DispatchPurchase(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	steps := []struct {
		action  string
		payload map[string]string
	}{
		{ActionStartPurchase, nil},
		{ActionSelectMethod, map[string]string{PayloadMethod: "SMS"}},
		{ActionConfirmMethod, nil},
		{ActionSendCode, map[string]string{PayloadPhone: "1155550000"}},
		{ActionResendCode, nil},
		{ActionVerifyCode, map[string]string{PayloadCode: testCode}},
		{ActionSelectCrypto, map[string]string{PayloadAsset: "BTC"}},
		{ActionConfirmWallet, map[string]string{PayloadAddress: "lnbc-wallet"}},
	}
	for _, s := range steps {
		require.NoError(t, h.c.Dispatch(ctx, s.action, s.payload), s.action)
	}

	view := h.c.View()
	assert.Equal(t, domain.StepPurchaseAwaitCash, view.Step)
	assert.Equal(t, domain.MethodSMS, view.Session.CommunicationMethod)
	assert.Equal(t, domain.AssetBTC, view.Session.Asset)

	// a bad payload for another step is refused as that step's action would be
	err := h.c.Dispatch(ctx, ActionSelectMethod, map[string]string{PayloadMethod: "pigeon"})
	assert.ErrorIs(t, err, domain.ErrInvalidAction)
	assert.False(t, domain.IsValidationError(err))
	assert.Empty(t, h.c.View().LastError)
}

func TestController_DispatchRejectsPayloadOnlyOnItsStep(t *testing.T) {
	tests := []struct {
		name    string
		action  string
		payload map[string]string
	}{
		{name: "method during a sale", action: ActionSelectMethod, payload: map[string]string{PayloadMethod: "pigeon"}},
		{name: "purchase asset during a sale", action: ActionSelectCrypto, payload: map[string]string{PayloadAsset: "DOGE"}},
		{name: "amount before an asset is chosen", action: ActionRequestQuote, payload: map[string]string{PayloadAmount: "lots"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			require.NoError(t, h.c.StartSale(ctx))
			rendered := len(h.views.all())

			err := h.c.Dispatch(ctx, tt.action, tt.payload)
			assert.ErrorIs(t, err, domain.ErrInvalidAction)

			view := h.c.View()
			assert.Equal(t, domain.StepSaleSelectCrypto, view.Step)
			assert.Empty(t, view.LastError)
			assert.Len(t, h.views.all(), rendered)
		})
	}

	t.Run("bad asset on its own step", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		require.NoError(t, h.c.StartSale(ctx))

		err := h.c.Dispatch(ctx, ActionSelectSaleCrypto, map[string]string{PayloadAsset: "DOGE"})
		assert.True(t, domain.IsValidationError(err))
		assert.NotEmpty(t, h.c.View().LastError)
	})
}
