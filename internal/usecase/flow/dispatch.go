package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/simaogato/cryptokiosk-backend/internal/domain"
)

// Action names the view layer sends
const (
	ActionStartPurchase    = "start_purchase"
	ActionStartSale        = "start_sale"
	ActionSelectMethod     = "select_method"
	ActionConfirmMethod    = "confirm_method"
	ActionSendCode         = "send_code"
	ActionResendCode       = "resend_code"
	ActionVerifyCode       = "verify_code"
	ActionSelectCrypto     = "select_crypto"
	ActionConfirmWallet    = "confirm_wallet"
	ActionConfirmCash      = "confirm_cash"
	ActionConfirmAmount    = "confirm_amount"
	ActionRetrySettlement  = "retry_settlement"
	ActionSelectSaleCrypto = "select_sale_crypto"
	ActionRequestQuote     = "request_quote"
	ActionShowSaleInfo     = "show_sale_info"
	ActionConfirmShowQR    = "confirm_show_qr"
	ActionConfirmPayment   = "confirm_payment"
	ActionGoBack           = "go_back"
	ActionCancel           = "cancel"
	ActionReturnToMain     = "return_to_main"
)

// Payload keys
const (
	PayloadMethod  = "method"
	PayloadPhone   = "phone"
	PayloadCode    = "code"
	PayloadAsset   = "asset"
	PayloadAddress = "address"
	PayloadAmount  = "amount"
)

// Dispatch routes one view-layer action, with its optional payload, to the matching operation
func (c *Controller) Dispatch(ctx context.Context, action string, payload map[string]string) error {
	name := strings.ToLower(strings.TrimSpace(action))
	switch name {
	case ActionStartPurchase:
		return c.StartPurchase(ctx)
	case ActionStartSale:
		return c.StartSale(ctx)
	case ActionSelectMethod:
		method, err := domain.ParseCommunicationMethod(payload[PayloadMethod])
		if err != nil {
			return c.reject(domain.KindPurchase, domain.StepPurchaseSelectMethod,
				domain.NewValidationError("communication_method", "choose WhatsApp or SMS"))
		}
		return c.SelectCommunicationMethod(ctx, method)
	case ActionConfirmMethod:
		return c.ConfirmCommunicationMethod(ctx)
	case ActionSendCode:
		return c.SendVerificationCode(ctx, payload[PayloadPhone])
	case ActionResendCode:
		return c.ResendVerificationCode(ctx)
	case ActionVerifyCode:
		return c.VerifyCode(ctx, payload[PayloadCode])
	case ActionSelectCrypto, ActionSelectSaleCrypto:
		asset, err := domain.ParseAsset(payload[PayloadAsset])
		if err != nil {
			kind, step := domain.KindPurchase, domain.StepPurchaseSelectCrypto
			if name == ActionSelectSaleCrypto {
				kind, step = domain.KindSale, domain.StepSaleSelectCrypto
			}
			return c.reject(kind, step, domain.NewValidationError("asset", "asset is not available at this kiosk"))
		}
		if name == ActionSelectCrypto {
			return c.SelectCrypto(ctx, asset)
		}
		return c.SelectSaleCrypto(ctx, asset)
	case ActionConfirmWallet:
		return c.ConfirmWalletAddress(ctx, payload[PayloadAddress])
	case ActionConfirmCash:
		return c.ConfirmCashInsertion(ctx)
	case ActionConfirmAmount:
		return c.ConfirmAmount(ctx)
	case ActionRetrySettlement:
		return c.RetrySettlement(ctx)
	case ActionRequestQuote, ActionShowSaleInfo:
		amount, err := strconv.ParseInt(strings.TrimSpace(payload[PayloadAmount]), 10, 64)
		if err != nil {
			return c.reject(domain.KindSale, domain.StepSaleEnterAmount,
				domain.NewValidationError("amount", "enter the amount as a whole number of pesos"))
		}
		return c.RequestQuote(ctx, amount)
	case ActionConfirmShowQR:
		return c.ConfirmShowQR(ctx)
	case ActionConfirmPayment:
		return c.ConfirmPayment(ctx)
	case ActionGoBack:
		return c.GoBack(ctx)
	case ActionCancel:
		return c.Cancel(ctx)
	case ActionReturnToMain:
		return c.ReturnToMain(ctx)
	default:
		return fmt.Errorf("%w: unknown action %q", domain.ErrInvalidAction, action)
	}
}

// reject surfaces a payload that could not be parsed as a validation error on the
// screen that asked for it. Actions for any other step are refused like their typed
// counterparts, without touching LastError.
func (c *Controller) reject(kind domain.TransactionKind, step domain.Step, verr *domain.ValidationError) error {
	return c.do(func() error {
		if _, err := c.expect(kind, step); err != nil {
			return err
		}
		return verr
	})
}
