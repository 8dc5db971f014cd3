package grpc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/cryptokiosk-backend/internal/domain"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/fee"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/flow"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/ledger"
)

// FlowController is the part of flow.Controller the server drives
type FlowController interface {
	Dispatch(ctx context.Context, action string, payload map[string]string) error
	View() flow.View
}

// RecordLister lists completed transactions
type RecordLister interface {
	ListRecords(ctx context.Context, limit, offset int) (*ledger.ListRecordsResult, error)
}

// Server implements the KioskService gRPC server
type Server struct {
	Controller FlowController
	Quotes     flow.QuoteProvider
	Pricer     *fee.Calculator
	Ledger     RecordLister
}

var _ KioskServiceServer = (*Server)(nil)

// NewServer creates a new gRPC server instance
func NewServer(
	controller FlowController,
	quotes flow.QuoteProvider,
	pricer *fee.Calculator,
	ledgerService RecordLister,
) *Server {
	return &Server{
		Controller: controller,
		Quotes:     quotes,
		Pricer:     pricer,
		Ledger:     ledgerService,
	}
}

// Dispatch handles the Dispatch RPC.
// Request: {"action": "...", "payload": {"key": "value", ...}}. Response: the view after the action.
func (s *Server) Dispatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	action := stringField(req, "action")
	if action == "" {
		return nil, status.Error(codes.InvalidArgument, "action is required")
	}

	payload, err := payloadField(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid payload: %v", err)
	}

	if err := s.Controller.Dispatch(ctx, action, payload); err != nil {
		return nil, mapError(err)
	}

	return viewToStruct(s.Controller.View())
}

// GetView handles the GetView RPC
func (s *Server) GetView(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return viewToStruct(s.Controller.View())
}

// GetQuote handles the GetQuote RPC.
// Request: {"asset": "BTC", "kind": "SALE", "amount_ars": 100000}; kind defaults to SALE and
// amount_ars is optional.
func (s *Server) GetQuote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	asset, err := domain.ParseAsset(stringField(req, "asset"))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}

	kind := domain.KindSale
	if raw := stringField(req, "kind"); raw != "" {
		kind = domain.TransactionKind(strings.ToUpper(raw))
		if !kind.IsValid() {
			return nil, status.Errorf(codes.InvalidArgument, "invalid kind: %q", raw)
		}
	}

	amount, err := intField(req, "amount_ars")
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid amount_ars: %v", err)
	}

	if _, ok := s.Pricer.Policy.AssetInfo(asset); !ok {
		return nil, status.Errorf(codes.InvalidArgument, "asset is not configured: %s", asset)
	}

	quote := s.Quotes.GetPrice(ctx, asset)
	out := quoteToMap(quote)

	if amount != 0 {
		pricing, err := s.Pricer.Price(amount, kind, quote)
		if err != nil {
			return nil, mapError(err)
		}
		out["kind"] = string(kind)
		out["amount_ars"] = amount
		out["fee_percentage"] = pricing.FeePercentage.String()
		out["fee_amount"] = pricing.FeeAmount.String()
		out["net_amount"] = pricing.NetAmount.String()
		out["crypto_amount"] = pricing.CryptoAmount.String()
	}

	return toStruct(out)
}

// ListTransactions handles the ListTransactions RPC.
// Request: {"limit": 20, "offset": 0}.
func (s *Server) ListTransactions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit, err := intField(req, "limit")
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid limit: %v", err)
	}
	offset, err := intField(req, "offset")
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid offset: %v", err)
	}

	result, err := s.Ledger.ListRecords(ctx, int(limit), int(offset))
	if err != nil {
		return nil, mapError(err)
	}

	transactions := make([]interface{}, 0, len(result.Records))
	for _, record := range result.Records {
		transactions = append(transactions, recordToMap(record))
	}

	return toStruct(map[string]interface{}{
		"transactions": transactions,
		"total_count":  result.TotalCount,
	})
}

func stringField(req *structpb.Struct, key string) string {
	if req == nil {
		return ""
	}
	return strings.TrimSpace(req.GetFields()[key].GetStringValue())
}

// intField reads a whole number sent either as a JSON number or a numeric string; absent means 0
func intField(req *structpb.Struct, key string) (int64, error) {
	if req == nil {
		return 0, nil
	}
	v, ok := req.GetFields()[key]
	if !ok {
		return 0, nil
	}

	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("%v is not a whole number", n)
		}
		return int64(n), nil
	case *structpb.Value_StringValue:
		if strings.TrimSpace(kind.StringValue) == "" {
			return 0, nil
		}
		return strconv.ParseInt(strings.TrimSpace(kind.StringValue), 10, 64)
	case *structpb.Value_NullValue:
		return 0, nil
	default:
		return 0, errors.New("expected a number")
	}
}

// payloadField flattens the optional "payload" struct into strings
func payloadField(req *structpb.Struct) (map[string]string, error) {
	payload := map[string]string{}
	raw := req.GetFields()["payload"].GetStructValue()
	if raw == nil {
		return payload, nil
	}

	for key, v := range raw.GetFields() {
		switch kind := v.GetKind().(type) {
		case *structpb.Value_StringValue:
			payload[key] = kind.StringValue
		case *structpb.Value_NumberValue:
			payload[key] = strconv.FormatFloat(kind.NumberValue, 'f', -1, 64)
		case *structpb.Value_BoolValue:
			payload[key] = strconv.FormatBool(kind.BoolValue)
		default:
			return nil, fmt.Errorf("field %q must be a string or number", key)
		}
	}
	return payload, nil
}

func viewToStruct(view flow.View) (*structpb.Struct, error) {
	out := map[string]interface{}{
		"screen":     string(view.Screen),
		"step":       int64(view.Step),
		"step_name":  view.StepName,
		"last_error": view.LastError,
		"pending":    view.Pending,
	}
	if view.Session != nil {
		out["session"] = sessionToMap(view.Session)
	}
	return toStruct(out)
}

func sessionToMap(s *domain.TransactionSession) map[string]interface{} {
	out := map[string]interface{}{
		"id":                   s.ID.String(),
		"kind":                 string(s.Kind),
		"step":                 int64(s.Step),
		"step_name":            s.StepName(),
		"status":               string(s.Status),
		"communication_method": string(s.CommunicationMethod),
		"phone":                s.Phone,
		"phone_verified":       s.PhoneVerified,
		"asset":                string(s.Asset),
		"network":              s.Network,
		"wallet_address":       s.WalletAddress,
		"amount_ars":           s.AmountArs,
		"detected_cash_amount": s.DetectedCashAmount,
		"fee_percentage":       s.FeePercentage.String(),
		"fee_amount":           s.FeeAmount.String(),
		"net_amount":           s.NetAmount.String(),
		"crypto_amount":        s.CryptoAmount.String(),
		"payment_request":      s.PaymentRequest,
		"settlement_ref":       s.SettlementRef,
		"started_at":           formatTime(s.StartedAt),
	}
	if s.Quote != nil {
		out["quote"] = quoteToMap(*s.Quote)
	}
	if s.CompletedAt != nil {
		out["completed_at"] = formatTime(*s.CompletedAt)
	}
	return out
}

func quoteToMap(q domain.Quote) map[string]interface{} {
	return map[string]interface{}{
		"asset":      string(q.Asset),
		"price":      q.Price.String(),
		"currency":   q.Currency,
		"source":     string(q.Source),
		"fetched_at": formatTime(q.FetchedAt),
	}
}

func recordToMap(r *domain.TransactionRecord) map[string]interface{} {
	return map[string]interface{}{
		"id":             r.ID.String(),
		"kind":           string(r.Kind),
		"asset":          string(r.Asset),
		"network":        r.Network,
		"amount_ars":     r.AmountArs,
		"fee_percentage": r.FeePercentage.String(),
		"fee_amount":     r.FeeAmount.String(),
		"net_amount":     r.NetAmount.String(),
		"crypto_amount":  r.CryptoAmount.String(),
		"quote_price":    r.QuotePrice.String(),
		"quote_currency": r.QuoteCurrency,
		"quote_source":   string(r.QuoteSource),
		"exchange_rate":  r.ExchangeRate.String(),
		"destination":    r.Destination,
		"settlement_ref": r.SettlementRef,
		"completed_at":   formatTime(r.CompletedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func toStruct(m map[string]interface{}) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return status.Errorf(codes.InvalidArgument, "%s", ve.Reason)
	case errors.Is(err, domain.ErrOperationPending):
		return status.Errorf(codes.Unavailable, "%s", err.Error())
	case errors.Is(err, domain.ErrNoActiveSession),
		errors.Is(err, domain.ErrInvalidAction),
		errors.Is(err, domain.ErrSessionCompleted),
		errors.Is(err, domain.ErrStepLocked):
		return status.Errorf(codes.FailedPrecondition, "%s", err.Error())
	case errors.Is(err, domain.ErrRecordNotFound):
		return status.Errorf(codes.NotFound, "%s", err.Error())
	}

	errorMsg := err.Error()

	// Map plain validation messages to InvalidArgument
	if strings.Contains(errorMsg, "must be positive") ||
		strings.Contains(errorMsg, "must not be negative") ||
		strings.Contains(errorMsg, "invalid") ||
		strings.Contains(errorMsg, "not configured") {
		return status.Errorf(codes.InvalidArgument, "%s", errorMsg)
	}

	// Default to Internal error for unknown errors
	return status.Errorf(codes.Internal, "%s", errorMsg)
}
