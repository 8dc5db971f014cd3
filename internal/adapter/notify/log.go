package notify

import (
	"context"
	"errors"

	"github.com/simaogato/cryptokiosk-backend/internal/domain"
	"go.uber.org/zap"
)

// LogDispatcher writes verification messages to the log instead of sending them.
// Used when no messaging gateway is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a new LogDispatcher instance
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Dispatch implements domain.CodeDispatcher
func (d *LogDispatcher) Dispatch(_ context.Context, method domain.CommunicationMethod, phone, message string) error {
	if phone == "" {
		return errors.New("phone cannot be empty")
	}

	d.logger.Info("verification message",
		zap.String("method", string(method)),
		zap.String("phone", maskPhone(phone)),
		zap.String("message", message),
	)
	return nil
}

// maskPhone keeps the last four digits of a phone number
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
