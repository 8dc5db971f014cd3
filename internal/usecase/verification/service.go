package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/simaogato/cryptokiosk-backend/internal/domain"
	"github.com/simaogato/cryptokiosk-backend/internal/metrics"
	"go.uber.org/zap"
)

// Mode selects how expected codes are produced
type Mode string

const (
	// ModeIssued generates a random code per session
	ModeIssued Mode = "issued"
	// ModeStatic uses one configured code for every session. Demo and test deployments only.
	ModeStatic Mode = "static"
)

// Settings configures the VerificationService
type Settings struct {
	Mode       Mode
	StaticCode string
	Digits     int
	TTL        time.Duration
}

// VerificationService issues and checks per-session verification codes
type VerificationService struct {
	Store      domain.CodeStore
	Dispatcher domain.CodeDispatcher
	Limiter    domain.SendLimiter // optional
	Settings   Settings
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// NewVerificationService creates a new VerificationService instance
func NewVerificationService(
	store domain.CodeStore,
	dispatcher domain.CodeDispatcher,
	limiter domain.SendLimiter,
	settings Settings,
	m *metrics.Metrics,
	logger *zap.Logger,
) (*VerificationService, error) {
	switch settings.Mode {
	case ModeIssued:
		if settings.Digits < 4 || settings.Digits > 10 {
			return nil, errors.New("verification code digits must be between 4 and 10")
		}
	case ModeStatic:
		if settings.StaticCode == "" {
			return nil, errors.New("static verification mode requires a code")
		}
	default:
		return nil, fmt.Errorf("unknown verification mode: %q", settings.Mode)
	}

	if settings.TTL <= 0 {
		return nil, errors.New("verification code TTL must be positive")
	}

	return &VerificationService{
		Store:      store,
		Dispatcher: dispatcher,
		Limiter:    limiter,
		Settings:   settings,
		Metrics:    m,
		Logger:     logger,
	}, nil
}

// Delivery is an issued code waiting to be dispatched
type Delivery struct {
	Method  domain.CommunicationMethod
	Phone   string
	message string

	dispatcher domain.CodeDispatcher
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// Issue creates the expected code of a session and returns its pending delivery
// Logic:
//  1. Rate-limit sends to the phone
//  2. Generate the code (random, or the static code)
//  3. Store it under the session ID with the TTL, replacing any previous code
//
// The caller decides where Send runs; Issue itself never waits for delivery.
func (s *VerificationService) Issue(ctx context.Context, sessionID uuid.UUID, method domain.CommunicationMethod, phone string) (*Delivery, error) {
	// 1. Rate-limit
	if s.Limiter != nil {
		if err := s.Limiter.Allow(ctx, phone); err != nil {
			return nil, err
		}
	}

	// 2. Generate
	code, err := s.newCode()
	if err != nil {
		return nil, err
	}

	// 3. Store
	if err := s.Store.Save(ctx, sessionID, code, s.Settings.TTL); err != nil {
		return nil, err
	}

	s.Logger.Info("verification code issued",
		zap.String("session_id", sessionID.String()),
		zap.String("method", string(method)),
		zap.Duration("ttl", s.Settings.TTL),
	)

	return &Delivery{
		Method:     method,
		Phone:      phone,
		message:    fmt.Sprintf("Your kiosk verification code is %s. It expires in %d minutes.", code, int(s.Settings.TTL.Minutes())),
		dispatcher: s.Dispatcher,
		metrics:    s.Metrics,
		logger:     s.Logger,
	}, nil
}

// Send dispatches the code. Failures are logged and counted; nobody waits on them.
func (d *Delivery) Send(ctx context.Context) error {
	err := d.dispatcher.Dispatch(ctx, d.Method, d.Phone, d.message)
	d.metrics.CodeDispatched(string(d.Method), err)
	if err != nil {
		d.logger.Warn("verification code dispatch failed",
			zap.String("method", string(d.Method)),
			zap.Error(err),
		)
	}
	return err
}

// Expected returns the code a session must enter, or "" when none is held (expired or never issued)
func (s *VerificationService) Expected(ctx context.Context, sessionID uuid.UUID) (string, error) {
	code, err := s.Store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrCodeNotFound) {
			return "", nil
		}
		return "", err
	}
	return code, nil
}

// Release discards the code of a session
func (s *VerificationService) Release(ctx context.Context, sessionID uuid.UUID) {
	if err := s.Store.Delete(ctx, sessionID); err != nil {
		s.Logger.Warn("failed to release verification code",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
	}
}

func (s *VerificationService) newCode() (string, error) {
	if s.Settings.Mode == ModeStatic {
		return s.Settings.StaticCode, nil
	}
	return randomCode(s.Settings.Digits)
}

func randomCode(digits int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil) // 10^digits
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}
