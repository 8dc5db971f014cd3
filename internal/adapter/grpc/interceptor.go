package grpc

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// AuthInterceptor rejects calls whose "authorization" metadata does not carry validToken,
// either bare or as "Bearer <token>", with codes.Unauthenticated
func AuthInterceptor(validToken string) grpc.UnaryServerInterceptor {
	want := []byte(validToken)
	return func(
		ctx context.Context,
		req interface{},
		_ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		token, err := bearerToken(ctx)
		if err != nil {
			return nil, err
		}
		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return handler(ctx, req)
	}
}

func bearerToken(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing metadata")
	}

	values := md.Get("authorization")
	if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return "", status.Error(codes.Unauthenticated, "missing authorization header")
	}

	raw := strings.TrimSpace(values[0])
	if scheme, token, found := strings.Cut(raw, " "); found && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token), nil
	}
	return raw, nil
}

var nowFunc = time.Now

// LoggingInterceptor logs every unary call with its duration and status code
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := nowFunc()
		resp, err := handler(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("duration", nowFunc().Sub(start)),
			zap.String("code", status.Code(err).String()),
		}
		if code := status.Code(err); code == codes.Internal || code == codes.Unknown {
			logger.Error("rpc failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("rpc handled", fields...)
		}
		return resp, err
	}
}
