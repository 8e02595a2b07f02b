package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/stagepass"
	"github.com/MrEthical07/stagepass/jwt"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 64 << 10

// Service is the engine surface the API serves. *stagepass.Engine
// satisfies it.
type Service interface {
	Register(ctx context.Context, req stagepass.RegisterRequest) (*stagepass.RegisterResult, error)
	Login(ctx context.Context, req stagepass.LoginRequest) (*stagepass.TokenPair, error)
	RefreshSession(ctx context.Context, req stagepass.RefreshRequest) (*stagepass.TokenPair, error)
	Logout(ctx context.Context, req stagepass.LogoutRequest) (*stagepass.LogoutResult, error)
	RequestEmailVerification(ctx context.Context, req stagepass.EmailVerificationRequest) error
	VerifyEmail(ctx context.Context, req stagepass.VerifyEmailRequest) (*stagepass.VerifyEmailResult, error)
	ForgotPassword(ctx context.Context, req stagepass.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, req stagepass.ResetPasswordRequest) (*stagepass.ResetPasswordResult, error)
	ValidateAccessToken(ctx context.Context, token string) (*jwt.Claims, error)
	Sessions(ctx context.Context, userID string) ([]stagepass.Session, error)
}

// Server holds the handlers. Build the router with Handler.
type Server struct {
	service Service
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source for Retry-After headers.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer builds a Server over service.
func NewServer(service Service, opts ...Option) (*Server, error) {
	if service == nil {
		return nil, errors.New("httpapi: service is required")
	}
	s := &Server{service: service, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewRouter is shorthand for NewServer followed by Handler.
func NewRouter(service Service, logger *slog.Logger) (http.Handler, error) {
	s, err := NewServer(service, WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return s.Handler(), nil
}
