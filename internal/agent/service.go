package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/dealdesk/internal/config"
)

// Service wraps a backend with per-user rate limiting and a request timeout.
type Service struct {
	backend Backend
	limiter *RateLimiter
	timeout time.Duration
	logger  *slog.Logger
}

// NewService wraps backend.
func NewService(backend Backend, limiter *RateLimiter, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, limiter: limiter, timeout: timeout, logger: logger}
}

// New builds the backend selected by cfg and wraps it in a Service.
func New(cfg config.AIConfig, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var backend Backend
	switch cfg.Backend {
	case config.BackendHTTP:
		backend = NewHTTPClient(cfg.EndpointURL, &http.Client{}, logger)
	case config.BackendGRPC:
		c, err := NewGrpcClient(cfg.GRPCAddr, logger)
		if err != nil {
			return nil, err
		}
		backend = c
	case config.BackendOpenAI:
		backend = NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, logger)
	case config.BackendNone, "":
		backend = None{}
	default:
		return nil, fmt.Errorf("unknown AI backend %q", cfg.Backend)
	}

	logger.Info("AI backend configured", "backend", cfg.Backend)
	return NewService(backend, NewRateLimiter(cfg.RateLimit, cfg.RateWindow), cfg.Timeout, logger), nil
}

// Respond implements Responder. Requests over the user's budget fail with
// ErrRateLimited without reaching the backend.
func (s *Service) Respond(ctx context.Context, req Request) (Response, error) {
	if s.limiter != nil && !s.limiter.Allow(req.UserID) {
		return Response{}, ErrRateLimited
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.backend.Respond(ctx, req)
	if err != nil {
		return Response{}, err
	}
	s.logger.Debug("AI response", "user_id", req.UserID, "duration_ms", time.Since(start).Milliseconds())
	return resp, nil
}

// Close releases resources.
func (s *Service) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.backend != nil {
		s.backend.Close()
	}
}
