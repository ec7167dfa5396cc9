package adminapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dlogio/dlog/internal/logger"
)

// Server is the admin API's HTTP server: health, metrics, and per-stream
// introspection/control endpoints. It never participates in the record
// write or read path.
type Server struct {
	server       *http.Server
	config       Config
	jwtService   *JWTService
	shutdownOnce sync.Once
}

// NewServer creates a Server bound to streams and health. The admin API
// always requires a signing secret for its mutating endpoints: there is no
// "authless" production mode, only the nil-jwtService path NewRouter
// exposes for direct handler tests.
func NewServer(config Config, streams StreamManager, health Healthchecker) (*Server, error) {
	config.ApplyDefaults()

	secret := config.Secret()
	if len(secret) < 32 {
		return nil, fmt.Errorf("admin API JWT secret must be at least 32 characters; set via %s env var or config", EnvJWTSecret)
	}

	jwtService, err := NewJWTService(JWTConfig{
		Secret:        secret,
		Issuer:        config.JWT.Issuer,
		TokenDuration: config.JWT.TokenDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("create admin API JWT service: %w", err)
	}

	router := NewRouter(streams, health, jwtService)

	return &Server{
		server: &http.Server{
			Addr:         config.Addr,
			Handler:      router,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		config:     config,
		jwtService: jwtService,
	}, nil
}

// TokenService exposes the server's JWTService, which signs and validates
// bearer tokens with the server's secret. dlogctl's token-minting command
// does not call it; it builds its own JWTService from the local config.
func (s *Server) TokenService() *JWTService { return s.jwtService }

// Start serves requests until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("admin API listening", "addr", s.config.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("admin API shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("admin API server failed: %w", err)
	}
}

// Stop gracefully shuts down the server. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("admin API shutdown error: %w", err)
			logger.Error("admin API shutdown error", "error", err)
		} else {
			logger.Info("admin API stopped gracefully")
		}
	})
	return shutdownErr
}
