package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/avdeev-m/tokenkeeper/internal/logging"
)

// Server wraps http.Server with route registration and graceful shutdown.
type Server struct {
	logger logging.Logger
	srv    *http.Server
}

func NewServer(addr string, l logging.Logger, h *Handler) *Server {
	mux := http.NewServeMux()

	auth := Auth(h.tokens, h.logger)

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("POST /api/v1/auth/register", h.Register)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.Handle("POST /api/v1/tokens", auth(http.HandlerFunc(h.CreateToken)))
	mux.Handle("GET /api/v1/tokens", auth(http.HandlerFunc(h.ListTokens)))
	mux.Handle("POST /api/v1/tokens/rotate", auth(http.HandlerFunc(h.RotateToken)))
	mux.HandleFunc("POST /api/v1/tokens/blacklist", h.BlacklistToken)
	mux.HandleFunc("POST /api/v1/tokens/refresh", h.RefreshToken)

	var handler http.Handler = mux
	handler = Logging(l)(handler)
	handler = Recovery(l)(handler)

	return &Server{
		logger: l.With("module", "httpserver"),
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info(ctx, "starting http server", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info(ctx, "shutting down http server")
	return s.srv.Shutdown(shutdownCtx)
}
