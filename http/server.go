// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"diabetesdx/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// NewRouter 注册所有路由和中间件
func NewRouter(h *Handlers, cfg config.ServerConfig) http.Handler {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	logger := h.Logger.Named("http")

	r := chi.NewRouter()
	r.Use(
		RequestIDMiddleware,
		RecoveryMiddleware(logger),
		LoggerMiddleware(logger, h.Metrics),
		SecurityHeadersMiddleware,
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", RequestIDHeader},
			ExposedHeaders:   []string{RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}),
	)

	// the websocket outlives any request timeout
	if h.Hub != nil {
		r.Get("/api/ws/stats", h.Hub.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(
			TimeoutMiddleware(cfg.RequestTimeout),
			RequestSizeMiddleware(maxBodyBytes),
		)

		r.Get("/", h.handleForm)
		r.Post("/", h.handleFormSubmit)
		r.Get("/metrics", h.handleMetrics)

		r.Route("/api", func(r chi.Router) {
			r.Get("/health", h.wrap(h.handleHealth))
			r.Post("/diagnoses", h.wrap(h.handleCreateDiagnosis))
			r.Get("/diagnoses", h.wrap(h.handleListDiagnoses))
			r.Get("/diagnoses/{id}", h.wrap(h.handleGetDiagnosis))
			r.Get("/stats", h.wrap(h.handleStats))
			r.Get("/reports/{name}", h.wrap(h.handleReport))
			r.Get("/training", h.wrap(h.handleTraining))
		})
	})

	return r
}

// Server HTTP服务器
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewServer 创建HTTP服务器
func NewServer(cfg config.ServerConfig, handler http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger.Named("http"),
	}
}

// Start 启动服务器, blocks until Stop.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	return s.Serve(l)
}

func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("http server listening", zap.String("addr", l.Addr().String()))
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
