package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/giftlist/linkresolver/internal/id/uuid"
	"github.com/giftlist/linkresolver/internal/metrics"
	"github.com/giftlist/linkresolver/internal/product"
	"github.com/giftlist/linkresolver/internal/resolver"
)

// Error messages returned to callers.
const (
	msgInvalidURL = "invalid Amazon URL"
	msgInternal   = "internal server error"
)

// Resolver produces a record for a validated product link.
type Resolver interface {
	ResolveDetailed(ctx context.Context, query product.Query, creds product.Credentials) resolver.Result
}

// IDGenerator produces request IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Options carries the configuration the handlers need.
type Options struct {
	Credentials    product.Credentials
	Endpoints      []product.Endpoint
	Strategies     []string
	RequestTimeout time.Duration
	// IDs defaults to UUID v7.
	IDs IDGenerator
}

// Server wires HTTP handlers to the resolver.
type Server struct {
	router   chi.Router
	resolver Resolver
	opts     Options
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(res Resolver, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.IDs == nil {
		opts.IDs = uuid.New()
	}
	s := &Server{
		resolver: res,
		opts:     opts,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware(opts.IDs, logger))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/debug-env", s.debugEnv)
	r.With(deadlineMiddleware(opts.RequestTimeout)).Post("/process-amazon-link", s.processLink)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.resolver == nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "resolver not configured"})
		return
	}
	render.JSON(w, r, map[string]string{"status": "ready"})
}

type processRequest struct {
	URL string `json:"url"`
}

type processResponse struct {
	Success bool            `json:"success"`
	Data    *product.Record `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (s *Server) processLink(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, msgInvalidURL)
		return
	}
	sourceURL, err := product.ValidateURL(req.URL)
	if err != nil {
		s.logger.Info("rejected product link",
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, r, http.StatusBadRequest, msgInvalidURL)
		return
	}

	result := s.resolver.ResolveDetailed(r.Context(), product.Query{SourceURL: sourceURL}, s.opts.Credentials)
	s.logger.Info("product link processed",
		zap.String("request_id", RequestID(r.Context())),
		zap.String("strategy", result.Strategy),
		zap.String("identifier", result.Identifier.String()),
	)
	render.JSON(w, r, processResponse{Success: true, Data: &result.Record})
}

type credentialStatus struct {
	AccessKey  string `json:"AMAZON_ACCESS_KEY_ID"`
	SecretKey  string `json:"AMAZON_SECRET_ACCESS_KEY"`
	PartnerTag string `json:"AMAZON_ASSOCIATE_TAG"`
}

type debugEnvResponse struct {
	Success      bool               `json:"success"`
	Credentials  credentialStatus   `json:"credentials"`
	APIEnabled   bool               `json:"api_enabled"`
	Strategies   []string           `json:"strategies"`
	Marketplaces []product.Endpoint `json:"marketplaces"`
}

func (s *Server) debugEnv(w http.ResponseWriter, r *http.Request) {
	creds := s.opts.Credentials
	endpoints := make([]product.Endpoint, 0, len(s.opts.Endpoints))
	for _, ep := range s.opts.Endpoints {
		ep.BaseURL = ""
		endpoints = append(endpoints, ep)
	}
	render.JSON(w, r, debugEnvResponse{
		Success: true,
		Credentials: credentialStatus{
			AccessKey:  mask(creds.AccessKey),
			SecretKey:  mask(creds.SecretKey),
			PartnerTag: mask(creds.PartnerTag),
		},
		APIEnabled:   creds.Complete(),
		Strategies:   s.opts.Strategies,
		Marketplaces: endpoints,
	})
}

func mask(value string) string {
	if value == "" {
		return "not configured"
	}
	return "***configured***"
}

// requestIDMiddleware keeps a well-formed incoming X-Request-ID and mints one otherwise.
func requestIDMiddleware(ids IDGenerator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if !uuid.Valid(reqID) {
				var err error
				reqID, err = ids.NewID()
				if err != nil {
					logger.Warn("request id generation failed", zap.Error(err))
					reqID = ""
				}
			}
			ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
			if reqID != "" {
				w.Header().Set("X-Request-ID", reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestID returns the request ID stored by the middleware, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						zap.String("request_id", RequestID(r.Context())),
						zap.Any("error", rec),
						zap.Stack("stack"),
					)
					writeError(w, r, http.StatusInternalServerError, msgInternal)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// deadlineMiddleware bounds the request context but leaves the response to
// the handler. The resolver answers with the stub once the deadline passes.
func deadlineMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, processResponse{Success: false, Error: msg})
}
