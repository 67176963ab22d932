package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tbxark/talkform/agent"
	"github.com/tbxark/talkform/catalog"
	"github.com/tbxark/talkform/types"
)

const (
	maxBody         = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Source yields the catalog in use.
type Source interface {
	Current() *catalog.Catalog
}

// Check reports whether a dependency is ready to serve.
type Check func(ctx context.Context) error

type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the webhook front of the dialogue runtime.
type Server struct {
	handler agent.TurnHandler
	src     Source
	checks  map[string]Check
	srv     *http.Server
}

type Option func(*Server)

// WithReadyCheck adds a dependency to /health/ready.
func WithReadyCheck(name string, check Check) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

func New(conf Config, handler agent.TurnHandler, src Source, opts ...Option) *Server {
	s := &Server{
		handler: handler,
		src:     src,
		checks:  map[string]Check{},
	}
	for _, o := range opts {
		o(s)
	}
	s.srv = &http.Server{
		Addr:              ":" + strconv.Itoa(conf.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       conf.ReadTimeout,
		WriteTimeout:      conf.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s
}

// Handler returns the routes wrapped in the security middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /forms", s.handleForms)
	mux.HandleFunc("GET /forms/{name}/schema", s.handleSchema)
	mux.HandleFunc("GET /health/live", handleLive)
	mux.HandleFunc("GET /health/ready", s.handleReady)
	return secureMiddleware(mux)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("HTTP server shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.srv.Shutdown(shutCtx)
	})
	return g.Wait()
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	var turn types.Turn
	if err := sonic.Unmarshal(body, &turn); err != nil {
		writeError(w, http.StatusBadRequest, "invalid turn")
		return
	}
	if turn.SenderID == "" {
		turn.SenderID = uuid.NewString()
	}
	result, err := s.handler.HandleTurn(r.Context(), &turn)
	if err != nil {
		slog.Error("Turn failed", "sender", turn.SenderID, "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{SenderID: turn.SenderID, TurnResult: result})
}

type webhookResponse struct {
	SenderID string `json:"sender_id"`
	*types.TurnResult
}

type formInfo struct {
	Name        string   `json:"name"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Slots       []string `json:"slots"`
	Confirm     bool     `json:"confirm"`
}

func (s *Server) handleForms(w http.ResponseWriter, r *http.Request) {
	cat := s.src.Current()
	if cat == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog not loaded")
		return
	}
	forms := make([]formInfo, 0, len(cat.Forms()))
	for _, spec := range cat.Forms() {
		forms = append(forms, formInfo{
			Name:        spec.Name,
			Title:       spec.Title,
			Description: spec.Description,
			Slots:       spec.Slots(),
			Confirm:     spec.Confirm,
		})
	}
	writeJSON(w, http.StatusOK, forms)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	cat := s.src.Current()
	if cat == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog not loaded")
		return
	}
	name := r.PathValue("name")
	if _, ok := cat.Form(name); !ok {
		writeError(w, http.StatusNotFound, "unknown form "+name)
		return
	}
	out, err := cat.SchemaJSON(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, out)
}

func handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.src.Current() == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog not loaded")
		return
	}
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			slog.Warn("Readiness check failed", "check", name, "error", err)
			writeError(w, http.StatusServiceUnavailable, name+" unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	out, err := sonic.Marshal(v)
	if err != nil {
		slog.Error("Encode response failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(out)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// secureMiddleware blocks TRACE, bounds the body and sets the usual security headers.
func secureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodTrace {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
