// Package api serves the prompt and image functions over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/ghola/internal/apperr"
	"github.com/digkill/ghola/internal/models"
	"github.com/digkill/ghola/internal/service"
)

const (
	PromptPath        = "/api/prompt"
	ImagePath         = "/api/image"
	netlifyPromptPath = "/.netlify/functions/charPrompt"
	netlifyImagePath  = "/.netlify/functions/characterSD"

	invalidJSONMessage = "Invalid JSON in request body"
	genericMessage     = "An error occurred while processing the request"
	maxBodyBytes       = 1 << 20

	// replyMargin is kept between the handler deadline and the write deadline
	// so a timed-out call still gets its JSON error written.
	replyMargin = 5 * time.Second
)

type PromptGateway interface {
	Ready() error
	Enrich(ctx context.Context, in service.PromptInput) (models.EnrichedPrompt, error)
}

type ImageGateway interface {
	Ready() error
	Generate(ctx context.Context, in service.ImageInput) (*models.GenerationResult, error)
}

type Options struct {
	Addr             string
	RatePerMinute    int
	WriteTimeout     time.Duration
	HandlerTimeout   time.Duration
	ShutdownDeadline time.Duration
}

type Server struct {
	addr           string
	writeTimeout   time.Duration
	handlerTimeout time.Duration
	shutdown       time.Duration
	log            *slog.Logger
	prompts        PromptGateway
	images         ImageGateway
	guard          *ipGuard
	router         *chi.Mux
}

func NewServer(opts Options, log *slog.Logger, prompts PromptGateway, images ImageGateway) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Minute
	}
	handlerTimeout := opts.HandlerTimeout
	if handlerTimeout <= 0 || handlerTimeout >= writeTimeout {
		handlerTimeout = handlerBudget(writeTimeout)
	}
	shutdown := opts.ShutdownDeadline
	if shutdown <= 0 {
		shutdown = 10 * time.Second
	}

	s := &Server{
		addr:           opts.Addr,
		writeTimeout:   writeTimeout,
		handlerTimeout: handlerTimeout,
		shutdown:       shutdown,
		log:            log,
		prompts:        prompts,
		images:         images,
		guard:          newIPGuard(opts.RatePerMinute),
		router:         r,
	}

	r.Get("/health", s.handleHealth)
	for _, p := range []string{PromptPath, netlifyPromptPath} {
		r.HandleFunc(p, s.function(s.handlePrompt))
	}
	for _, p := range []string{ImagePath, netlifyImagePath} {
		r.HandleFunc(p, s.function(s.handleImage))
	}
	return s
}

// handlerBudget is how long a function call may run before the write deadline.
func handlerBudget(writeTimeout time.Duration) time.Duration {
	if writeTimeout > 2*replyMargin {
		return writeTimeout - replyMargin
	}
	return writeTimeout / 2
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.writeTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("functions api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

// function applies the shared function contract: CORS, preflight, POST only, per-IP guard.
func (s *Server) function(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORS(w.Header())

		switch r.Method {
		case http.MethodOptions:
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
			return
		case http.MethodPost:
		default:
			w.Header().Set("Allow", "POST, OPTIONS")
			s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method Not Allowed"})
			return
		}

		if !s.guard.Allow(clientIP(r)) {
			s.log.Warn("request throttled", "ip", clientIP(r), "path", r.URL.Path)
			s.writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Too many requests"})
			return
		}
		next(w, r)
	}
}

func setCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
}

type promptRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	Style       string `json:"style"`
}

type promptResponse struct {
	Response string `json:"response"`
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	if err := s.prompts.Ready(); err != nil {
		s.writeError(w, err)
		return
	}
	var req promptRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.handlerTimeout)
	defer cancel()
	out, err := s.prompts.Enrich(ctx, service.PromptInput{
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Style:       req.Style,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, promptResponse{Response: out.Text})
}

type imageRequest struct {
	Prompt      string `json:"prompt"`
	Premium     bool   `json:"premium"`
	AspectRatio string `json:"aspect_ratio"`
	Style       string `json:"style"`
	Character   string `json:"character"`
	Email       string `json:"email"`
}

type imageResponse struct {
	Result []string `json:"result"`
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if err := s.images.Ready(); err != nil {
		s.writeError(w, err)
		return
	}
	var req imageRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.handlerTimeout)
	defer cancel()
	res, err := s.images.Generate(ctx, service.ImageInput{
		Prompt:      req.Prompt,
		Premium:     req.Premium,
		AspectRatio: req.AspectRatio,
		Style:       req.Style,
		Character:   req.Character,
		Email:       req.Email,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	result := make([]string, 0, len(res.Images))
	for _, img := range res.Images {
		result = append(result, img.String())
	}
	s.writeJSON(w, http.StatusOK, imageResponse{Result: result})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: invalidJSONMessage})
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		s.log.Debug("invalid request body", "path", r.URL.Path, "err", err)
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: invalidJSONMessage})
		return false
	}
	return true
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		s.writeJSON(w, appErr.Status, errorResponse{Error: appErr.Message, Details: appErr.Details()})
		return
	}
	s.log.Error("function handler error", "err", err)
	s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: genericMessage, Details: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
