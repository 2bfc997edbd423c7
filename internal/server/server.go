// Package server exposes key regeneration over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/systmms/pterokeys/internal/logging"
	"github.com/systmms/pterokeys/internal/secure"
	"github.com/systmms/pterokeys/internal/store"
	"github.com/systmms/pterokeys/pkg/rotation"
)

// Operator headers identify who requested the regeneration.
const (
	HeaderOperatorID    = "X-Operator-Id"
	HeaderOperatorEmail = "X-Operator-Email"
)

// AccountLookup loads accounts by id.
type AccountLookup interface {
	GetAccount(ctx context.Context, id int64) (*rotation.Account, error)
}

// Rotator regenerates an account's key.
type Rotator interface {
	Rotate(ctx context.Context, account *rotation.Account, operator rotation.Operator) rotation.Result
}

// Config holds the HTTP server settings.
type Config struct {
	Listen       string
	Token        *secure.Token
	MetricsPath  string
	Metrics      http.Handler
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server serves the regeneration API.
type Server struct {
	config   Config
	accounts AccountLookup
	rotator  Rotator
	logger   *logging.Logger
	server   *http.Server
	listener net.Listener

	// Rotations of the same account run one at a time. Entries live only
	// while a request holds or waits for them.
	mu    sync.Mutex
	locks map[int64]*accountLock
}

type accountLock struct {
	sync.Mutex
	refs int
}

// New creates a server. Config.Token is required.
func New(config Config, accounts AccountLookup, rotator Rotator, logger *logging.Logger) (*Server, error) {
	if config.Token == nil {
		return nil, fmt.Errorf("server token is required")
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 5 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 60 * time.Second
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}

	return &Server{
		config:   config,
		accounts: accounts,
		rotator:  rotator,
		logger:   logger,
		locks:    make(map[int64]*accountLock),
	}, nil
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if s.config.Metrics != nil {
		r.Method(http.MethodGet, s.config.MetricsPath, s.config.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/users/{id}/api-key", s.handleRegenerate)
	})

	return r
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Listen, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || presented == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		valid := false
		err := s.config.Token.Use(func(expected []byte) error {
			valid = subtle.ConstantTimeCompare(expected, []byte(presented)) == 1
			return nil
		})
		if err != nil || !valid {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	operator, err := operatorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	unlock := s.lock(id)
	defer unlock()

	account, err := s.accounts.GetAccount(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		s.logger.Error("Failed to load account: user_id=%d error=%v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load account")
		return
	}

	result := s.rotator.Rotate(r.Context(), account, operator)
	writeJSON(w, statusFor(result), result.Payload())
}

// lock serializes work on one account and returns the unlock func. The
// entry is removed when its last holder unlocks.
func (s *Server) lock(id int64) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &accountLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()

		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

// lockCount reports how many account locks are tracked.
func (s *Server) lockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

func operatorFromRequest(r *http.Request) (rotation.Operator, error) {
	rawID := r.Header.Get(HeaderOperatorID)
	email := r.Header.Get(HeaderOperatorEmail)
	if rawID == "" || email == "" {
		return rotation.Operator{}, fmt.Errorf("%s and %s headers are required", HeaderOperatorID, HeaderOperatorEmail)
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return rotation.Operator{}, fmt.Errorf("invalid %s header", HeaderOperatorID)
	}
	return rotation.Operator{ID: id, Email: email}, nil
}

func statusFor(result rotation.Result) int {
	switch result.(type) {
	case rotation.Success:
		return http.StatusOK
	case rotation.NotLinked:
		return http.StatusConflict
	case rotation.ProvisioningFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
