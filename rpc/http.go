package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tokensale/gateway/middleware"
	"tokensale/native/access"
	"tokensale/native/bank"
	"tokensale/native/common"
	"tokensale/native/sale"
	"tokensale/observability"
	"tokensale/state"
)

const maxRequestBytes = 1 << 20 // 1 MiB

// Server exposes the sale engine over HTTP: public queries, the deposit
// entry point and the authenticated admin surface.
type Server struct {
	engine  *sale.Engine
	mgr     *state.Manager
	logger  *slog.Logger
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	metrics *observability.SaleMetrics
}

// NewServer wires the HTTP surface. The authenticator guards every endpoint
// that acts on behalf of a caller; the engine's role table remains the
// authority for what that caller may do.
func NewServer(engine *sale.Engine, mgr *state.Manager, auth *middleware.Authenticator, limiter *middleware.RateLimiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:  engine,
		mgr:     mgr,
		logger:  logger,
		auth:    auth,
		limiter: limiter,
		metrics: observability.Sale(),
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/sale", func(sr chi.Router) {
		if s.limiter != nil {
			sr.Use(s.limiter.Middleware())
		}
		sr.Get("/stage", s.handleStage)
		sr.Get("/summary", s.handleSummary)
		sr.Get("/allowance/{address}", s.handleAllowance)
		sr.Post("/verify", s.handleVerify)
		sr.Group(func(ar chi.Router) {
			if s.auth != nil {
				ar.Use(s.auth.Middleware())
			}
			ar.Post("/deposit", s.handleDeposit)
		})
	})

	r.Route("/v1/admin", func(ar chi.Router) {
		if s.limiter != nil {
			ar.Use(s.limiter.Middleware())
		}
		if s.auth != nil {
			ar.Use(s.auth.Middleware())
		}
		ar.Post("/schedule", s.handleSetSchedule)
		ar.Post("/parameters", s.handleSetParameters)
		ar.Post("/tiers", s.handleSetTiers)
		ar.Post("/merkle-root", s.handleSetMerkleRoot)
		ar.Post("/pause", s.handlePause)
		ar.Post("/unpause", s.handleUnpause)
		ar.Post("/withdraw", s.handleWithdraw)
		ar.Post("/roles/grant", s.handleGrantRole)
		ar.Post("/roles/revoke", s.handleRevokeRole)
	})

	return r
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
	Limit string `json:"limit,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if id, ok := middleware.RequestIDFromContext(r.Context()); ok {
		s.logger.Debug("request failed", "request_id", id, "status", status, "error", message)
	}
	s.writeJSON(w, status, errorResponse{Error: message})
}

// writeEngineError maps the sale error taxonomy onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *sale.ValidationError
		stageErr      *sale.StageError
		authErr       *sale.AuthorizationError
		configErr     *sale.ConfigurationError
		invariantErr  *sale.StateInvariantError
	)
	switch {
	case errors.As(err, &validationErr):
		resp := errorResponse{Error: validationErr.Error()}
		if validationErr.Limit != nil {
			resp.Limit = validationErr.Limit.String()
		}
		s.writeJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.As(err, &stageErr):
		s.writeError(w, r, http.StatusConflict, stageErr.Error())
	case errors.Is(err, common.ErrPaused), errors.Is(err, sale.ErrNotPaused):
		s.writeError(w, r, http.StatusConflict, err.Error())
	case errors.As(err, &authErr), errors.Is(err, access.ErrUnauthorized):
		s.writeError(w, r, http.StatusForbidden, err.Error())
	case errors.As(err, &configErr):
		s.writeError(w, r, http.StatusBadRequest, configErr.Error())
	case errors.Is(err, bank.ErrInsufficientBalance), errors.Is(err, bank.ErrInsufficientAllowance):
		s.writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &invariantErr):
		s.logger.Error("state invariant violated", "err", err)
		s.writeError(w, r, http.StatusInternalServerError, "internal error")
	default:
		s.logger.Error("operation failed", "err", err)
		s.writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
