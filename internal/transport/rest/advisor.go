package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/finwell/finwell-backend/internal/diag"
	"github.com/finwell/finwell-backend/internal/domain"
	"github.com/finwell/finwell-backend/internal/service/advisor"
	"github.com/finwell/finwell-backend/pkg/ctxutil"
)

// RequestIDHeader carries the client-reserved advisor request id.
const RequestIDHeader = "X-Advisor-Request-Id"

// insightService defines the minimal interface needed by AdvisorHandler.
type insightService interface {
	GetInsight(ctx context.Context, userID uuid.UUID, month domain.Month, language domain.Language, regenerate bool, onDiag advisor.DiagnosticFunc) (*domain.AdvisorInsight, error)
	ConsumeFreeUsage(userID uuid.UUID) (allowFree bool, dayKey string)
	ProviderConfigured() bool
	CheckProvider(ctx context.Context) (bool, error)
}

// AdvisorHandler serves the advisor REST endpoints.
type AdvisorHandler struct {
	svc        insightService
	trail      *diag.Correlator
	production bool
	log        *slog.Logger
}

// NewAdvisorHandler creates an AdvisorHandler. production hides the
// debugging endpoints.
func NewAdvisorHandler(svc insightService, trail *diag.Correlator, production bool, logger *slog.Logger) *AdvisorHandler {
	return &AdvisorHandler{
		svc:        svc,
		trail:      trail,
		production: production,
		log:        logger.With("handler", "advisor"),
	}
}

type errorResponse struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	RetryAfterSec int    `json:"retryAfterSec,omitempty"`
}

type freeCheckResponse struct {
	AllowFree bool   `json:"allowFree"`
	Day       string `json:"day"`
}

type providerHealthResponse struct {
	OK              bool  `json:"ok"`
	ModelConfigured bool  `json:"modelConfigured"`
	ModelExists     bool  `json:"modelExists"`
	LatencyMs       int64 `json:"latencyMs"`
}

// GetInsight handles GET /advisor/insights?month&language&regenerate.
func (h *AdvisorHandler) GetInsight(w http.ResponseWriter, r *http.Request) {
	userID, ok := ctxutil.UserIDFromCtx(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	q := r.URL.Query()
	month, err := domain.ParseMonth(q.Get("month"), time.Now())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	language, err := domain.ParseLanguage(q.Get("language"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	regenerate, _ := strconv.ParseBool(q.Get("regenerate"))

	// The client reserves an id before calling; fall back to the transport
	// request id so the trail never has anonymous entries.
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = ctxutil.RequestIDFromCtx(r.Context())
	}

	onDiag := func(event string, payload map[string]any) {
		p := make(map[string]any, len(payload)+1)
		for k, v := range payload {
			p[k] = v
		}
		p["requestId"] = requestID
		h.trail.Record(event, p)
	}

	insight, err := h.svc.GetInsight(r.Context(), userID, month, language, regenerate, onDiag)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, insight)
}

// FreeCheck handles POST /advisor/insights/free-check. It consumes the
// user's daily free generation if still available and reports the outcome.
func (h *AdvisorHandler) FreeCheck(w http.ResponseWriter, r *http.Request) {
	userID, ok := ctxutil.UserIDFromCtx(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	allowFree, day := h.svc.ConsumeFreeUsage(userID)
	h.trail.Record("advisor.free_check", map[string]any{
		"allowFree": allowFree,
		"day":       day,
	})

	writeJSON(w, http.StatusOK, freeCheckResponse{AllowFree: allowFree, Day: day})
}

// ProviderHealth handles GET /advisor/provider-health. Hidden in production.
func (h *AdvisorHandler) ProviderHealth(w http.ResponseWriter, r *http.Request) {
	if h.production {
		http.NotFound(w, r)
		return
	}

	resp := providerHealthResponse{ModelConfigured: h.svc.ProviderConfigured()}
	if !resp.ModelConfigured {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	start := time.Now()
	exists, err := h.svc.CheckProvider(ctx)
	resp.LatencyMs = time.Since(start).Milliseconds()
	resp.ModelExists = exists
	resp.OK = err == nil && exists

	if err != nil {
		h.log.WarnContext(r.Context(), "provider health probe failed", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Diagnostics handles GET /advisor/diagnostics. It dumps the redacted event
// trail for debugging. Hidden in production.
func (h *AdvisorHandler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	if h.production {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events":  h.trail.Events(),
		"pending": h.trail.Pending(),
	})
}

func (h *AdvisorHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var cdErr *domain.CooldownError
	perr, isProvider := domain.AsProviderError(err)

	switch {
	case errors.As(err, &cdErr):
		w.Header().Set("Retry-After", strconv.Itoa(cdErr.RetryAfterSec))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:         "regenerate requested too soon",
			Code:          "ADVISOR_REGENERATE_COOLDOWN",
			RetryAfterSec: cdErr.RetryAfterSec,
		})
	case isProvider && perr.Reason == domain.ProviderFailRateLimited:
		if perr.RetryAfterSec > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(perr.RetryAfterSec))
		}
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:         "advice provider is busy, try again later",
			Code:          "ADVISOR_PROVIDER_BUSY",
			RetryAfterSec: perr.RetryAfterSec,
		})
	case isProvider && perr.Reason == domain.ProviderFailInvalidRequest:
		h.log.ErrorContext(r.Context(), "provider rejected request", slog.String("error", perr.Error()))
		writeErrorCode(w, http.StatusBadGateway, "ADVISOR_PROVIDER_INVALID_REQUEST", "advice provider rejected the request")
	case errors.Is(err, domain.ErrRateLimited):
		writeErrorCode(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
	case errors.Is(err, domain.ErrValidation):
		writeErrorCode(w, http.StatusBadRequest, "VALIDATION", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeErrorCode(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	default:
		h.log.ErrorContext(r.Context(), "internal error", slog.String("error", err.Error()))
		writeErrorCode(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}
