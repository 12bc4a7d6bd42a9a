package cashier

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dukapos/dukapos/internal/platform/httpx"
	"github.com/dukapos/dukapos/internal/shared"
)

// Handler manages cashier session endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers cashier routes under a channel scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sessions", h.open)
	r.Get("/sessions", h.list)
	r.Get("/sessions/{sessionID}", h.get)
	r.Get("/sessions/{sessionID}/summary", h.summary)
	r.Post("/sessions/{sessionID}/close", h.close)
	r.Post("/sessions/{sessionID}/blind-count", h.blindCount)
	r.Post("/sessions/{sessionID}/mpesa-verification", h.mpesaVerification)
	r.Get("/counts/pending", h.pendingReviews)
	r.Post("/counts/{countID}/review", h.reviewVariance)
	r.Post("/counts/{countID}/explain", h.explainVariance)
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	var in OpenInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	in.ChannelID = channelID
	in.CashierUserID = shared.ActorFromContext(r.Context()).UserID
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	session, err := h.service.Open(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, session)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	var filter ListFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := SessionStatus(raw)
		if status != SessionOpen && status != SessionClosed {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Status", "status must be OPEN or CLOSED")
			return
		}
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
			return
		}
		filter.From = &from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
			return
		}
		filter.To = &to
	}
	sessions, err := h.service.List(r.Context(), channelID, filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Close(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) blindCount(w http.ResponseWriter, r *http.Request) {
	var in BlindCountInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	in.CountedBy = shared.ActorFromContext(r.Context()).UserID
	count, err := h.service.SubmitBlindCount(r.Context(), chi.URLParam(r, "sessionID"), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, count)
}

func (h *Handler) mpesaVerification(w http.ResponseWriter, r *http.Request) {
	var in MpesaVerificationInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	in.VerifiedBy = shared.ActorFromContext(r.Context()).UserID
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	verification, err := h.service.SubmitMpesaVerification(r.Context(), chi.URLParam(r, "sessionID"), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, verification)
}

func (h *Handler) pendingReviews(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	counts, err := h.service.PendingVarianceReviews(r.Context(), channelID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"counts": counts})
}

type reviewRequest struct {
	Note string `json:"note,omitempty" validate:"max=500"`
}

func (h *Handler) reviewVariance(w http.ResponseWriter, r *http.Request) {
	countID, err := strconv.ParseInt(chi.URLParam(r, "countID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req reviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	reviewer := shared.ActorFromContext(r.Context()).UserID
	count, err := h.service.ReviewVariance(r.Context(), countID, reviewer, req.Note)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, count)
}

type explainRequest struct {
	Explanation string `json:"explanation" validate:"required,max=500"`
}

func (h *Handler) explainVariance(w http.ResponseWriter, r *http.Request) {
	countID, err := strconv.ParseInt(chi.URLParam(r, "countID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req explainRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.ExplainVariance(r.Context(), countID, req.Explanation); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrCountNotFound),
		errors.Is(err, ErrVerificationNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrSessionAlreadyOpen), errors.Is(err, ErrCountAlreadySubmitted):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrSessionClosed), errors.Is(err, ErrCountMissing),
		errors.Is(err, ErrVarianceUnreviewed):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Session State", err.Error())
	case errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("cashier handler error", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
