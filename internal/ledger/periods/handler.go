package periods

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	ledgershared "github.com/dukapos/dukapos/internal/ledger/shared"
	"github.com/dukapos/dukapos/internal/platform/httpx"
	"github.com/dukapos/dukapos/internal/shared"
)

// Handler manages accounting period endpoints.
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

// MountRoutes registers period routes under a channel scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/close", h.close)
	r.Get("/lock", h.lock)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	periods, err := h.service.List(r.Context(), channelID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": periods})
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	var in CloseInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	in.ChannelID = channelID
	in.ActorID = shared.ActorFromContext(r.Context()).UserID
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	period, err := h.service.Close(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, period)
}

func (h *Handler) lock(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	lockEnd, found, err := h.service.LockEnd(r.Context(), channelID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !found {
		httpx.JSON(w, http.StatusOK, map[string]any{"locked": false})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"locked": true, "lockEndDate": lockEnd})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var unreconciled *UnreconciledError
	switch {
	case errors.As(err, &unreconciled):
		httpx.ProblemWithItems(w, http.StatusConflict, "Period Not Reconciled",
			"resolve the blocking items before closing the period", unreconciled.Blocking)
	case errors.Is(err, ledgershared.ErrPeriodEndInFuture),
		errors.Is(err, ledgershared.ErrPeriodNotSequential):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Period", err.Error())
	case errors.Is(err, shared.ErrLockBusy):
		httpx.Problem(w, http.StatusConflict, "Close In Progress", err.Error())
	default:
		h.logger.Error("periods handler error", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
