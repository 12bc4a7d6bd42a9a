package inventory

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

// Handler manages inventory endpoints.
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

// MountRoutes registers inventory routes under a channel scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.record)
	r.Get("/movements", h.findBySource)
	r.Get("/stock", h.stockOnHand)
	r.Get("/valuation", h.valuation)
	r.Get("/expiring", h.expiring)
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	var in MovementInput
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
	result, err := h.service.Record(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Idempotent {
		status = http.StatusOK
	}
	httpx.JSON(w, status, result)
}

func (h *Handler) findBySource(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	sourceType := r.URL.Query().Get("sourceType")
	sourceID := r.URL.Query().Get("sourceId")
	if sourceType == "" || sourceID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Missing Query", "sourceType and sourceId are required")
		return
	}
	movements, err := h.service.MovementsBySource(r.Context(), channelID, sourceType, sourceID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) stockOnHand(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	locationID, err := strconv.ParseInt(r.URL.Query().Get("locationId"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "locationId is required")
		return
	}
	variantID, err := strconv.ParseInt(r.URL.Query().Get("variantId"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "variantId is required")
		return
	}
	qty, err := h.service.StockOnHand(r.Context(), channelID, locationID, variantID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"locationId": locationID,
		"variantId":  variantID,
		"quantity":   qty,
	})
}

func (h *Handler) valuation(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	snapshot, err := h.service.Valuation(r.Context(), channelID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshot)
}

func (h *Handler) expiring(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		if days, err = strconv.Atoi(raw); err != nil || days <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "days must be a positive integer")
			return
		}
	}
	batches, err := h.service.Expiring(r.Context(), channelID, time.Duration(days)*24*time.Hour)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", insufficient.Error())
	case errors.Is(err, ErrInvalidMovement):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Movement", err.Error())
	case errors.Is(err, ErrConcurrentAllocation), errors.Is(err, shared.ErrLockBusy):
		httpx.Problem(w, http.StatusConflict, "Allocation Busy", err.Error())
	default:
		h.logger.Error("inventory handler error", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
