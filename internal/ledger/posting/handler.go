package posting

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	ledgershared "github.com/dukapos/dukapos/internal/ledger/shared"
	"github.com/dukapos/dukapos/internal/platform/httpx"
	"github.com/dukapos/dukapos/internal/shared"
)

// Handler manages journal posting endpoints.
type Handler struct {
	logger   *slog.Logger
	engine   *Engine
	validate *validator.Validate
}

// NewHandler builds the Handler instance.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{
		logger:   logger,
		engine:   engine,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers journal routes under a channel scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/entries", h.post)
	r.Get("/entries", h.findBySource)
	r.Get("/entries/{id}", h.get)
	r.Post("/entries/{id}/reverse", h.reverse)
}

type reverseRequest struct {
	ReversalDate time.Time `json:"reversalDate" validate:"required"`
	Memo         string    `json:"memo,omitempty" validate:"max=500"`
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	in.ChannelID = channelID
	in.PostedBy = shared.ActorFromContext(r.Context()).UserID
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.engine.Post(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
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
	entry, found, err := h.engine.FindBySource(r.Context(), channelID, sourceType, sourceID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !found {
		httpx.Problem(w, http.StatusNotFound, "Entry Not Found", "no journal entry for this source")
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	entry, err := h.engine.GetEntry(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	entry, err := h.engine.Reverse(r.Context(), id, req.ReversalDate, actor.UserID, req.Memo)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledgershared.ErrEntryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Entry Not Found", err.Error())
	case errors.Is(err, ledgershared.ErrAccountNotFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Account", err.Error())
	case errors.Is(err, ledgershared.ErrPeriodClosed):
		httpx.Problem(w, http.StatusConflict, "Period Closed", err.Error())
	case errors.Is(err, ledgershared.ErrImbalancedEntry),
		errors.Is(err, ledgershared.ErrTooFewLines):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Journal", err.Error())
	default:
		h.logger.Error("posting handler error", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
