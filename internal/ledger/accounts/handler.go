package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dukapos/dukapos/internal/ledger/shared"
	"github.com/dukapos/dukapos/internal/platform/httpx"
)

// Handler manages chart of accounts endpoints.
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

// MountRoutes registers account routes under a channel scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/initialize", h.initialize)
	r.Get("/{code}", h.getByCode)
	r.Get("/{code}/children", h.children)
	r.Post("/{code}/deactivate", h.deactivate)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	channelID, err := channelFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	list, err := h.service.List(r.Context(), channelID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": list})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	channelID, err := channelFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	in.ChannelID = channelID
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) initialize(w http.ResponseWriter, r *http.Request) {
	channelID, err := channelFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	if err := h.service.InitializeChannel(r.Context(), channelID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"initialized": true})
}

func (h *Handler) getByCode(w http.ResponseWriter, r *http.Request) {
	channelID, err := channelFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	account, err := h.service.GetByCode(r.Context(), channelID, chi.URLParam(r, "code"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) children(w http.ResponseWriter, r *http.Request) {
	channelID, err := channelFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	parent, err := h.service.GetByCode(r.Context(), channelID, chi.URLParam(r, "code"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	children, err := h.service.Children(r.Context(), parent.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"parent": parent, "children": children})
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	channelID, err := channelFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	account, err := h.service.GetByCode(r.Context(), channelID, chi.URLParam(r, "code"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.service.Deactivate(r.Context(), account.ID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Account Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicateAccountCode):
		httpx.Problem(w, http.StatusConflict, "Duplicate Account Code", err.Error())
	case errors.Is(err, shared.ErrInvalidHierarchy):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Hierarchy", err.Error())
	case errors.Is(err, shared.ErrValidationFailed):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("accounts handler error", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

// channelFromRequest reads the channel scope from the route.
func channelFromRequest(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
}
