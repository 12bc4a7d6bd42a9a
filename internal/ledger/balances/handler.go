package balances

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	ledgershared "github.com/dukapos/dukapos/internal/ledger/shared"
	"github.com/dukapos/dukapos/internal/platform/httpx"
)

// Handler manages balance query endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers balance routes under a channel scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts/{code}", h.accountBalance)
	r.Get("/customers/{customerID}", h.customerBalance)
	r.Get("/suppliers/{supplierID}", h.supplierBalance)
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	q, err := queryFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", err.Error())
		return
	}
	balance, err := h.service.Balance(r.Context(), channelID, chi.URLParam(r, "code"), q)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) customerBalance(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	customerID := chi.URLParam(r, "customerID")
	balance, err := h.service.CustomerBalance(r.Context(), channelID, customerID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customerId": customerID, "outstanding": balance})
}

func (h *Handler) supplierBalance(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Channel", err.Error())
		return
	}
	supplierID := chi.URLParam(r, "supplierID")
	balance, err := h.service.SupplierBalance(r.Context(), channelID, supplierID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"supplierId": supplierID, "owed": balance})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, ledgershared.ErrAccountNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Account Not Found", err.Error())
		return
	}
	h.logger.Error("balances handler error", slog.Any("error", err))
	httpx.RespondError(w, err)
}

func queryFromRequest(r *http.Request) (Query, error) {
	q := Query{
		CustomerID: r.URL.Query().Get("customerId"),
		SupplierID: r.URL.Query().Get("supplierId"),
		SessionID:  r.URL.Query().Get("sessionId"),
	}
	if raw := r.URL.Query().Get("startDate"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return Query{}, err
		}
		q.StartDate = &t
	}
	if raw := r.URL.Query().Get("endDate"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return Query{}, err
		}
		q.EndDate = &t
	}
	return q, nil
}
