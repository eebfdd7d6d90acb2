package settlement

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/brickrent/brickrent/internal/platform/httpx"
	"github.com/brickrent/brickrent/internal/shared"
)

// SettlementService defines the business contract the handler needs.
type SettlementService interface {
	CreateSettlement(ctx context.Context, input CreateSettlementInput) (SettlementWithPayouts, error)
	GetSettlement(ctx context.Context, id int64) (SettlementWithPayouts, error)
	DeleteSettlement(ctx context.Context, id, actor int64) error
	MarkPayoutPaid(ctx context.Context, payoutID, actor int64, notes string) (OwnerPayout, error)
	MarkAllUnpaidPaid(ctx context.Context, settlementID, actor int64, notes string) (int, error)
	GetYearEarnings(ctx context.Context, unitID int64, year int) (YearEarnings, error)
}

// Handler manages settlement and payout endpoints.
type Handler struct {
	logger   *slog.Logger
	service  SettlementService
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service SettlementService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers settlement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/units/{unitID}/settlements", h.create)
	r.Get("/units/{unitID}/earnings", h.earnings)
	r.Get("/settlements/{id}", h.get)
	r.Delete("/settlements/{id}", h.delete)
	r.Post("/settlements/{id}/pay-all", h.payAll)
	r.Post("/payouts/{id}/pay", h.pay)
}

type createRequest struct {
	Year              int    `json:"year" validate:"required,gte=2000,lte=2100"`
	Quarter           int    `json:"quarter" validate:"required,gte=1,lte=4"`
	AdditionalExpense string `json:"additional_expense"`
	Notes             string `json:"notes" validate:"max=1000"`
}

type payRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

type payAllResponse struct {
	SettlementID int64 `json:"settlement_id"`
	Marked       int   `json:"marked"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	unitID, err := idParam(r, "unitID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Unit", err.Error())
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	additional := decimal.Zero
	if req.AdditionalExpense != "" {
		additional, err = decimal.NewFromString(req.AdditionalExpense)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "additional_expense must be a decimal number")
			return
		}
	}

	result, err := h.service.CreateSettlement(r.Context(), CreateSettlementInput{
		UnitID:            unitID,
		Year:              req.Year,
		Quarter:           req.Quarter,
		AdditionalExpense: additional,
		Notes:             req.Notes,
		CreatedBy:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	result, err := h.service.GetSettlement(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.DeleteSettlement(r.Context(), id, actor); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	req, ok := h.decodePay(w, r)
	if !ok {
		return
	}
	actor := shared.ActorFromContext(r.Context())
	payout, err := h.service.MarkPayoutPaid(r.Context(), id, actor, req.Notes)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payout)
}

func (h *Handler) payAll(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	req, ok := h.decodePay(w, r)
	if !ok {
		return
	}
	actor := shared.ActorFromContext(r.Context())
	marked, err := h.service.MarkAllUnpaidPaid(r.Context(), id, actor, req.Notes)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payAllResponse{SettlementID: id, Marked: marked})
}

func (h *Handler) earnings(w http.ResponseWriter, r *http.Request) {
	unitID, err := idParam(r, "unitID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Unit", err.Error())
		return
	}
	year := time.Now().UTC().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		year, err = strconv.Atoi(raw)
		if err != nil || year < 2000 || year > 2100 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Year", "year must be an integer between 2000 and 2100")
			return
		}
	}
	view, err := h.service.GetYearEarnings(r.Context(), unitID, year)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

// decodePay tolerates an empty body since notes are optional on pay calls.
func (h *Handler) decodePay(w http.ResponseWriter, r *http.Request) (payRequest, bool) {
	var req payRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be JSON")
			return payRequest{}, false
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return payRequest{}, false
		}
	}
	return req, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuarter), errors.Is(err, ErrNegativeExpense), errors.Is(err, ErrNoOwners):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrDuplicateSettlement), errors.Is(err, ErrHasPaidPayouts), errors.Is(err, ErrAlreadyPaid):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrSettlementNotFound), errors.Is(err, ErrPayoutNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("settlement handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return id, nil
}
