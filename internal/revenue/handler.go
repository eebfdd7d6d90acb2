package revenue

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/brickrent/brickrent/internal/platform/httpx"
	"github.com/brickrent/brickrent/internal/shared"
)

// Refresh endpoints fan out to the provider, so they are rate limited well
// below the global limit.
const refreshRateLimit = 5

// RefreshService defines the business contract the handler needs.
type RefreshService interface {
	RefreshYear(ctx context.Context, year int, actor int64) (RefreshResult, error)
	Meta(ctx context.Context, year int) (CacheMeta, error)
	YearEntries(ctx context.Context, year int) ([]CacheEntry, error)
}

// Handler manages revenue cache endpoints.
type Handler struct {
	logger   *slog.Logger
	service  RefreshService
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service RefreshService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers revenue routes.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(refreshRateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/refresh", h.refresh)
	})
	r.Get("/meta/{year}", h.meta)
	r.Get("/entries/{year}", h.entries)
}

type refreshRequest struct {
	Year int `json:"year" validate:"required,gte=2000,lte=2100"`
}

type refreshResponse struct {
	Year         int `json:"year"`
	BookingCount int `json:"booking_count"`
	Entries      int `json:"entries"`
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be JSON with a year field")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	actor := shared.ActorFromContext(r.Context())
	result, err := h.service.RefreshYear(r.Context(), req.Year, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, refreshResponse{
		Year:         result.Year,
		BookingCount: result.BookingCount,
		Entries:      result.Entries,
	})
}

func (h *Handler) meta(w http.ResponseWriter, r *http.Request) {
	year, err := yearParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Year", err.Error())
		return
	}
	meta, err := h.service.Meta(r.Context(), year)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, meta)
}

func (h *Handler) entries(w http.ResponseWriter, r *http.Request) {
	year, err := yearParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Year", err.Error())
		return
	}
	entries, err := h.service.YearEntries(r.Context(), year)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidYear), errors.Is(err, ErrNoLinkedUnits):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrProvider):
		httpx.Problem(w, http.StatusBadGateway, "Provider Failure", err.Error())
	case errors.Is(err, ErrMetaNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("revenue handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func yearParam(r *http.Request) (int, error) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return 0, errors.New("year must be an integer")
	}
	return year, nil
}
