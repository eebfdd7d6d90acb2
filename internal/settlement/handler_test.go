package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type stubSettlementService struct {
	createFn  func(ctx context.Context, input CreateSettlementInput) (SettlementWithPayouts, error)
	deleteFn  func(ctx context.Context, id, actor int64) error
	payFn     func(ctx context.Context, payoutID, actor int64, notes string) (OwnerPayout, error)
	payAllFn  func(ctx context.Context, settlementID, actor int64, notes string) (int, error)
	earningFn func(ctx context.Context, unitID int64, year int) (YearEarnings, error)
}

func (s *stubSettlementService) CreateSettlement(ctx context.Context, input CreateSettlementInput) (SettlementWithPayouts, error) {
	return s.createFn(ctx, input)
}

func (s *stubSettlementService) GetSettlement(ctx context.Context, id int64) (SettlementWithPayouts, error) {
	return SettlementWithPayouts{}, ErrSettlementNotFound
}

func (s *stubSettlementService) DeleteSettlement(ctx context.Context, id, actor int64) error {
	return s.deleteFn(ctx, id, actor)
}

func (s *stubSettlementService) MarkPayoutPaid(ctx context.Context, payoutID, actor int64, notes string) (OwnerPayout, error) {
	return s.payFn(ctx, payoutID, actor, notes)
}

func (s *stubSettlementService) MarkAllUnpaidPaid(ctx context.Context, settlementID, actor int64, notes string) (int, error) {
	return s.payAllFn(ctx, settlementID, actor, notes)
}

func (s *stubSettlementService) GetYearEarnings(ctx context.Context, unitID int64, year int) (YearEarnings, error) {
	return s.earningFn(ctx, unitID, year)
}

func newTestRouter(svc SettlementService) http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)
	return r
}

func TestCreateSettlementEndpoint(t *testing.T) {
	svc := &stubSettlementService{
		createFn: func(ctx context.Context, input CreateSettlementInput) (SettlementWithPayouts, error) {
			require.Equal(t, int64(7), input.UnitID)
			require.Equal(t, 2026, input.Year)
			require.Equal(t, 1, input.Quarter)
			require.True(t, input.AdditionalExpense.Equal(decimal.RequireFromString("150.25")))
			return SettlementWithPayouts{Settlement: Settlement{ID: 3, UnitID: 7}}, nil
		},
	}
	router := newTestRouter(svc)

	body := `{"year": 2026, "quarter": 1, "additional_expense": "150.25", "notes": "roof repair"}`
	req := httptest.NewRequest(http.MethodPost, "/units/7/settlements", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp SettlementWithPayouts
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(3), resp.ID)
}

func TestCreateSettlementEndpointRejectsBadInput(t *testing.T) {
	svc := &stubSettlementService{
		createFn: func(ctx context.Context, input CreateSettlementInput) (SettlementWithPayouts, error) {
			t.Fatal("service must not be called")
			return SettlementWithPayouts{}, nil
		},
	}
	router := newTestRouter(svc)

	cases := []struct {
		name string
		path string
		body string
	}{
		{"quarter out of range", "/units/7/settlements", `{"year": 2026, "quarter": 5}`},
		{"missing year", "/units/7/settlements", `{"quarter": 1}`},
		{"malformed expense", "/units/7/settlements", `{"year": 2026, "quarter": 1, "additional_expense": "lots"}`},
		{"non-numeric unit", "/units/abc/settlements", `{"year": 2026, "quarter": 1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestErrorStatusMapping(t *testing.T) {
	svc := &stubSettlementService{
		createFn: func(ctx context.Context, input CreateSettlementInput) (SettlementWithPayouts, error) {
			return SettlementWithPayouts{}, ErrDuplicateSettlement
		},
		deleteFn: func(ctx context.Context, id, actor int64) error {
			return ErrHasPaidPayouts
		},
		payFn: func(ctx context.Context, payoutID, actor int64, notes string) (OwnerPayout, error) {
			return OwnerPayout{}, ErrPayoutNotFound
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/units/7/settlements", strings.NewReader(`{"year": 2026, "quarter": 1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/settlements/3", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/payouts/9/pay", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPayAllEndpoint(t *testing.T) {
	svc := &stubSettlementService{
		payAllFn: func(ctx context.Context, settlementID, actor int64, notes string) (int, error) {
			require.Equal(t, int64(3), settlementID)
			require.Equal(t, "quarter close", notes)
			return 2, nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/settlements/3/pay-all", strings.NewReader(`{"notes": "quarter close"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp payAllResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Marked)
}

func TestEarningsEndpointValidatesYear(t *testing.T) {
	called := false
	svc := &stubSettlementService{
		earningFn: func(ctx context.Context, unitID int64, year int) (YearEarnings, error) {
			called = true
			require.Equal(t, 2025, year)
			return YearEarnings{UnitID: unitID, Year: year}, nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/units/7/earnings?year=2025", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, called)

	req = httptest.NewRequest(http.MethodGet, "/units/7/earnings?year=1800", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
