package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestListReservationsDrainsAllPages(t *testing.T) {
	pages := map[int]reservationsPage{
		1: {
			Bookings: []Reservation{
				{ID: 1, Type: TypeReservation, Apartment: &Apartment{ID: 7}, Arrival: "2024-01-05", Price: decimal.RequireFromString("120.50")},
			},
			Page:      1,
			PageCount: 2,
		},
		2: {
			Bookings: []Reservation{
				{ID: 2, Type: TypeCancellation, Apartment: &Apartment{ID: 7}, Arrival: "2024-02-10", Price: decimal.RequireFromString("80.00")},
			},
			Page:      2,
			PageCount: 2,
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret", r.Header.Get("Api-Key"))
		require.Equal(t, "7", r.URL.Query().Get("apartments"))
		require.Equal(t, "2024-01-01", r.URL.Query().Get("arrivalFrom"))
		require.Equal(t, "2024-12-31", r.URL.Query().Get("arrivalTo"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(pages[page]))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", time.Second)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	got, err := client.ListReservations(context.Background(), []int64{7}, from, to)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].Price.Equal(decimal.RequireFromString("120.50")))
}

func TestListReservationsProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", time.Second)
	_, err := client.ListReservations(context.Background(), []int64{7}, time.Now(), time.Now())
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 500")
}

func TestListReservationsMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bookings": "not-a-list"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", time.Second)
	_, err := client.ListReservations(context.Background(), []int64{7}, time.Now(), time.Now())
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode reservations")
}

func TestCountsAsRevenue(t *testing.T) {
	apt := &Apartment{ID: 1}
	cases := []struct {
		name string
		res  Reservation
		want bool
	}{
		{"confirmed stay", Reservation{Type: TypeReservation, Apartment: apt}, true},
		{"modified stay", Reservation{Type: TypeModification, Apartment: apt}, true},
		{"cancellation", Reservation{Type: TypeCancellation, Apartment: apt}, false},
		{"unassigned", Reservation{Type: TypeReservation, Apartment: nil}, false},
		{"unknown type", Reservation{Type: "inquiry", Apartment: apt}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.res.CountsAsRevenue())
		})
	}
}
