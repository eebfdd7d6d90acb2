// Package provider talks to the external booking-management API. It is the
// engine's sole source of truth for whether rental revenue happened; the
// revenue cache decouples everything downstream from its availability.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Reservation type tags as reported by the provider. Reservations and
// modifications count as revenue; cancellations never do.
const (
	TypeReservation  = "reservation"
	TypeModification = "modification of booking"
	TypeCancellation = "cancellation"
)

// Apartment is the provider-side reference on a reservation. A reservation
// without an apartment is unassigned and carries no revenue for any unit.
type Apartment struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Reservation is one reservation-like record from the provider.
type Reservation struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Apartment *Apartment      `json:"apartment"`
	Arrival   string          `json:"arrival"` // YYYY-MM-DD
	Departure string          `json:"departure"`
	Price     decimal.Decimal `json:"price"`
}

// CountsAsRevenue reports whether this record contributes to gross revenue.
func (r Reservation) CountsAsRevenue() bool {
	switch r.Type {
	case TypeReservation, TypeModification:
		return r.Apartment != nil
	default:
		return false
	}
}

// ArrivalDate parses the arrival date tag.
func (r Reservation) ArrivalDate() (time.Time, error) {
	t, err := time.Parse("2006-01-02", r.Arrival)
	if err != nil {
		return time.Time{}, fmt.Errorf("provider: reservation %d has malformed arrival %q: %w", r.ID, r.Arrival, err)
	}
	return t, nil
}

type reservationsPage struct {
	Bookings  []Reservation `json:"bookings"`
	Page      int           `json:"page"`
	PageCount int           `json:"page_count"`
}

// Client wraps interactions with the booking provider API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a new client with a bounded request timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Ping checks if the provider API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/me", c.baseURL), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Api-Key", c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	return nil
}

// ListReservations fetches all reservation records for the given provider
// apartment ids whose arrival falls inside [from, to]. The provider paginates;
// all pages are drained before returning.
func (c *Client) ListReservations(ctx context.Context, apartmentIDs []int64, from, to time.Time) ([]Reservation, error) {
	if len(apartmentIDs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(apartmentIDs))
	for i, id := range apartmentIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}

	var out []Reservation
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("apartments", strings.Join(ids, ","))
		params.Set("arrivalFrom", from.Format("2006-01-02"))
		params.Set("arrivalTo", to.Format("2006-01-02"))
		params.Set("page", strconv.Itoa(page))

		result, err := c.fetchPage(ctx, params)
		if err != nil {
			return nil, err
		}
		out = append(out, result.Bookings...)
		if result.PageCount == 0 || page >= result.PageCount {
			break
		}
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, params url.Values) (reservationsPage, error) {
	endpoint := fmt.Sprintf("%s/api/reservations?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return reservationsPage{}, err
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return reservationsPage{}, fmt.Errorf("provider: list reservations: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return reservationsPage{}, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var result reservationsPage
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return reservationsPage{}, fmt.Errorf("provider: decode reservations: %w", err)
	}
	return result, nil
}
