package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-core/internal/availability"
	"github.com/iliyamo/cinema-booking-core/internal/catalog"
)

// AvailabilityReader is the read path of seat state.
type AvailabilityReader interface {
	Read(ctx context.Context, showID string) (availability.Availability, error)
}

// ShowHandler serves the public, unauthenticated show endpoints.
type ShowHandler struct {
	reader  AvailabilityReader
	catalog catalog.Provider
}

func NewShowHandler(reader AvailabilityReader, catalog catalog.Provider) *ShowHandler {
	if reader == nil || catalog == nil {
		panic("nil dependency passed to NewShowHandler")
	}
	return &ShowHandler{reader: reader, catalog: catalog}
}

type availabilityResponse struct {
	ShowID   string    `json:"show_id"`
	Occupied []string  `json:"occupied_seats"`
	Locked   []string  `json:"locked_seats"`
	Free     []string  `json:"free_seats"`
	AsOf     time.Time `json:"as_of"`
}

// GetAvailability handles GET /v1/shows/:id/availability.  Clients poll it
// while the seat picker is open.
func (h *ShowHandler) GetAvailability(c echo.Context) error {
	a, err := h.reader.Read(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.JSON(http.StatusOK, availabilityResponse{
		ShowID:   a.ShowID,
		Occupied: a.Occupied,
		Locked:   a.Locked,
		Free:     a.Free,
		AsOf:     a.AsOf,
	})
}

type seatCell struct {
	SeatID     string `json:"seat_id"`
	Tier       string `json:"tier"`
	PriceCents int64  `json:"price_cents"`
}

type tierInfo struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

type seatMapResponse struct {
	ShowID   string        `json:"show_id"`
	Title    string        `json:"title"`
	ScreenID string        `json:"screen_id"`
	StartsAt time.Time     `json:"starts_at"`
	Status   string        `json:"status"`
	Columns  int           `json:"columns"`
	Rows     [][]*seatCell `json:"rows"`
	Tiers    []tierInfo    `json:"tiers"`
}

// GetSeatMap handles GET /v1/shows/:id/seatmap.  Aisles are null cells.
func (h *ShowHandler) GetSeatMap(c echo.Context) error {
	show, sm, err := h.catalog.Show(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	resp := seatMapResponse{
		ShowID:   show.ID,
		Title:    show.Title,
		ScreenID: show.ScreenID,
		StartsAt: show.StartsAt,
		Status:   string(show.Status),
		Columns:  sm.Columns(),
	}
	for _, row := range sm.Rows() {
		cells := make([]*seatCell, len(row))
		for i, cell := range row {
			if cell.Aisle() {
				continue
			}
			price, _ := sm.Price(cell.SeatID)
			cells[i] = &seatCell{SeatID: cell.SeatID, Tier: cell.Tier, PriceCents: price}
		}
		resp.Rows = append(resp.Rows, cells)
	}
	for _, t := range sm.Tiers() {
		resp.Tiers = append(resp.Tiers, tierInfo{Code: t.Code, Name: t.DisplayName, PriceCents: t.PriceCents})
	}
	return c.JSON(http.StatusOK, resp)
}
