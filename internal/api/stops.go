package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/passbi/connscan/internal/models"
)

// StopsResponse is the response of GET /v2/stops
type StopsResponse struct {
	Stops []models.Stop `json:"stops"`
	Count int           `json:"count"`
}

// StopsSearch handles GET /v2/stops?q=
func (h *Handler) StopsSearch(c *fiber.Ctx) error {
	limit, err := parseLimit(c.Query("limit"), 20, 200)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	stops, err := h.Network.SearchStops(c.Query("q"), limit)
	if err != nil {
		return networkError(c, err)
	}

	return c.JSON(StopsResponse{Stops: stops, Count: len(stops)})
}

// DepartureInfo is one departure from a stop
type DepartureInfo struct {
	Service       models.Service `json:"service"`
	To            models.Stop    `json:"to"`
	DepartureTime time.Time      `json:"departure_time"`
	ArrivalTime   time.Time      `json:"arrival_time"`
}

// DeparturesResponse is the response of GET /v2/stops/:id/departures
type DeparturesResponse struct {
	Stop       models.Stop     `json:"stop"`
	After      time.Time       `json:"after"`
	Departures []DepartureInfo `json:"departures"`
}

// StopDepartures handles GET /v2/stops/:id/departures
func (h *Handler) StopDepartures(c *fiber.Ctx) error {
	stopID := c.Params("id")
	if stopID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "stop ID is required"})
	}

	after, err := parseTimeParam(c.Query("after"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": fmt.Sprintf("invalid 'after' time: %v", err)})
	}

	limit, err := parseLimit(c.Query("limit"), 10, 100)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	stop, err := h.Network.Stop(stopID)
	if err != nil {
		return networkError(c, err)
	}

	connections, err := h.Network.Departures(stopID, after, limit)
	if err != nil {
		return networkError(c, err)
	}

	departures := make([]DepartureInfo, 0, len(connections))
	for _, conn := range connections {
		departures = append(departures, DepartureInfo{
			Service:       conn.Service,
			To:            conn.ArrivalStop,
			DepartureTime: conn.DepartureTime,
			ArrivalTime:   conn.ArrivalTime,
		})
	}

	return c.JSON(DeparturesResponse{
		Stop:       stop,
		After:      after,
		Departures: departures,
	})
}

// parseLimit parses a positive limit no larger than max
func parseLimit(value string, def, max int) (int, error) {
	if value == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit <= 0 || limit > max {
		return 0, fmt.Errorf("invalid limit (must be between 1 and %d)", max)
	}
	return limit, nil
}
