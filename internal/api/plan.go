package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/passbi/connscan/internal/models"
	"github.com/passbi/connscan/internal/routing"
	"github.com/passbi/connscan/internal/timetable"
)

// PlanRequest is the body of POST /v2/journeys/plan: a timetable and one
// query over it. Stops and services may be bare ids or objects.
type PlanRequest struct {
	Connections []models.Connection `json:"connections"`
	Stops       []models.Stop       `json:"stops,omitempty"`
	Sorted      bool                `json:"sorted,omitempty"`
	// Absent means the server's minimum transfer time; 0 allows immediate changes
	MinimumTransferTimeSeconds *int            `json:"minimum_transfer_time_seconds,omitempty"`
	Priority                   string          `json:"priority,omitempty"`
	Source                     models.Stop     `json:"source"`
	Target                     models.Stop     `json:"target"`
	Departure                  json.RawMessage `json:"departure"`
}

// Plan handles POST /v2/journeys/plan
func (h *Handler) Plan(c *fiber.Ctx) error {
	var req PlanRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": fmt.Sprintf("invalid request body: %v", err),
		})
	}

	if req.Source.ID == "" || req.Target.ID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "missing required fields: source and target",
		})
	}

	departure, err := models.ParseTimestamp(req.Departure)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": fmt.Sprintf("invalid 'departure' time: %v", err),
		})
	}

	priority := models.EarliestArrival
	if req.Priority != "" {
		if priority, err = models.ParsePriority(req.Priority); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
	}

	minTransfer := h.MinimumTransferTime
	if req.MinimumTransferTimeSeconds != nil {
		d := time.Duration(*req.MinimumTransferTimeSeconds) * time.Second
		minTransfer = &d
	}

	engine, err := routing.New(routing.Options{
		Connections:         req.Connections,
		Stops:               req.Stops,
		Priority:            priority,
		Sorted:              req.Sorted,
		MinimumTransferTime: minTransfer,
	})
	if err != nil {
		if errors.Is(err, routing.ErrUnsupportedPriority) ||
			errors.Is(err, routing.ErrInvalidTransferTime) ||
			errors.Is(err, timetable.ErrNoConnections) ||
			errors.Is(err, timetable.ErrInvalidConnection) {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		return err
	}

	start := time.Now()
	journey := engine.Run(req.Source, departure, req.Target)
	h.Metrics.ObserveScan(priority.String(), time.Since(start), len(journey) > 0)

	if len(journey) == 0 {
		return c.Status(404).JSON(fiber.Map{
			"error": "no journey found",
		})
	}

	return c.JSON(routing.Result(priority, journey))
}
