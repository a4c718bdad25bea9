package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Inputs may name a stop or a service either by a bare identifier ("BOH")
// or by an object ({"id": "BOH", "name": "Bosham"}). Both forms are
// resolved here so nothing past decoding ever sees the difference.

// UnmarshalJSON accepts a bare id string or a stop object
func (s *Stop) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*s = Stop{ID: id}
		return nil
	}

	type plain Stop
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("invalid stop: %w", err)
	}
	*s = Stop(p)
	return nil
}

// UnmarshalJSON accepts a bare id string or a service object
func (s *Service) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*s = Service{ID: id}
		return nil
	}

	type plain Service
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("invalid service: %w", err)
	}
	*s = Service(p)
	return nil
}

// UnmarshalJSON accepts times either as RFC3339 strings or as Unix milliseconds
func (c *Connection) UnmarshalJSON(data []byte) error {
	var raw struct {
		DepartureStop Stop            `json:"departureStop"`
		DepartureTime json.RawMessage `json:"departureTime"`
		ArrivalStop   Stop            `json:"arrivalStop"`
		ArrivalTime   json.RawMessage `json:"arrivalTime"`
		Service       Service         `json:"service"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	dep, err := ParseTimestamp(raw.DepartureTime)
	if err != nil {
		return fmt.Errorf("invalid departureTime: %w", err)
	}
	arr, err := ParseTimestamp(raw.ArrivalTime)
	if err != nil {
		return fmt.Errorf("invalid arrivalTime: %w", err)
	}

	*c = Connection{
		DepartureStop: raw.DepartureStop,
		DepartureTime: dep,
		ArrivalStop:   raw.ArrivalStop,
		ArrivalTime:   arr,
		Service:       raw.Service,
	}
	return nil
}

// ParseTimestamp decodes a JSON value holding either an RFC3339 string or a
// number of milliseconds since the Unix epoch. Results are in UTC.
func ParseTimestamp(data []byte) (time.Time, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return time.Time{}, err
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	}

	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339 string or epoch milliseconds: %w", err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
