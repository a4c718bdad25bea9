package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriority(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Priority
		hasError bool
	}{
		{"earliest arrival", "earliest_arrival", EarliestArrival, false},
		{"least transfers", "least_transfers", LeastTransfers, false},
		{"least average transfer time", "least_average_transfer_time", LeastAverageTransferTime, false},
		{"alias with spaces and case", "  Fast ", EarliestArrival, false},
		{"wait alias", "wait", LeastAverageTransferTime, false},
		{"unknown", "scenic", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePriority(tt.input)
			if tt.hasError {
				assert.ErrorIs(t, err, ErrUnknownPriority)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, p)
		})
	}
}

func TestPriorityString(t *testing.T) {
	for _, p := range AllPriorities() {
		assert.True(t, p.Valid())
		parsed, err := ParsePriority(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}

	assert.False(t, Priority(42).Valid())
	assert.Equal(t, "priority(42)", Priority(42).String())
}

func TestConnectionUnmarshalBareIdentifiers(t *testing.T) {
	data := `{
		"departureStop": "A",
		"departureTime": 0,
		"arrivalStop": {"id": "B", "name": "Bravo"},
		"arrivalTime": "1970-01-01T00:10:00Z",
		"service": "1"
	}`

	var c Connection
	require.NoError(t, json.Unmarshal([]byte(data), &c))

	assert.Equal(t, Stop{ID: "A"}, c.DepartureStop)
	assert.Equal(t, Stop{ID: "B", Name: "Bravo"}, c.ArrivalStop)
	assert.Equal(t, Service{ID: "1"}, c.Service)
	assert.Equal(t, int64(0), c.DepartureTime.UnixMilli())
	assert.Equal(t, 10*time.Minute, c.Duration())
}

func TestConnectionUnmarshalErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing departure time", `{"departureStop":"A","arrivalStop":"B","arrivalTime":0,"service":"1"}`},
		{"bad arrival time", `{"departureStop":"A","departureTime":0,"arrivalStop":"B","arrivalTime":"tomorrow","service":"1"}`},
		{"stop of wrong type", `{"departureStop":7,"departureTime":0,"arrivalStop":"B","arrivalTime":0,"service":"1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Connection
			assert.Error(t, json.Unmarshal([]byte(tt.data), &c))
		})
	}
}

func TestConnectionJSONIsReadableBack(t *testing.T) {
	original := Connection{
		DepartureStop: Stop{ID: "BOH", Name: "Bosham"},
		DepartureTime: time.Date(2025, 3, 26, 17, 45, 0, 0, time.UTC),
		ArrivalStop:   Stop{ID: "PMS"},
		ArrivalTime:   time.Date(2025, 3, 26, 18, 15, 30, 0, time.UTC),
		Service:       Service{ID: "W1", Mode: ModeTER},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Connection
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, original.DepartureTime.Equal(decoded.DepartureTime))
	assert.True(t, original.ArrivalTime.Equal(decoded.ArrivalTime))
	assert.Equal(t, original.Service, decoded.Service)
	assert.Equal(t, original.DepartureStop, decoded.DepartureStop)
}
