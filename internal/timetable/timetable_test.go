package timetable

import (
	"testing"
	"time"

	"github.com/passbi/connscan/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conn(from, to string, depMin, arrMin int, service string) models.Connection {
	return models.Connection{
		DepartureStop: models.Stop{ID: from},
		DepartureTime: time.UnixMilli(int64(depMin) * 60000).UTC(),
		ArrivalStop:   models.Stop{ID: to},
		ArrivalTime:   time.UnixMilli(int64(arrMin) * 60000).UTC(),
		Service:       models.Service{ID: service},
	}
}

func sample() []models.Connection {
	return []models.Connection{
		conn("A", "B", 0, 10, "1"),
		conn("A", "C", 0, 20, "2"),
		conn("A", "D", 0, 50, "3"),
		conn("B", "C", 20, 30, "1"),
		conn("C", "D", 30, 40, "2"),
		conn("C", "D", 40, 50, "1"),
	}
}

func TestNew(t *testing.T) {
	t.Run("Derives stops and services", func(t *testing.T) {
		tt, err := New(sample(), nil)
		require.NoError(t, err)

		assert.Equal(t, 6, tt.NumConnections())
		assert.Equal(t, 4, tt.NumStops())
		assert.Equal(t, 3, tt.NumServices())

		ids := make(map[string]bool)
		for _, s := range tt.Stops() {
			ids[s.ID] = true
		}
		assert.Len(t, ids, tt.NumStops())
	})

	t.Run("Keeps supplied stops and their names", func(t *testing.T) {
		stops := []models.Stop{{ID: "Z", Name: "Zulu"}, {ID: "A", Name: "Alpha"}}
		tt, err := New(sample(), stops)
		require.NoError(t, err)

		assert.Equal(t, 5, tt.NumStops())
		idx, ok := tt.StopIndex("A")
		require.True(t, ok)
		assert.Equal(t, "Alpha", tt.Stop(idx).Name)
		assert.Empty(t, tt.Departures(0)) // Z has no departures
	})

	t.Run("Fills a missing stop name from a connection", func(t *testing.T) {
		cs := sample()
		cs[0].ArrivalStop.Name = "Bravo"
		tt, err := New(cs, nil)
		require.NoError(t, err)

		idx, _ := tt.StopIndex("B")
		assert.Equal(t, "Bravo", tt.Stop(idx).Name)
	})

	t.Run("Rejects empty input", func(t *testing.T) {
		_, err := New(nil, nil)
		assert.ErrorIs(t, err, ErrNoConnections)
	})

	t.Run("Rejects arrival before departure", func(t *testing.T) {
		_, err := New([]models.Connection{conn("A", "B", 10, 5, "1")}, nil)
		assert.ErrorIs(t, err, ErrInvalidConnection)
	})

	t.Run("Rejects empty service id", func(t *testing.T) {
		_, err := New([]models.Connection{conn("A", "B", 0, 5, "")}, nil)
		assert.ErrorIs(t, err, ErrInvalidConnection)
	})
}

func TestStartIndex(t *testing.T) {
	tt, err := New(sample(), nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		atMin    int
		expected int
	}{
		{"Before everything", -5, 0},
		{"Exactly first departure", 0, 0},
		{"Between departures", 1, 3},
		{"Exact match picks leftmost", 30, 4},
		{"After everything", 41, 6},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tt.StartIndex(int64(tc.atMin)*60000))
		})
	}
}

func TestDepartures(t *testing.T) {
	tt, err := New(sample(), nil)
	require.NoError(t, err)

	a, _ := tt.StopIndex("A")
	c, _ := tt.StopIndex("C")
	d, _ := tt.StopIndex("D")

	assert.Equal(t, []int32{0, 1, 2}, tt.Departures(a))
	assert.Equal(t, []int32{4, 5}, tt.Departures(c))
	assert.Empty(t, tt.Departures(d))

	// same slice on every call: the index is built once
	assert.Equal(t, &tt.Departures(a)[0], &tt.Departures(a)[0])

	for _, idx := range tt.Departures(c) {
		assert.Equal(t, c, tt.Conn(idx).From)
		assert.Equal(t, "C", tt.Connection(idx).DepartureStop.ID)
	}
}

func TestDeparturesAfter(t *testing.T) {
	tt, err := New(sample(), nil)
	require.NoError(t, err)
	c, _ := tt.StopIndex("C")

	all := tt.DeparturesAfter(c, 0, 0)
	assert.Len(t, all, 2)

	later := tt.DeparturesAfter(c, 35*60000, 0)
	require.Len(t, later, 1)
	assert.Equal(t, "1", later[0].Service.ID)

	limited := tt.DeparturesAfter(c, 0, 1)
	require.Len(t, limited, 1)
	assert.Equal(t, "2", limited[0].Service.ID)
}
