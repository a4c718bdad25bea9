package routing

import (
	"testing"
	"time"

	"github.com/passbi/connscan/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLegs(t *testing.T) {
	t.Run("Empty journey", func(t *testing.T) {
		assert.Empty(t, BuildLegs(nil))
	})

	t.Run("Consolidates consecutive connections on one service", func(t *testing.T) {
		journey := []models.Connection{
			conn("A", "B", 0, 10, "1"),
			conn("B", "C", 12, 20, "1"),
			conn("C", "D", 30, 40, "2"),
		}
		legs := BuildLegs(journey)
		require.Len(t, legs, 2)

		assert.Equal(t, "A", legs[0].From.ID)
		assert.Equal(t, "C", legs[0].To.ID)
		assert.Equal(t, 2, legs[0].NumStops)
		assert.Equal(t, []models.Stop{stop("B")}, legs[0].Stops)
		assert.Equal(t, 20*60, legs[0].Duration)

		assert.Equal(t, "2", legs[1].Service.ID)
		assert.Equal(t, 1, legs[1].NumStops)
		assert.Empty(t, legs[1].Stops)
	})
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))

	s := Summarize([]models.Connection{
		conn("A", "B", 0, 10, "1"),
		conn("B", "C", 10, 20, "1"),
		conn("C", "D", 26, 30, "2"),
		conn("D", "E", 40, 50, "3"),
	})
	assert.Equal(t, minutes(0), s.DepartureTime)
	assert.Equal(t, minutes(50), s.ArrivalTime)
	assert.Equal(t, 2, s.Transfers)
	assert.Equal(t, 16*time.Minute, s.TotalWait)
	assert.Equal(t, 8*time.Minute, s.AverageWait())
	assert.Equal(t, 50*time.Minute, s.Duration())

	r := Result(models.LeastTransfers, []models.Connection{conn("A", "B", 0, 10, "1")})
	assert.Equal(t, "least_transfers", r.Priority)
	assert.Equal(t, 600, r.DurationSeconds)
	assert.Len(t, r.Legs, 1)
}
