package gtfs

import (
	"testing"

	"github.com/passbi/connscan/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestInferMode(t *testing.T) {
	tests := []struct {
		name     string
		route    models.GTFSRoute
		expected models.TransitMode
	}{
		{
			name: "Bus from route type",
			route: models.GTFSRoute{
				RouteID:   "1",
				RouteType: 3,
			},
			expected: models.ModeBus,
		},
		{
			name: "BRT from keyword",
			route: models.GTFSRoute{
				RouteID:   "2",
				ShortName: "BRT Line 1",
				RouteType: 3,
			},
			expected: models.ModeBRT,
		},
		{
			name: "Train from route type",
			route: models.GTFSRoute{
				RouteID:   "3",
				RouteType: 2,
			},
			expected: models.ModeTER,
		},
		{
			name: "Ferry from route type",
			route: models.GTFSRoute{
				RouteID:   "4",
				RouteType: 4,
			},
			expected: models.ModeFerry,
		},
		{
			name: "Tram from keyword beats route type",
			route: models.GTFSRoute{
				RouteID:   "6",
				LongName:  "Tramway T1",
				RouteType: 3,
			},
			expected: models.ModeTram,
		},
		{
			name: "Default to bus",
			route: models.GTFSRoute{
				RouteID:   "5",
				RouteType: 999,
			},
			expected: models.ModeBus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := InferMode(tt.route)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestHaversineDistance(t *testing.T) {
	tests := []struct {
		name     string
		lat1     float64
		lon1     float64
		lat2     float64
		lon2     float64
		expected float64
		delta    float64
	}{
		{
			name:     "Zero distance",
			lat1:     14.7167,
			lon1:     -17.4677,
			lat2:     14.7167,
			lon2:     -17.4677,
			expected: 0,
			delta:    1,
		},
		{
			name:     "Approximately 1km",
			lat1:     14.7167,
			lon1:     -17.4677,
			lat2:     14.7257,
			lon2:     -17.4677,
			expected: 1000,
			delta:    100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := haversineDistance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.expected, result, tt.delta)
		})
	}
}

func TestParseTimeToSeconds(t *testing.T) {
	tests := []struct {
		name     string
		timeStr  string
		expected int
		hasError bool
	}{
		{
			name:     "Valid time",
			timeStr:  "12:30:00",
			expected: 12*3600 + 30*60,
			hasError: false,
		},
		{
			name:     "Midnight",
			timeStr:  "00:00:00",
			expected: 0,
			hasError: false,
		},
		{
			name:     "Next day service",
			timeStr:  "25:30:00",
			expected: 25*3600 + 30*60,
			hasError: false,
		},
		{
			name:     "Invalid format",
			timeStr:  "12:30",
			expected: 0,
			hasError: true,
		},
		{
			name:     "Empty string",
			timeStr:  "",
			expected: 0,
			hasError: true,
		},
		{
			name:     "Not a number",
			timeStr:  "ab:30:00",
			hasError: true,
		},
		{
			name:     "Minutes out of range",
			timeStr:  "12:75:00",
			hasError: true,
		},
		{
			name:     "Single digit hour",
			timeStr:  "7:05:09",
			expected: 7*3600 + 5*60 + 9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseTimeToSeconds(tt.timeStr)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestValidateAndCleanStops(t *testing.T) {
	tests := []struct {
		name     string
		stops    []models.GTFSStop
		expected int
	}{
		{
			name: "All valid stops",
			stops: []models.GTFSStop{
				{StopID: "1", Lat: 14.7, Lon: -17.4},
				{StopID: "2", Lat: 14.8, Lon: -17.5},
			},
			expected: 2,
		},
		{
			name: "Filter invalid latitude",
			stops: []models.GTFSStop{
				{StopID: "1", Lat: 14.7, Lon: -17.4},
				{StopID: "2", Lat: 95.0, Lon: -17.5},
			},
			expected: 1,
		},
		{
			name: "Filter null island",
			stops: []models.GTFSStop{
				{StopID: "1", Lat: 14.7, Lon: -17.4},
				{StopID: "2", Lat: 0.0, Lon: 0.0},
			},
			expected: 1,
		},
		{
			name: "Filter invalid longitude",
			stops: []models.GTFSStop{
				{StopID: "1", Lat: 14.7, Lon: -17.4},
				{StopID: "2", Lat: 14.8, Lon: 200.0},
			},
			expected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndCleanStops(tt.stops)
			assert.Equal(t, tt.expected, len(result))
		})
	}
}

func TestRouteName(t *testing.T) {
	assert.Equal(t, "12", RouteName(models.GTFSRoute{RouteID: "r", ShortName: "12", LongName: "Long"}))
	assert.Equal(t, "Long", RouteName(models.GTFSRoute{RouteID: "r", LongName: "Long"}))
	assert.Equal(t, "r", RouteName(models.GTFSRoute{RouteID: "r"}))
}

func TestMergeNearbyStops(t *testing.T) {
	stops := []models.GTFSStop{
		{StopID: "A", Lat: 14.7167, Lon: -17.4677},
		{StopID: "A2", Lat: 14.7168, Lon: -17.4677}, // ~11m from A
		{StopID: "B", Lat: 14.7500, Lon: -17.4677},
	}

	t.Run("Disabled with zero threshold", func(t *testing.T) {
		kept, mapping := MergeNearbyStops(stops, 0)
		assert.Len(t, kept, 3)
		assert.Equal(t, "A2", mapping["A2"])
	})

	t.Run("Merges into the first stop", func(t *testing.T) {
		kept, mapping := MergeNearbyStops(stops, 50)
		assert.Len(t, kept, 2)
		assert.Equal(t, "A", mapping["A2"])
		assert.Equal(t, "B", mapping["B"])

		stopTimes := []models.GTFSStopTime{{TripID: "t", StopID: "A2"}, {TripID: "t", StopID: "X"}}
		RemapStopTimes(stopTimes, mapping)
		assert.Equal(t, "A", stopTimes[0].StopID)
		assert.Equal(t, "X", stopTimes[1].StopID)
	})
}

func TestInterpolateStopTimes(t *testing.T) {
	stopTimes := []models.GTFSStopTime{
		{TripID: "t1", StopID: "C", StopSequence: 3, ArrivalTime: "08:20:00", DepartureTime: "08:21:00"},
		{TripID: "t1", StopID: "A", StopSequence: 1, ArrivalTime: "08:00:00", DepartureTime: "08:01:00"},
		{TripID: "t1", StopID: "B", StopSequence: 2},
		{TripID: "t1", StopID: "D", StopSequence: 4, ArrivalTime: "08:30:00"},
		{TripID: "t2", StopID: "A", StopSequence: 1},
	}

	result := InterpolateStopTimes(stopTimes)
	assert.Len(t, result, 5)

	// t1 comes back ordered by sequence
	assert.Equal(t, []string{"A", "B", "C", "D"}, []string{result[0].StopID, result[1].StopID, result[2].StopID, result[3].StopID})
	assert.Equal(t, "08:01:00", result[1].ArrivalTime)
	assert.Equal(t, "08:01:00", result[1].DepartureTime)
	assert.Equal(t, "08:30:00", result[3].DepartureTime)

	// t2 has no times at all and is left untouched
	assert.Equal(t, "", result[4].ArrivalTime)
}
