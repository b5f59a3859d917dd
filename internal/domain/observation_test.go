package domain

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservation_DocumentShape(t *testing.T) {
	var o Observation
	o.Timestamp = t0
	o.Station = "SM 1"
	o.Longitude = 9.4601
	o.Latitude = 3.8048
	o.Values.Set(AirTemperature, 22.75)
	o.Values.Set(TideHeight, 3.1)
	o.Tide = &TideMarks{High: true}

	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"timestamp": "2025-03-14T10:00:00Z",
		"station": "SM 1",
		"longitude": 9.4601,
		"latitude": 3.8048,
		"AIR TEMPERATURE": 22.75,
		"TIDE HEIGHT": 3.1,
		"tideHigh": true,
		"tideLow": false
	}`, string(data))

	var back Observation
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, o.Key(), back.Key())
	assert.Equal(t, o.Values.Map(), back.Values.Map())
	require.NotNil(t, back.Tide)
	assert.True(t, back.Tide.High)
}

func TestObservation_OmitsTideFlagsWithoutTide(t *testing.T) {
	o := Observation{Timestamp: t0, Station: "SM 1"}
	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "tideHigh")

	var back Observation
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Nil(t, back.Tide)
}

func TestObservation_UnmarshalRejectsUnknownField(t *testing.T) {
	var o Observation
	err := json.Unmarshal([]byte(`{"timestamp":"2025-03-14T10:00:00Z","station":"SM 1","RAINFALL":3}`), &o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RAINFALL")
}

func TestObservation_UnmarshalRequiresStation(t *testing.T) {
	var o Observation
	err := json.Unmarshal([]byte(`{"timestamp":"2025-03-14T10:00:00Z"}`), &o)
	require.Error(t, err)
}

func TestValues_RejectsNaN(t *testing.T) {
	var vs Values
	vs.Set(Humidity, 50)
	vs.Set(Humidity, math.NaN())
	assert.False(t, vs.Has(Humidity))
	assert.Zero(t, vs.Len())
}

func TestValues_ReadableFromReturnedRow(t *testing.T) {
	row := func() Observation {
		var o Observation
		o.Station = "SM 1"
		o.Values.Set(TideHeight, 3.25)
		return o
	}

	v, ok := row().Values.Get(TideHeight)
	require.True(t, ok)
	assert.InDelta(t, 3.25, v, 1e-9)
	assert.True(t, row().Values.Has(TideHeight))
	assert.False(t, row().Values.Has(Surge))
	assert.Equal(t, 1, row().Values.Len())
	assert.Equal(t, map[string]float64{TideHeight.String(): 3.25}, row().Values.Map())
}

func TestParameter_Names(t *testing.T) {
	for _, p := range Parameters() {
		back, err := ParseParameter(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, back)
	}
	_, err := ParseParameter("RAINFALL")
	require.Error(t, err)
}

func TestNewStationConfig(t *testing.T) {
	t.Run("range override", func(t *testing.T) {
		s, err := NewStationConfig("SM 9", 9, 4, []Parameter{Surge}, map[Parameter]Range{Surge: {Min: 0, Max: 8}})
		require.NoError(t, err)
		assert.Equal(t, Range{Min: 0, Max: 8}, s.Range(Surge))
	})

	tests := []struct {
		name   string
		id     string
		params []Parameter
		ranges map[Parameter]Range
	}{
		{"missing id", "", []Parameter{Surge}, nil},
		{"no parameters", "SM 9", nil, nil},
		{"duplicate parameter", "SM 9", []Parameter{Surge, Surge}, nil},
		{"inverted range", "SM 9", []Parameter{Surge}, map[Parameter]Range{Surge: {Min: 5, Max: 1}}},
		{"range for unlisted parameter", "SM 9", []Parameter{Surge}, map[Parameter]Range{Humidity: {Min: 0, Max: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStationConfig(tt.id, 9, 4, tt.params, tt.ranges)
			require.Error(t, err)
		})
	}
}

func TestDefaultStations(t *testing.T) {
	stations := DefaultStations()
	require.Len(t, stations, 4)
	assert.Equal(t, "SM 1", stations[0].ID)
	assert.Len(t, stations[0].Parameters, len(Parameters()))
	assert.Equal(t, Range{Min: 0, Max: 16}, stations[3].Range(TideHeight))
}

func TestKindOf(t *testing.T) {
	base := errors.New("dial tcp: connection refused")
	err := E(KindStoreUnavailable, "upsert", base)

	assert.Equal(t, KindStoreUnavailable, KindOf(err))
	assert.True(t, IsStoreUnavailable(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, KindUnknown, KindOf(base))
	assert.NoError(t, E(KindParse, "noop", nil))
}
