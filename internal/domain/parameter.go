package domain

import "fmt"

// Parameter identifies one measured quantity in the closed parameter set.
type Parameter int

const (
	AirTemperature Parameter = iota
	AirPressure
	Humidity
	Dewpoint
	WindSpeed
	WindDir
	Surge
	TideHeight

	parameterCount
)

var parameterNames = [parameterCount]string{
	AirTemperature: "AIR TEMPERATURE",
	AirPressure:    "AIR PRESSURE",
	Humidity:       "HUMIDITY",
	Dewpoint:       "DEWPOINT",
	WindSpeed:      "WIND SPEED",
	WindDir:        "WIND DIR",
	Surge:          "SURGE",
	TideHeight:     "TIDE HEIGHT",
}

// defaultRanges are the physical limits a sensor value must fall within.
var defaultRanges = [parameterCount]Range{
	AirTemperature: {Min: -2, Max: 50},
	AirPressure:    {Min: 900, Max: 1100},
	Humidity:       {Min: 0, Max: 100},
	Dewpoint:       {Min: -60, Max: 60},
	WindSpeed:      {Min: 0, Max: 150},
	WindDir:        {Min: 0, Max: 360},
	Surge:          {Min: 1, Max: 5},
	TideHeight:     {Min: 0, Max: 16},
}

// Parameters returns every known parameter in canonical order.
func Parameters() []Parameter {
	ps := make([]Parameter, parameterCount)
	for i := range ps {
		ps[i] = Parameter(i)
	}
	return ps
}

// String returns the name used in source file names and persisted documents.
func (p Parameter) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Parameter(%d)", int(p))
	}
	return parameterNames[p]
}

// Valid reports whether p belongs to the known parameter set.
func (p Parameter) Valid() bool {
	return p >= 0 && p < parameterCount
}

// DefaultRange returns the physical valid range for p.
func (p Parameter) DefaultRange() Range {
	if !p.Valid() {
		return Range{}
	}
	return defaultRanges[p]
}

// ParseParameter resolves a parameter by its name, e.g. "TIDE HEIGHT".
func ParseParameter(name string) (Parameter, error) {
	for i, n := range parameterNames {
		if n == name {
			return Parameter(i), nil
		}
	}
	return 0, fmt.Errorf("unknown parameter %q", name)
}

// Range is an inclusive [Min, Max] interval of acceptable values.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies within the range, bounds included.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}
