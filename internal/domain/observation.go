package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// RawReading is a single parsed line of one parameter file.
type RawReading struct {
	Timestamp time.Time
	Parameter Parameter
	Value     float64
	Station   string
}

// Values holds at most one value per known parameter. The zero value has
// every parameter unset.
type Values struct {
	v   [parameterCount]float64
	set [parameterCount]bool
}

// Get returns the value of p and whether it is set.
func (vs Values) Get(p Parameter) (float64, bool) {
	if !p.Valid() || !vs.set[p] {
		return 0, false
	}
	return vs.v[p], true
}

// Set assigns p. NaN and infinities unset the field instead.
func (vs *Values) Set(p Parameter, v float64) {
	if !p.Valid() {
		return
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		vs.Unset(p)
		return
	}
	vs.v[p] = v
	vs.set[p] = true
}

// Unset clears p.
func (vs *Values) Unset(p Parameter) {
	if !p.Valid() {
		return
	}
	vs.v[p] = 0
	vs.set[p] = false
}

// Has reports whether p is set.
func (vs Values) Has(p Parameter) bool {
	return p.Valid() && vs.set[p]
}

// Len returns the number of set parameters.
func (vs Values) Len() int {
	n := 0
	for _, ok := range vs.set {
		if ok {
			n++
		}
	}
	return n
}

// Map returns the set values keyed by parameter name.
func (vs Values) Map() map[string]float64 {
	m := make(map[string]float64, vs.Len())
	for i, ok := range vs.set {
		if ok {
			m[parameterNames[i]] = vs.v[i]
		}
	}
	return m
}

// TideMarks flags a TIDE HEIGHT sample as a local high or low water.
type TideMarks struct {
	High bool
	Low  bool
}

// Key uniquely identifies an observation: (timestamp, station).
type Key struct {
	Station string
	At      int64 // unix nanoseconds, UTC
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%s", k.Station, time.Unix(0, k.At).UTC().Format(time.RFC3339))
}

// Observation is the merged row for one station at one timestamp. It is
// created by Merge, refined in place by the quality filter and finally
// persisted as a document.
type Observation struct {
	Timestamp time.Time
	Station   string
	Longitude float64
	Latitude  float64
	Values    Values
	Tide      *TideMarks
}

// Key returns the observation's identity.
func (o Observation) Key() Key {
	return Key{Station: o.Station, At: o.Timestamp.UTC().UnixNano()}
}

// Fixed fields of the persisted document; parameters add one field each.
const (
	fieldTimestamp = "timestamp"
	fieldStation   = "station"
	fieldLongitude = "longitude"
	fieldLatitude  = "latitude"
	fieldTideHigh  = "tideHigh"
	fieldTideLow   = "tideLow"
)

// MarshalJSON renders the observation in the persisted document shape.
func (o Observation) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, 6+o.Values.Len())
	doc[fieldTimestamp] = o.Timestamp.UTC().Format(time.RFC3339Nano)
	doc[fieldStation] = o.Station
	doc[fieldLongitude] = o.Longitude
	doc[fieldLatitude] = o.Latitude
	for name, v := range o.Values.Map() {
		doc[name] = v
	}
	if o.Tide != nil {
		doc[fieldTideHigh] = o.Tide.High
		doc[fieldTideLow] = o.Tide.Low
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads the persisted document shape. Unknown fields are an error
// so that a corrupted buffer file is noticed rather than silently thinned.
func (o *Observation) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	var out Observation
	var ts string
	var high, low *bool
	for field, raw := range doc {
		var err error
		switch field {
		case fieldTimestamp:
			err = json.Unmarshal(raw, &ts)
		case fieldStation:
			err = json.Unmarshal(raw, &out.Station)
		case fieldLongitude:
			err = json.Unmarshal(raw, &out.Longitude)
		case fieldLatitude:
			err = json.Unmarshal(raw, &out.Latitude)
		case fieldTideHigh:
			err = json.Unmarshal(raw, &high)
		case fieldTideLow:
			err = json.Unmarshal(raw, &low)
		default:
			p, perr := ParseParameter(field)
			if perr != nil {
				return fmt.Errorf("decode observation: %w", perr)
			}
			var v float64
			err = json.Unmarshal(raw, &v)
			out.Values.Set(p, v)
		}
		if err != nil {
			return fmt.Errorf("decode observation field %q: %w", field, err)
		}
	}

	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return fmt.Errorf("decode observation timestamp: %w", err)
	}
	out.Timestamp = t.UTC()
	if out.Station == "" {
		return fmt.Errorf("decode observation: missing %s", fieldStation)
	}
	if high != nil || low != nil {
		out.Tide = &TideMarks{High: high != nil && *high, Low: low != nil && *low}
	}

	*o = out
	return nil
}
