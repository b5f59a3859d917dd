package domain

import "time"

// Report summarizes one persisted station batch. It is the trigger handed to
// external report renderers, which read the documents themselves.
type Report struct {
	CycleID     string    `json:"cycleId"`
	Station     string    `json:"station"`
	Rows        int       `json:"rows"`
	First       time.Time `json:"first"`
	Last        time.Time `json:"last"`
	TideHighs   int       `json:"tideHighs"`
	TideLows    int       `json:"tideLows"`
	TideModel   string    `json:"tideModel,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// NewReport summarizes rows, which must all belong to station.
func NewReport(cycleID, station string, rows []Observation, tideModel string) Report {
	r := Report{
		CycleID:     cycleID,
		Station:     station,
		Rows:        len(rows),
		TideModel:   tideModel,
		GeneratedAt: clock.Now().UTC(),
	}
	for i, o := range rows {
		if i == 0 || o.Timestamp.Before(r.First) {
			r.First = o.Timestamp
		}
		if i == 0 || o.Timestamp.After(r.Last) {
			r.Last = o.Timestamp
		}
		if o.Tide != nil {
			if o.Tide.High {
				r.TideHighs++
			}
			if o.Tide.Low {
				r.TideLows++
			}
		}
	}
	return r
}

// Status is a point-in-time view of the ingestion loop.
type Status struct {
	Stations    int       `json:"stations"`
	Store       string    `json:"store"`
	Buffered    int       `json:"buffered"`
	Cycles      int64     `json:"cycles"`
	LastCycleID string    `json:"lastCycleId,omitempty"`
	LastCycleAt time.Time `json:"lastCycleAt,omitzero"`
}
