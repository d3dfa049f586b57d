package pointstore

// Place holds the administrative names attached to a record.
type Place struct {
	Ministry string `json:"ministry"`
	Province string `json:"province"`
	City     string `json:"city"`
	Town     string `json:"town"`
}

// IsZero reports whether every field is empty.
func (p Place) IsZero() bool {
	return p == Place{}
}

// Record is one geocoded administrative unit.
type Record struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	DisplayID string  `json:"display_id"`
	SearchID  string  `json:"search_id"`
	Place     Place   `json:"place"`
}

// IsSentinel reports whether the record carries the 0,0 "no geocode" marker.
func (r Record) IsSentinel() bool {
	return r.Lat == 0 && r.Lng == 0
}

// State is the store lifecycle.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	}
	return "unknown"
}

// Colors used by search highlighting.
var (
	BaseColor      = [3]float32{1, 1, 1}
	HighlightColor = [3]float32{0, 1, 1}
)
