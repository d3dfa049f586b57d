package sources

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	geojson "github.com/paulmach/go.geojson"

	"github.com/sudorandom/latlng-cloud/pkg/pointstore"
)

var (
	// ErrMalformedRecord marks an entry missing lat, lng or display_id.
	ErrMalformedRecord = errors.New("malformed record")
	ErrUnknownFormat   = errors.New("unknown dataset format")
)

// Decoded is the outcome of decoding one dataset.
type Decoded struct {
	Records  []pointstore.Record
	Rejected int
}

// Decode reads either a JSON array of records or a GeoJSON
// FeatureCollection of Point features. Malformed entries are counted and
// skipped; a document that cannot be parsed at all is an error.
func Decode(r io.Reader) (Decoded, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Decoded{}, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Decoded{}, fmt.Errorf("empty document: %w", ErrUnknownFormat)
	}
	switch data[0] {
	case '[':
		return decodeRecords(data)
	case '{':
		return decodeGeoJSON(data)
	}
	return Decoded{}, ErrUnknownFormat
}

type rawRecord struct {
	Lat       *float64         `json:"lat"`
	Lng       *float64         `json:"lng"`
	DisplayID *string          `json:"display_id"`
	SearchID  string           `json:"search_id"`
	Place     pointstore.Place `json:"place"`
}

func (r rawRecord) record() (pointstore.Record, error) {
	if r.Lat == nil || r.Lng == nil || r.DisplayID == nil {
		return pointstore.Record{}, ErrMalformedRecord
	}
	return pointstore.Record{
		Lat:       *r.Lat,
		Lng:       *r.Lng,
		DisplayID: *r.DisplayID,
		SearchID:  r.SearchID,
		Place:     r.Place,
	}, nil
}

func decodeRecords(data []byte) (Decoded, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Decoded{}, fmt.Errorf("decode records: %w", err)
	}
	out := Decoded{Records: make([]pointstore.Record, 0, len(raw))}
	for _, msg := range raw {
		var rr rawRecord
		if err := json.Unmarshal(msg, &rr); err != nil {
			out.Rejected++
			continue
		}
		rec, err := rr.record()
		if err != nil {
			out.Rejected++
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

func decodeGeoJSON(data []byte) (Decoded, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return Decoded{}, fmt.Errorf("decode geojson: %w", err)
	}
	out := Decoded{Records: make([]pointstore.Record, 0, len(fc.Features))}
	for _, f := range fc.Features {
		rec, err := featureRecord(f)
		if err != nil {
			out.Rejected++
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

func featureRecord(f *geojson.Feature) (pointstore.Record, error) {
	if f == nil || f.Geometry == nil || !f.Geometry.IsPoint() || len(f.Geometry.Point) < 2 {
		return pointstore.Record{}, ErrMalformedRecord
	}
	displayID, ok := propString(f.Properties, "display_id")
	if !ok {
		return pointstore.Record{}, ErrMalformedRecord
	}
	rec := pointstore.Record{
		Lng:       f.Geometry.Point[0],
		Lat:       f.Geometry.Point[1],
		DisplayID: displayID,
	}
	rec.SearchID, _ = propString(f.Properties, "search_id")

	props := f.Properties
	if nested, ok := f.Properties["place"].(map[string]interface{}); ok {
		props = nested
	}
	rec.Place.Ministry, _ = propString(props, "ministry")
	rec.Place.Province, _ = propString(props, "province")
	rec.Place.City, _ = propString(props, "city")
	rec.Place.Town, _ = propString(props, "town")
	return rec, nil
}

// propString reads a string property; numeric ids are formatted without
// exponent so "13101" and 13101 decode alike.
func propString(props map[string]interface{}, key string) (string, bool) {
	switch v := props[key].(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	}
	return "", false
}
