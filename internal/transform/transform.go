package transform

import (
	"encoding/json"
	"math"

	"github.com/saviobatista/globe-worker/internal/types"
)

// AltitudeScale converts a raw altitude into globe radius units
const AltitudeScale = 100000

// Options tunes the filter applied before mapping
type Options struct {
	// RequirePosition additionally drops vectors whose latitude or
	// longitude is not a number. Off by default.
	RequirePosition bool
}

// Transform filters a batch of raw state vectors and maps the survivors to
// globe points. It never fails: identifier and velocity pass through as-is,
// non-numeric coordinates become nil and a falsy altitude or category becomes
// zero. The returned slice is never nil.
func Transform(states []types.StateVector, opts Options) []types.Point {
	points := make([]types.Point, 0, len(states))
	for _, state := range states {
		if !Keep(state, opts) {
			continue
		}
		points = append(points, ToPoint(state))
	}
	return points
}

// Keep reports whether a state vector passes the filter. Only an explicit
// null in the altitude or validity field excludes a vector; absent fields
// do not.
func Keep(state types.StateVector, opts Options) bool {
	if state.IsNull(types.FieldAltitude) || state.IsNull(types.FieldValidity) {
		return false
	}
	if opts.RequirePosition {
		if number(state.Field(types.FieldLatitude)) == nil || number(state.Field(types.FieldLongitude)) == nil {
			return false
		}
	}
	return true
}

// ToPoint maps a single state vector to a point without filtering
func ToPoint(state types.StateVector) types.Point {
	return types.Point{
		ICAO24:   state.Field(types.FieldICAO24),
		Lat:      number(state.Field(types.FieldLatitude)),
		Lng:      number(state.Field(types.FieldLongitude)),
		Altitude: orZero(state.Field(types.FieldAltitude)) / AltitudeScale,
		Category: orZero(state.Field(types.FieldCategory)),
		Velocity: state.Field(types.FieldVelocity),
	}
}

// orZero returns the numeric value, or 0 for anything falsy or non-numeric
func orZero(v any) float64 {
	n := number(v)
	if n == nil || math.IsNaN(*n) {
		return 0
	}
	return *n
}

// number converts any numeric kind produced by the JSON or msgpack decoders
func number(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}
