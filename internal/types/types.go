package types

import (
	"encoding/json"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Field positions inside a raw state vector
const (
	FieldICAO24    = 0
	FieldLatitude  = 2
	FieldLongitude = 3
	FieldAltitude  = 5
	FieldValidity  = 6
	FieldVelocity  = 7
	FieldCategory  = 17
)

// StateVector represents one raw aircraft state as delivered by the
// flight-tracking API: a position-indexed list of heterogeneous values.
type StateVector []any

// Has reports whether index i exists in the vector, even if it holds null
func (v StateVector) Has(i int) bool {
	return i >= 0 && i < len(v)
}

// Field returns the value at index i, or nil when the index is absent
func (v StateVector) Field(i int) any {
	if !v.Has(i) {
		return nil
	}
	return v[i]
}

// IsNull reports whether index i is present and explicitly null
func (v StateVector) IsNull(i int) bool {
	return v.Has(i) && v[i] == nil
}

// UnmarshalJSON accepts any JSON value. Entries that are not arrays decode
// as an empty vector so one bad entry cannot fail its batch.
func (v *StateVector) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = toStateVector(raw)
	return nil
}

// DecodeMsgpack applies the same rules as UnmarshalJSON to msgpack input
func (v *StateVector) DecodeMsgpack(dec *msgpack.Decoder) error {
	raw, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	*v = toStateVector(raw)
	return nil
}

func toStateVector(raw any) StateVector {
	switch val := raw.(type) {
	case []any:
		return val
	case nil:
		return nil
	default:
		return StateVector{}
	}
}

// Point is the flat record consumed by the globe renderer. ICAO24 and
// Velocity carry the raw field values unchanged.
type Point struct {
	ICAO24   any      `json:"icao24" msgpack:"icao24"`
	Lat      *float64 `json:"lat" msgpack:"lat"`
	Lng      *float64 `json:"lng" msgpack:"lng"`
	Altitude float64  `json:"altitude" msgpack:"altitude"`
	Category float64  `json:"category" msgpack:"category"`
	Velocity any      `json:"velocity" msgpack:"velocity"`
}

// StatesMessage is the input envelope carrying a batch of raw state vectors
type StatesMessage struct {
	States []StateVector `json:"states" msgpack:"states"`
}

// PointsMessage is the output envelope returned for a batch
type PointsMessage struct {
	Points []Point `json:"points" msgpack:"points"`
}

// NumCategories is the number of emitter categories tracked per batch
const NumCategories = 21

// WorkerStats is a point-in-time snapshot of the worker counters
type WorkerStats struct {
	Time            time.Time             `json:"time"`
	Batches         uint64                `json:"batches"`
	DecodeFailures  uint64                `json:"decode_failures"`
	PublishFailures uint64                `json:"publish_failures"`
	StatesReceived  uint64                `json:"states_received"`
	PointsEmitted   uint64                `json:"points_emitted"`
	StatesDropped   uint64                `json:"states_dropped"`
	CategoryCounts  [NumCategories]uint64 `json:"category_counts"`
	LastBatchTime   time.Time             `json:"last_batch_time"`
	ProcessingTime  time.Duration         `json:"processing_time"`
	Uptime          time.Duration         `json:"uptime"`
}
