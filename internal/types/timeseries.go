package types

import "encoding/json"

// TimeSeriesPoint is a single sample stored against a subject key. Value
// is opaque structured data — whatever JSON the bus sample carried.
type TimeSeriesPoint struct {
	TimestampMs int64           `json:"timestamp_ms"`
	Value       json.RawMessage `json:"value"`
}
