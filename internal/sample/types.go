// Sample records sent to the aggregator
package sample

import "time"

// Defaults used when building samples.
const (
	DefaultPhysicalLayer uint8   = 1
	DefaultReceiverID    uint64  = 1
	DefaultRSS           float32 = -50.0
)

// Sample is one transmitted measurement. RxTimestamp carries the scheduled
// time of the transmission, in milliseconds, even when the send is late.
type Sample struct {
	PhysicalLayer uint8   `json:"physical_layer"`
	TxID          uint64  `json:"tx_id"`
	RxID          uint64  `json:"rx_id"`
	RxTimestamp   int64   `json:"rx_timestamp"`
	RSS           float32 `json:"rss"`
	Valid         bool    `json:"valid"`
}

// Time returns RxTimestamp as a time.Time.
func (s Sample) Time() time.Time {
	return time.UnixMilli(s.RxTimestamp).UTC()
}

// Template holds the constant fields stamped onto every generated sample.
type Template struct {
	PhysicalLayer uint8
	ReceiverID    uint64
	RSS           float32
}

// DefaultTemplate returns the stock sample constants.
func DefaultTemplate() Template {
	return Template{
		PhysicalLayer: DefaultPhysicalLayer,
		ReceiverID:    DefaultReceiverID,
		RSS:           DefaultRSS,
	}
}

// Build creates a valid sample for transmitter txID due at dueMs.
func (t Template) Build(txID int, dueMs int64) Sample {
	return Sample{
		PhysicalLayer: t.PhysicalLayer,
		TxID:          uint64(txID),
		RxID:          t.ReceiverID,
		RxTimestamp:   dueMs,
		RSS:           t.RSS,
		Valid:         true,
	}
}
