package models

import "time"

// Measurement is a single device reading read back from the time-series store.
type Measurement struct {
	Version   int
	Value     float64
	Timestamp time.Time
}

// MeasurementMessage is the bus payload produced by devices.
type MeasurementMessage struct {
	Time    string  `json:"time"`
	Value   float64 `json:"value"`
	Version int     `json:"version"`
}
