package alerting

import (
	"math"

	"alert-service/internal/models"
)

// band is one severity interval. Bounds are open unless the matching flag is set.
type band struct {
	typ          models.AlertType
	lower, upper float64
	closedLower  bool
	closedUpper  bool
}

func (b band) contains(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	if v < b.lower || (v == b.lower && !b.closedLower) {
		return false
	}
	if v > b.upper || (v == b.upper && !b.closedUpper) {
		return false
	}
	return true
}

// Version 1 devices grow with severity; version 2 devices are inverted.
var bandsByVersion = map[int][]band{
	1: {
		{typ: models.AlertLow, lower: 200, upper: 500, closedUpper: true},
		{typ: models.AlertMedium, lower: 500, upper: 800, closedUpper: true},
		{typ: models.AlertHigh, lower: 800, upper: 1000},
	},
	2: {
		{typ: models.AlertHigh, lower: 0, upper: 200, closedLower: true},
		{typ: models.AlertMedium, lower: 200, upper: 500, closedLower: true},
		{typ: models.AlertLow, lower: 500, upper: 800, closedLower: true},
	},
}

// SupportedVersion reports whether the device version has a threshold table.
func SupportedVersion(version int) bool {
	_, ok := bandsByVersion[version]
	return ok
}

// Classify maps a reading to its severity band, or "" when none applies.
func Classify(version int, value float64) models.AlertType {
	for _, b := range bandsByVersion[version] {
		if b.contains(value) {
			return b.typ
		}
	}
	return ""
}
