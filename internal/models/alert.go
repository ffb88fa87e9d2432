package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// AlertType is the severity band of an alert. The zero value means the
// measurement matched no band.
type AlertType string

const (
	AlertLow    AlertType = "BAJA"
	AlertMedium AlertType = "MEDIA"
	AlertHigh   AlertType = "ALTA"
)

// AlertTypes lists the supported severity bands.
var AlertTypes = []AlertType{AlertLow, AlertMedium, AlertHigh}

// ParseAlertType validates a client supplied alert type.
func ParseAlertType(s string) (AlertType, error) {
	for _, t := range AlertTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unsupported alert type %q", s)
}

// DatetimeLayout is the wire format of Alert.Datetime.
const DatetimeLayout = "2006-01-02 15:04:05"

// Alert is a classified measurement persisted in the relational store.
// Datetime and Version form the natural key.
type Alert struct {
	Datetime time.Time `json:"datetime"`
	Value    float64   `json:"value"`
	Version  int       `json:"version"`
	Type     AlertType `json:"type"`
	Sended   bool      `json:"sended"`
}

// Classified reports whether the alert matched a severity band.
func (a Alert) Classified() bool {
	return a.Type != ""
}

// MarshalJSON renders datetime in local wall-clock form and an absent type as null.
func (a Alert) MarshalJSON() ([]byte, error) {
	type Alias Alert
	var typ *string
	if a.Classified() {
		s := string(a.Type)
		typ = &s
	}
	return json.Marshal(&struct {
		Datetime string  `json:"datetime"`
		Type     *string `json:"type"`
		*Alias
	}{
		Datetime: a.Datetime.Format(DatetimeLayout),
		Type:     typ,
		Alias:    (*Alias)(&a),
	})
}

// AlertFilter selects alerts for search. Nil Type or Sended means "any".
type AlertFilter struct {
	Version int
	Type    *AlertType
	Sended  *bool
}
