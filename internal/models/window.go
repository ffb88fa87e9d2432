package models

import "strconv"

// Window is a relative lookback span such as 15m, 3h or 2d.
type Window struct {
	Amount int
	Unit   byte // 'm', 'h' or 'd'
}

// String returns the window in its wire form, which is also a valid Flux duration.
func (w Window) String() string {
	return strconv.Itoa(w.Amount) + string(w.Unit)
}
