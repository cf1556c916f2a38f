package models

import (
	"strconv"
	"time"
)

type ForecastQuery struct {
	City       string
	Credential string
}

type ForecastEntry struct {
	Time        time.Time `json:"time"`
	Description string    `json:"description"`
	TempC       float64   `json:"temp_c"`
	WindSpeed   float64   `json:"wind_speed"`
	Humidity    float64   `json:"humidity"`
}

// ForecastResult is a multi-period forecast. Entries is never empty for a
// result returned without error.
type ForecastResult struct {
	Location string          `json:"location"`
	Entries  []ForecastEntry `json:"entries"`
}

// Current returns the first (earliest) entry.
func (f ForecastResult) Current() ForecastEntry {
	if len(f.Entries) == 0 {
		return ForecastEntry{}
	}
	return f.Entries[0]
}

// Descriptions lists every entry's condition in forecast order.
func (f ForecastResult) Descriptions() []string {
	out := make([]string, len(f.Entries))
	for i, e := range f.Entries {
		out[i] = e.Description
	}
	return out
}

// FormatReading prints a reading with the shortest exact decimal form,
// e.g. 3.1 -> "3.1", 50 -> "50".
func FormatReading(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
