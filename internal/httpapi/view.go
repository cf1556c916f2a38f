package httpapi

import (
	"math"
	"strconv"

	"github.com/Jordain/weather-storyteller/internal/models"
	"github.com/Jordain/weather-storyteller/internal/pipeline"
)

type weatherView struct {
	Location    string `json:"location"`
	Description string `json:"description"`
	Temperature string `json:"temperature"`
	Wind        string `json:"wind"`
	Humidity    string `json:"humidity"`
}

// pageView is what the screen shows for one pipeline state. Weather and
// Narrative are only filled in on success.
type pageView struct {
	City      string
	Pending   bool
	Error     string
	Retryable bool
	Weather   *weatherView
	Narrative string
}

func newPageView(st pipeline.State) pageView {
	v := pageView{
		City:    st.City,
		Pending: st.Phase == pipeline.Pending,
	}
	switch st.Phase {
	case pipeline.Failed:
		v.Error = st.Error
		v.Retryable = st.Retryable
	case pipeline.Success:
		if st.Forecast != nil {
			v.Weather = newWeatherView(*st.Forecast)
		}
		v.Narrative = st.Narrative
	}
	return v
}

func newWeatherView(f models.ForecastResult) *weatherView {
	cur := f.Current()
	return &weatherView{
		Location:    f.Location,
		Description: cur.Description,
		Temperature: formatTemperature(cur.TempC),
		Wind:        models.FormatReading(cur.WindSpeed) + " m/s",
		Humidity:    models.FormatReading(cur.Humidity) + "%",
	}
}

// formatTemperature rounds half up, so 21.5 -> "22°C" and -2.5 -> "-2°C".
func formatTemperature(c float64) string {
	r := math.Floor(c + 0.5)
	if r == 0 {
		r = 0 // no "-0°C"
	}
	return strconv.FormatFloat(r, 'f', 0, 64) + "°C"
}
