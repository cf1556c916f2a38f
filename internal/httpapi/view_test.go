package httpapi

import (
	"testing"

	"github.com/Jordain/weather-storyteller/internal/models"
	"github.com/Jordain/weather-storyteller/internal/pipeline"
)

func TestFormatTemperature(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{21.4, "21°C"},
		{21.5, "22°C"},
		{-2.5, "-2°C"},
		{-2.6, "-3°C"},
		{-0.4, "0°C"},
		{0, "0°C"},
	}
	for _, tt := range tests {
		if got := formatTemperature(tt.in); got != tt.want {
			t.Errorf("formatTemperature(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewPageView(t *testing.T) {
	forecast := &models.ForecastResult{
		Location: "Paris",
		Entries:  []models.ForecastEntry{{Description: "clear sky", TempC: 21.4, WindSpeed: 3.1, Humidity: 50}},
	}

	t.Run("success", func(t *testing.T) {
		v := newPageView(pipeline.State{Phase: pipeline.Success, City: "Paris", Forecast: forecast, Narrative: "story"})
		if v.Weather == nil {
			t.Fatal("expected weather")
		}
		if v.Weather.Temperature != "21°C" || v.Weather.Wind != "3.1 m/s" || v.Weather.Humidity != "50%" {
			t.Errorf("weather = %+v", *v.Weather)
		}
		if v.Narrative != "story" || v.Error != "" || v.Pending {
			t.Errorf("view = %+v", v)
		}
	})

	t.Run("failed", func(t *testing.T) {
		v := newPageView(pipeline.State{Phase: pipeline.Failed, City: "Paris", Error: "boom", Retryable: true})
		if v.Weather != nil || v.Narrative != "" {
			t.Errorf("view = %+v", v)
		}
		if v.Error != "boom" || !v.Retryable {
			t.Errorf("view = %+v", v)
		}
	})

	t.Run("pending", func(t *testing.T) {
		v := newPageView(pipeline.State{Phase: pipeline.Pending, City: "Paris"})
		if !v.Pending || v.Error != "" || v.Weather != nil {
			t.Errorf("view = %+v", v)
		}
	})
}
