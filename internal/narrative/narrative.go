package narrative

import (
	"context"
	"fmt"
	"strings"

	"github.com/Jordain/weather-storyteller/internal/apperr"
	"github.com/Jordain/weather-storyteller/internal/models"
)

// MsgRemote is shown to the user when a generation request is rejected.
const MsgRemote = apperr.MsgNarrativeRemote

// Generator turns a forecast into prose.
type Generator interface {
	Generate(ctx context.Context, forecast models.ForecastResult) (string, error)
	Name() string
}

// BuildPrompt describes the current conditions and the outlook of forecast.
// The outlook lists every 3-hour entry, so it is labelled "5-day" but can
// name the same day several times.
func BuildPrompt(forecast models.ForecastResult) string {
	cur := forecast.Current()

	var b strings.Builder
	fmt.Fprintf(&b, "Create a short, creative, and evocative weather story for %s.\n", forecast.Location)
	fmt.Fprintf(&b, "Current weather: %s, temperature: %s°C,\n", cur.Description, models.FormatReading(cur.TempC))
	fmt.Fprintf(&b, "wind: %s m/s, humidity: %s%%.\n", models.FormatReading(cur.WindSpeed), models.FormatReading(cur.Humidity))
	fmt.Fprintf(&b, "The 5-day forecast includes: %s.\n", strings.Join(forecast.Descriptions(), ", "))
	b.WriteString("Interpret these conditions in an imaginative way, going beyond a simple factual report.")
	return b.String()
}

func checkForecast(forecast models.ForecastResult) error {
	if len(forecast.Entries) == 0 {
		return fmt.Errorf("narrative: forecast for %q has no entries", forecast.Location)
	}
	return nil
}
