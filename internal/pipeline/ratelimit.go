package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/Jordain/weather-storyteller/internal/apperr"
	"github.com/Jordain/weather-storyteller/internal/models"
	"github.com/Jordain/weather-storyteller/internal/narrative"
)

// rateLimitedFetcher holds forecast calls to the provider's quota.
type rateLimitedFetcher struct {
	fetcher Fetcher
	limiter *rate.Limiter
}

func (r rateLimitedFetcher) FetchForecast(ctx context.Context, city string) (models.ForecastResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return models.ForecastResult{}, apperr.RemoteError{Provider: apperr.ProviderWeather, Message: apperr.MsgWeatherRemote, Cause: fmt.Errorf("rate limit wait: %w", err)}
	}
	return r.fetcher.FetchForecast(ctx, city)
}

// rateLimitedGenerator holds generation calls to the provider's quota.
type rateLimitedGenerator struct {
	narrative.Generator
	limiter *rate.Limiter
}

func (r rateLimitedGenerator) Generate(ctx context.Context, forecast models.ForecastResult) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", apperr.RemoteError{Provider: apperr.ProviderNarrative, Message: apperr.MsgNarrativeRemote, Cause: fmt.Errorf("rate limit wait: %w", err)}
	}
	return r.Generator.Generate(ctx, forecast)
}
