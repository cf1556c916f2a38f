package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/Jordain/weather-storyteller/internal/apperr"
	"github.com/Jordain/weather-storyteller/internal/models"
	"github.com/Jordain/weather-storyteller/internal/narrative"
	"github.com/Jordain/weather-storyteller/internal/observability"
)

const (
	stageForecast  = "forecast"
	stageNarrative = "narrative"
)

var (
	// ErrBusy is returned when a submission is already in flight.
	ErrBusy = errors.New("a weather story is already being generated")
	// ErrNothingToRetry is returned by RetryNarrative when no forecast is retained.
	ErrNothingToRetry = errors.New("no forecast is waiting for a story")
)

// Fetcher loads the forecast for a city.
type Fetcher interface {
	FetchForecast(ctx context.Context, city string) (models.ForecastResult, error)
}

// Pipeline owns the single request state and runs the forecast and
// narrative stages for each submission, strictly one after the other.
type Pipeline struct {
	fetcher   Fetcher
	generator narrative.Generator
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	mu    sync.Mutex
	state State
	// retained keeps the forecast of a submission that failed at the
	// narrative stage. It is never shown, only reused by RetryNarrative.
	retained *models.ForecastResult
}

type Option func(*Pipeline)

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithRateLimit limits calls to each provider to rps per second with the
// given burst. Calls wait for a token; nothing is retried.
func WithRateLimit(rps float64, burst int) Option {
	return func(p *Pipeline) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		p.fetcher = rateLimitedFetcher{fetcher: p.fetcher, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
		p.generator = rateLimitedGenerator{Generator: p.generator, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
	}
}

func New(fetcher Fetcher, generator narrative.Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher:   fetcher,
		generator: generator,
		logger:    slog.Default(),
		tracer:    otel.Tracer("github.com/Jordain/weather-storyteller/internal/pipeline"),
		now:       time.Now,
		state:     State{Phase: Idle},
	}
	p.state.UpdatedAt = p.now()
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns a copy of the current request state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

// Submit runs one full submission for city and returns the resulting state
// together with the error that ended it, if any. Weather, narrative and
// error from the previous submission are cleared before any request is made.
func (p *Pipeline) Submit(ctx context.Context, city string) (st State, err error) {
	city = strings.TrimSpace(city)

	p.mu.Lock()
	if p.state.Phase == Pending {
		st = p.state.clone()
		p.mu.Unlock()
		return st, ErrBusy
	}
	p.retained = nil
	if city == "" {
		err = apperr.Validation(apperr.MsgEmptyCity)
		p.state = failedState("", "", err.Error(), apperr.Kind(err), false, p.now())
		st = p.state.clone()
		p.mu.Unlock()
		return st, err
	}
	id := uuid.NewString()
	p.state = pendingState(id, city, p.now())
	p.mu.Unlock()

	log := p.logger.With("submission_id", id, "city", city)
	defer p.failOnPanic(log, id, city, &st, &err)
	ctx, span := p.tracer.Start(ctx, "pipeline.Submit", trace.WithAttributes(
		attribute.String("submission.id", id),
		attribute.String("submission.city", city),
	))
	defer span.End()

	forecast, err := p.fetch(ctx, city)
	if err != nil {
		recordError(span, err)
		logStageError(log, stageForecast, err)
		return p.finish(id, failedState(id, city, err.Error(), apperr.Kind(err), false, p.now()), nil), err
	}
	log.Debug("forecast fetched", "location", forecast.Location, "entries", len(forecast.Entries))

	return p.narrate(ctx, log, span, id, city, forecast)
}

// RetryNarrative re-runs only the narrative stage on the forecast retained
// from a submission that failed while generating its story.
func (p *Pipeline) RetryNarrative(ctx context.Context) (st State, err error) {
	p.mu.Lock()
	if p.state.Phase == Pending {
		st = p.state.clone()
		p.mu.Unlock()
		return st, ErrBusy
	}
	if p.retained == nil || p.state.Phase != Failed {
		st = p.state.clone()
		p.mu.Unlock()
		return st, ErrNothingToRetry
	}
	forecast := *p.retained
	p.retained = nil
	city := p.state.City
	id := uuid.NewString()
	p.state = pendingState(id, city, p.now())
	p.mu.Unlock()

	log := p.logger.With("submission_id", id, "city", city, "retry", true)
	defer p.failOnPanic(log, id, city, &st, &err)
	ctx, span := p.tracer.Start(ctx, "pipeline.RetryNarrative", trace.WithAttributes(
		attribute.String("submission.id", id),
		attribute.String("submission.city", city),
	))
	defer span.End()

	return p.narrate(ctx, log, span, id, city, forecast)
}

func (p *Pipeline) narrate(ctx context.Context, log *slog.Logger, span trace.Span, id, city string, forecast models.ForecastResult) (State, error) {
	text, err := p.generate(ctx, forecast)
	if err != nil {
		recordError(span, err)
		logStageError(log, stageNarrative, err)
		// The forecast is hidden with the failure but kept for RetryNarrative.
		st := failedState(id, city, err.Error(), apperr.Kind(err), true, p.now())
		return p.finish(id, st, &forecast), err
	}

	log.Info("weather story generated", "location", forecast.Location, "provider", p.generator.Name())
	return p.finish(id, successState(id, city, forecast, text, p.now()), nil), nil
}

func (p *Pipeline) finish(id string, st State, retained *models.ForecastResult) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.SubmissionID == id {
		p.state = st
		p.retained = retained
	}
	return st.clone()
}

// failOnPanic moves a submission whose stage panicked to Failed so the
// pipeline does not stay pending. Must be deferred directly.
func (p *Pipeline) failOnPanic(log *slog.Logger, id, city string, st *State, err *error) {
	r := recover()
	if r == nil {
		return
	}
	log.Error("stage panicked", "panic", r, "stack", string(debug.Stack()))
	*err = fmt.Errorf("pipeline stage panicked: %v", r)
	*st = p.finish(id, failedState(id, city, apperr.MsgInternal, apperr.Kind(*err), false, p.now()), nil)
}

func (p *Pipeline) fetch(ctx context.Context, city string) (models.ForecastResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.fetchForecast")
	defer span.End()

	start := time.Now()
	forecast, err := p.fetcher.FetchForecast(ctx, city)
	if err == nil && len(forecast.Entries) == 0 {
		err = apperr.Malformed(apperr.ProviderWeather, "empty forecast list")
	}
	observability.ObserveStage(stageForecast, apperr.Kind(err), time.Since(start))
	if err != nil {
		recordError(span, err)
		return models.ForecastResult{}, err
	}
	span.SetAttributes(attribute.Int("forecast.entries", len(forecast.Entries)))
	return forecast, nil
}

func (p *Pipeline) generate(ctx context.Context, forecast models.ForecastResult) (string, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.generateNarrative", trace.WithAttributes(
		attribute.String("narrative.provider", p.generator.Name()),
	))
	defer span.End()

	start := time.Now()
	text, err := p.generator.Generate(ctx, forecast)
	observability.ObserveStage(stageNarrative, apperr.Kind(err), time.Since(start))
	if err != nil {
		recordError(span, err)
		return "", err
	}
	return text, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, apperr.Kind(err))
}

func logStageError(log *slog.Logger, stage string, err error) {
	var re apperr.RemoteError
	if errors.As(err, &re) {
		log.Warn("stage failed", "stage", stage, "kind", apperr.Kind(err), "detail", re.LogValue())
		return
	}
	log.Warn("stage failed", "stage", stage, "kind", apperr.Kind(err), "error", err)
}
