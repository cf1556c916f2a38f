package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Jordain/weather-storyteller/internal/config"
	"github.com/Jordain/weather-storyteller/internal/httpapi"
	"github.com/Jordain/weather-storyteller/internal/logging"
	"github.com/Jordain/weather-storyteller/internal/narrative"
	"github.com/Jordain/weather-storyteller/internal/observability"
	"github.com/Jordain/weather-storyteller/internal/owm"
	"github.com/Jordain/weather-storyteller/internal/pipeline"
)

const serviceName = "weather-storyteller"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat, serviceName)
	slog.SetDefault(logger)

	if cfg.WeatherAPIKey == "" {
		slog.Warn("WEATHER_API_KEY is not set, forecast requests will be rejected")
	}
	if cfg.NarrativeAPIKey == "" {
		slog.Warn("NARRATIVE_API_KEY is not set, story generation will be rejected")
	}

	shutdownObs, promHandler, tracer := observability.SetupObservability(serviceName, cfg.OTLPEndpoint)
	defer shutdownObs()

	weatherClient := owm.New(cfg.WeatherAPIKey,
		owm.WithBaseURL(cfg.WeatherBaseURL),
		owm.WithTimeout(cfg.WeatherTimeout),
	)
	generator := newGenerator(cfg)

	story := pipeline.New(weatherClient, generator,
		pipeline.WithLogger(logger),
		pipeline.WithTracer(tracer),
		pipeline.WithRateLimit(cfg.ProviderRPS, cfg.ProviderBurst),
	)

	srv := httpapi.NewServer(story, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(observability.MetricsAndTracingMiddleware(tracer, serviceName))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Trace-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promHandler)

	srv.RegisterRoutes(r)

	// Story generation can take much longer than a forecast lookup.
	writeTimeout := cfg.WeatherTimeout + cfg.NarrativeTimeout + 15*time.Second

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("weather-storyteller started", "port", cfg.Port, "narrative_provider", generator.Name())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := httpSrv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func newGenerator(cfg config.Config) narrative.Generator {
	if cfg.NarrativeProvider == config.ProviderOpenAI {
		return narrative.NewOpenAIClient(cfg.NarrativeAPIKey, cfg.NarrativeBaseURL, cfg.NarrativeModel, cfg.NarrativeTimeout)
	}

	opts := []narrative.GeminiOption{
		narrative.WithGeminiModel(cfg.NarrativeModel),
		narrative.WithGeminiTimeout(cfg.NarrativeTimeout),
	}
	if cfg.NarrativeBaseURL != "" {
		opts = append(opts, narrative.WithGeminiBaseURL(cfg.NarrativeBaseURL))
	}
	return narrative.NewGeminiClient(cfg.NarrativeAPIKey, opts...)
}
