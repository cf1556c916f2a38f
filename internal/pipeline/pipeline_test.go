package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Jordain/weather-storyteller/internal/apperr"
	"github.com/Jordain/weather-storyteller/internal/models"
	"github.com/Jordain/weather-storyteller/internal/pipeline"
)

// callLog records provider calls in order across both fakes.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeFetcher struct {
	log    *callLog
	result models.ForecastResult
	err    error
	hook   func(city string)
}

func (f *fakeFetcher) FetchForecast(_ context.Context, city string) (models.ForecastResult, error) {
	f.log.add("forecast:" + city)
	if f.hook != nil {
		f.hook(city)
	}
	return f.result, f.err
}

type fakeGenerator struct {
	log  *callLog
	text string
	err  error
}

func (g *fakeGenerator) Generate(_ context.Context, forecast models.ForecastResult) (string, error) {
	g.log.add("narrative:" + forecast.Location)
	return g.text, g.err
}

func (g *fakeGenerator) Name() string { return "fake" }

func paris() models.ForecastResult {
	return models.ForecastResult{
		Location: "Paris",
		Entries:  []models.ForecastEntry{{Description: "clear sky", TempC: 21.4, WindSpeed: 3.1, Humidity: 50}},
	}
}

func TestPipeline_InitialState(t *testing.T) {
	p := pipeline.New(&fakeFetcher{log: &callLog{}}, &fakeGenerator{log: &callLog{}})
	if got := p.State().Phase; got != pipeline.Idle {
		t.Errorf("Phase = %q, want idle", got)
	}
}

func TestPipeline_Submit_Success(t *testing.T) {
	log := &callLog{}
	p := pipeline.New(
		&fakeFetcher{log: log, result: paris()},
		&fakeGenerator{log: log, text: "Paris glows."},
	)

	st, err := p.Submit(context.Background(), " Paris ")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if st.Phase != pipeline.Success {
		t.Errorf("Phase = %q, want success", st.Phase)
	}
	if st.Forecast == nil || st.Forecast.Location != "Paris" {
		t.Errorf("Forecast = %+v", st.Forecast)
	}
	if st.Narrative != "Paris glows." {
		t.Errorf("Narrative = %q", st.Narrative)
	}
	if st.Error != "" {
		t.Errorf("Error = %q, want empty", st.Error)
	}
	if st.SubmissionID == "" || st.City != "Paris" {
		t.Errorf("SubmissionID = %q, City = %q", st.SubmissionID, st.City)
	}

	calls := log.list()
	if len(calls) != 2 || calls[0] != "forecast:Paris" || calls[1] != "narrative:Paris" {
		t.Errorf("calls = %v, want forecast then narrative", calls)
	}

	if snap := p.State(); snap.Phase != pipeline.Success || snap.SubmissionID != st.SubmissionID {
		t.Errorf("State() = %+v, want the returned state", snap)
	}
}

func TestPipeline_Submit_EmptyCity(t *testing.T) {
	for _, city := range []string{"", " ", "\t \n"} {
		log := &callLog{}
		p := pipeline.New(&fakeFetcher{log: log, result: paris()}, &fakeGenerator{log: log, text: "x"})

		st, err := p.Submit(context.Background(), city)

		var ve apperr.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("Submit(%q) error = %v, want ValidationError", city, err)
		}
		if st.Phase != pipeline.Failed || st.Error != "Please enter a city name." || st.ErrorKind != "validation" {
			t.Errorf("Submit(%q) state = %+v", city, st)
		}
		if calls := log.list(); len(calls) != 0 {
			t.Errorf("Submit(%q) made calls %v, want none", city, calls)
		}
	}
}

func TestPipeline_Submit_ForecastFailure(t *testing.T) {
	log := &callLog{}
	remote := apperr.RemoteError{Provider: apperr.ProviderWeather, Message: apperr.MsgWeatherRemote, Status: 404}
	p := pipeline.New(&fakeFetcher{log: log, err: remote}, &fakeGenerator{log: log, text: "x"})

	st, err := p.Submit(context.Background(), "Atlantis")
	if !errors.Is(err, remote) {
		t.Errorf("error = %v, want %v", err, remote)
	}

	if st.Phase != pipeline.Failed {
		t.Errorf("Phase = %q, want failed", st.Phase)
	}
	if st.Error != "City not found or API key is invalid." {
		t.Errorf("Error = %q", st.Error)
	}
	if st.Forecast != nil || st.Narrative != "" || st.Retryable {
		t.Errorf("expected cleared weather and narrative, got %+v", st)
	}
	if calls := log.list(); len(calls) != 1 || calls[0] != "forecast:Atlantis" {
		t.Errorf("calls = %v, want only the forecast call", calls)
	}

	if _, err := p.RetryNarrative(context.Background()); !errors.Is(err, pipeline.ErrNothingToRetry) {
		t.Errorf("RetryNarrative() error = %v, want ErrNothingToRetry", err)
	}
}

func TestPipeline_Submit_EmptyForecastIsMalformed(t *testing.T) {
	log := &callLog{}
	p := pipeline.New(
		&fakeFetcher{log: log, result: models.ForecastResult{Location: "Paris"}},
		&fakeGenerator{log: log, text: "x"},
	)

	st, err := p.Submit(context.Background(), "Paris")

	var me apperr.MalformedResponseError
	if !errors.As(err, &me) {
		t.Fatalf("error = %v, want MalformedResponseError", err)
	}
	if st.ErrorKind != "malformed" {
		t.Errorf("ErrorKind = %q", st.ErrorKind)
	}
	if calls := log.list(); len(calls) != 1 {
		t.Errorf("calls = %v, want only the forecast call", calls)
	}
}

func TestPipeline_Submit_NarrativeFailureThenRetry(t *testing.T) {
	log := &callLog{}
	gen := &fakeGenerator{
		log: log,
		err: apperr.RemoteError{Provider: apperr.ProviderNarrative, Message: apperr.MsgNarrativeRemote, Status: 500},
	}
	p := pipeline.New(&fakeFetcher{log: log, result: paris()}, gen)

	st, err := p.Submit(context.Background(), "Paris")
	if err == nil {
		t.Fatal("expected narrative error")
	}
	if st.Phase != pipeline.Failed || st.Error != "Failed to generate weather story." {
		t.Errorf("state = %+v", st)
	}
	if st.Narrative != "" {
		t.Errorf("Narrative = %q, want empty", st.Narrative)
	}
	if st.Forecast != nil {
		t.Error("expected weather to be hidden after a narrative failure")
	}
	if !st.Retryable {
		t.Error("expected the failure to be retryable")
	}

	gen.err = nil
	gen.text = "Second time lucky."

	st, err = p.RetryNarrative(context.Background())
	if err != nil {
		t.Fatalf("RetryNarrative() error = %v", err)
	}
	if st.Phase != pipeline.Success || st.Narrative != "Second time lucky." || st.Forecast == nil {
		t.Errorf("state after retry = %+v", st)
	}
	if st.City != "Paris" {
		t.Errorf("City = %q, want Paris", st.City)
	}

	want := []string{"forecast:Paris", "narrative:Paris", "narrative:Paris"}
	calls := log.list()
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}

	if _, err := p.RetryNarrative(context.Background()); !errors.Is(err, pipeline.ErrNothingToRetry) {
		t.Errorf("second RetryNarrative() error = %v, want ErrNothingToRetry", err)
	}
}

func TestPipeline_Submit_ClearsPreviousResultBeforeRequests(t *testing.T) {
	log := &callLog{}
	fetcher := &fakeFetcher{log: log, result: paris()}
	p := pipeline.New(fetcher, &fakeGenerator{log: log, text: "story"})

	if _, err := p.Submit(context.Background(), "Paris"); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	first := p.State()

	var during pipeline.State
	fetcher.hook = func(string) { during = p.State() }
	fetcher.err = apperr.RemoteError{Provider: apperr.ProviderWeather, Message: apperr.MsgWeatherRemote}

	if _, err := p.Submit(context.Background(), "Lyon"); err == nil {
		t.Fatal("expected second Submit() to fail")
	}

	if during.Phase != pipeline.Pending {
		t.Errorf("Phase during fetch = %q, want pending", during.Phase)
	}
	if during.Forecast != nil || during.Narrative != "" || during.Error != "" {
		t.Errorf("state during fetch not cleared: %+v", during)
	}
	if during.SubmissionID == first.SubmissionID {
		t.Error("expected a new submission id")
	}

	// A failed state is cleared the same way by the next submission.
	fetcher.err = nil
	if _, err := p.Submit(context.Background(), "Paris"); err != nil {
		t.Fatalf("third Submit() error = %v", err)
	}
	if during.Error != "" {
		t.Errorf("error visible during fetch: %q", during.Error)
	}
}

func TestPipeline_Submit_Busy(t *testing.T) {
	log := &callLog{}
	release := make(chan struct{})
	started := make(chan struct{})
	fetcher := &fakeFetcher{log: log, result: paris(), hook: func(string) {
		close(started)
		<-release
	}}
	p := pipeline.New(fetcher, &fakeGenerator{log: log, text: "story"})

	done := make(chan error, 1)
	go func() {
		_, err := p.Submit(context.Background(), "Paris")
		done <- err
	}()
	<-started

	st, err := p.Submit(context.Background(), "Lyon")
	if !errors.Is(err, pipeline.ErrBusy) {
		t.Errorf("Submit() while pending error = %v, want ErrBusy", err)
	}
	if st.Phase != pipeline.Pending || st.City != "Paris" {
		t.Errorf("state while pending = %+v", st)
	}
	if _, err := p.RetryNarrative(context.Background()); !errors.Is(err, pipeline.ErrBusy) {
		t.Errorf("RetryNarrative() while pending error = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	if got := p.State().Phase; got != pipeline.Success {
		t.Errorf("Phase = %q, want success", got)
	}
}

func TestPipeline_StateIsACopy(t *testing.T) {
	log := &callLog{}
	p := pipeline.New(&fakeFetcher{log: log, result: paris()}, &fakeGenerator{log: log, text: "story"})
	if _, err := p.Submit(context.Background(), "Paris"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	st := p.State()
	st.Forecast.Entries[0].Description = "tampered"

	if got := p.State().Forecast.Entries[0].Description; got != "clear sky" {
		t.Errorf("pipeline state changed through a snapshot: %q", got)
	}
}

func TestPipeline_WithRateLimit(t *testing.T) {
	log := &callLog{}
	p := pipeline.New(
		&fakeFetcher{log: log, result: paris()},
		&fakeGenerator{log: log, text: "story"},
		pipeline.WithRateLimit(0.001, 1),
	)

	if _, err := p.Submit(context.Background(), "Paris"); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	st, err := p.Submit(ctx, "Paris")

	var re apperr.RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("error = %v, want RemoteError", err)
	}
	if st.Error != apperr.MsgWeatherRemote {
		t.Errorf("Error = %q", st.Error)
	}
	if re.Cause == nil || !strings.Contains(re.Cause.Error(), "rate limit wait") {
		t.Errorf("Cause = %v, want the limiter wait named", re.Cause)
	}
	if calls := log.list(); len(calls) != 2 {
		t.Errorf("calls = %v, want only the first submission's calls", calls)
	}
}

// panickingGenerator panics on its first call and then behaves.
type panickingGenerator struct {
	fakeGenerator
	mu     sync.Mutex
	called bool
}

func (g *panickingGenerator) Generate(ctx context.Context, forecast models.ForecastResult) (string, error) {
	g.mu.Lock()
	first := !g.called
	g.called = true
	g.mu.Unlock()
	if first {
		panic("generator exploded")
	}
	return g.fakeGenerator.Generate(ctx, forecast)
}

func TestPipeline_Submit_StagePanicFailsSubmission(t *testing.T) {
	log := &callLog{}
	p := pipeline.New(
		&fakeFetcher{log: log, result: paris()},
		&panickingGenerator{fakeGenerator: fakeGenerator{log: log, text: "story"}},
	)

	st, err := p.Submit(context.Background(), "Paris")
	if err == nil || !strings.Contains(err.Error(), "generator exploded") {
		t.Fatalf("Submit() error = %v, want the panic reported", err)
	}
	if st.Phase != pipeline.Failed || st.Error != apperr.MsgInternal || st.ErrorKind != "internal" {
		t.Errorf("state = %+v", st)
	}
	if st.Forecast != nil || st.Retryable {
		t.Errorf("state = %+v, want no weather and no retry", st)
	}
	if got := p.State().Phase; got != pipeline.Failed {
		t.Errorf("State().Phase = %q, want failed", got)
	}

	st, err = p.Submit(context.Background(), "Paris")
	if err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}
	if st.Phase != pipeline.Success || st.Narrative != "story" {
		t.Errorf("second state = %+v", st)
	}
}

func TestPipeline_Submit_FetcherPanicFailsSubmission(t *testing.T) {
	log := &callLog{}
	fetcher := &fakeFetcher{log: log, result: paris(), hook: func(string) { panic("fetcher exploded") }}
	gen := &fakeGenerator{log: log, text: "story"}
	p := pipeline.New(fetcher, gen)

	if _, err := p.Submit(context.Background(), "Paris"); err == nil {
		t.Fatal("Submit() error = nil, want the panic reported")
	}
	if calls := log.list(); len(calls) != 1 || calls[0] != "forecast:Paris" {
		t.Errorf("calls = %v, want no narrative call", calls)
	}

	fetcher.hook = nil
	if _, err := p.Submit(context.Background(), "Paris"); err != nil {
		t.Errorf("Submit() after panic error = %v, want the pipeline usable again", err)
	}
}

func TestPipeline_RetryNarrative_PanicFailsRetry(t *testing.T) {
	log := &callLog{}
	gen := &panickingGenerator{fakeGenerator: fakeGenerator{log: log, err: errors.New("down")}}
	gen.called = true
	p := pipeline.New(&fakeFetcher{log: log, result: paris()}, gen)

	if _, err := p.Submit(context.Background(), "Paris"); err == nil {
		t.Fatal("Submit() error = nil, want narrative failure")
	}

	gen.mu.Lock()
	gen.called = false
	gen.mu.Unlock()
	st, err := p.RetryNarrative(context.Background())
	if err == nil || st.Phase != pipeline.Failed || st.ErrorKind != "internal" {
		t.Errorf("RetryNarrative() = %+v, %v", st, err)
	}
	if got := p.State().Phase; got == pipeline.Pending {
		t.Error("pipeline left pending after a panicking retry")
	}
}
