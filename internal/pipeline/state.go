package pipeline

import (
	"time"

	"github.com/Jordain/weather-storyteller/internal/models"
)

// Phase is the lifecycle of the single request state.
type Phase string

const (
	Idle    Phase = "idle"
	Pending Phase = "pending"
	Success Phase = "success"
	Failed  Phase = "failed"
)

// State is a snapshot of the request lifecycle. Which fields are set
// depends on Phase:
//
//	Idle     nothing
//	Pending  SubmissionID, City
//	Success  SubmissionID, City, Forecast, Narrative
//	Failed   Error, ErrorKind (SubmissionID and City unless validation failed)
//
// Forecast, Narrative and Error are never set together.
type State struct {
	Phase        Phase                  `json:"phase"`
	SubmissionID string                 `json:"submission_id,omitempty"`
	City         string                 `json:"city,omitempty"`
	Forecast     *models.ForecastResult `json:"forecast,omitempty"`
	Narrative    string                 `json:"narrative,omitempty"`
	Error        string                 `json:"error,omitempty"`
	ErrorKind    string                 `json:"error_kind,omitempty"`
	// Retryable is set on a narrative-stage failure whose forecast is retained.
	Retryable bool      `json:"retryable,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func pendingState(id, city string, now time.Time) State {
	return State{Phase: Pending, SubmissionID: id, City: city, UpdatedAt: now}
}

func successState(id, city string, forecast models.ForecastResult, text string, now time.Time) State {
	return State{
		Phase:        Success,
		SubmissionID: id,
		City:         city,
		Forecast:     &forecast,
		Narrative:    text,
		UpdatedAt:    now,
	}
}

func failedState(id, city, msg, kind string, retryable bool, now time.Time) State {
	return State{
		Phase:        Failed,
		SubmissionID: id,
		City:         city,
		Error:        msg,
		ErrorKind:    kind,
		Retryable:    retryable,
		UpdatedAt:    now,
	}
}

// clone copies s so callers never share the forecast with the pipeline.
func (s State) clone() State {
	if s.Forecast != nil {
		f := *s.Forecast
		f.Entries = append([]models.ForecastEntry(nil), s.Forecast.Entries...)
		s.Forecast = &f
	}
	return s
}
