// Package notify defines the fire-and-forget notification sink. Delivery
// failures are logged and dropped; they never block or roll back an engine
// state transition.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// EventType identifies what happened.
type EventType string

const (
	EventRequestSubmitted EventType = "request_submitted"
	EventLevelAdvanced    EventType = "approval_level_advanced"
	EventRequestApproved  EventType = "request_approved"
	EventRequestRejected  EventType = "request_rejected"
	EventRequestCancelled EventType = "request_cancelled"
	EventWorkLogVerified  EventType = "work_log_verified"
	EventCompOffExpired   EventType = "comp_off_expired"
)

// Event is the payload emitted to the sink.
type Event struct {
	Type       EventType
	EmployeeID string
	RequestID  string
	ActorID    string
	Level      int
	Detail     string
}

// Sink receives events. Implementations must not block the caller; the
// engine treats Emit as best-effort.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// LogSink writes events to the structured log. The default sink in dev and
// the fallback when no transport is configured.
type LogSink struct {
	Log zerolog.Logger
}

func (s *LogSink) Emit(_ context.Context, ev Event) {
	s.Log.Info().
		Str("event", string(ev.Type)).
		Str("employee", ev.EmployeeID).
		Str("request", ev.RequestID).
		Str("actor", ev.ActorID).
		Int("level", ev.Level).
		Str("detail", ev.Detail).
		Msg("notification")
}

// Discard drops everything. Useful in tests.
type Discard struct{}

func (Discard) Emit(context.Context, Event) {}
