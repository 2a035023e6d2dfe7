// Package message defines the messages exchanged over the backend's
// WebSocket channels.
//
// Every inbound frame is a JSON object with a "type" discriminator. [Decode]
// maps each known type to its own Go type implementing [Message]; frames with
// an unrecognised type decode to [Unknown] so that consumers handle them in
// an explicit fallback arm of their type switch instead of silently ignoring
// a string. Adding a message kind means adding a type here and a case to
// [Decode].
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jpalmerr/pulsedeck/model"
)

// Kind is the value of a frame's "type" field.
type Kind string

const (
	KindInitialData       Kind = "initial_data"
	KindServiceUpdate     Kind = "service_update"
	KindStatusChange      Kind = "status_change"
	KindNewEvent          Kind = "new_event"
	KindMetricsUpdate     Kind = "metrics_update"
	KindContainerUpdate   Kind = "container_update"
	KindLogs              Kind = "logs"
	KindHealthCheckResult Kind = "health_check_result"
	KindNewAlert          Kind = "new_alert"
	KindAlertResolved     Kind = "alert_resolved"
	KindPong              Kind = "pong"
	KindError             Kind = "error"
)

// ErrMissingType is returned by [Decode] for a JSON object without a
// non-empty "type" field.
var ErrMissingType = errors.New("message has no type")

// Message is an inbound frame. The set of implementations is closed: only
// types in this package satisfy it.
type Message interface {
	Kind() Kind
	isMessage()
}

// InitialData is the snapshot a channel sends right after it is accepted.
// The services channel fills Services; a per-service channel fills Service.
type InitialData struct {
	Services []model.Service `json:"services,omitempty"`
	Service  *model.Service  `json:"service,omitempty"`
}

// ServiceUpdate carries the new state of one service.
type ServiceUpdate struct {
	Service model.Service `json:"service"`
}

// StatusChange reports a service status transition.
type StatusChange struct {
	ServiceID int    `json:"service_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Timestamp string `json:"timestamp"`
}

// NewEvent carries one event for the event stream.
type NewEvent struct {
	Event model.Event `json:"event"`
}

// MetricsUpdate carries a fresh host metrics sample.
type MetricsUpdate struct {
	Metrics model.ServerMetrics `json:"metrics"`
}

// ContainerUpdate carries the current container list.
type ContainerUpdate struct {
	Containers []model.Container `json:"containers"`
}

// Logs answers a [GetLogs] request. The backend sends either a string or a
// list of lines.
type Logs struct {
	Logs json.RawMessage `json:"logs"`
}

// Text returns the log payload as plain text.
func (l Logs) Text() string {
	var s string
	if err := json.Unmarshal(l.Logs, &s); err == nil {
		return s
	}
	var lines []string
	if err := json.Unmarshal(l.Logs, &lines); err == nil {
		return strings.Join(lines, "\n")
	}
	return string(l.Logs)
}

// HealthCheckResult carries the outcome of one health check run.
type HealthCheckResult struct {
	Result map[string]any `json:"result"`
}

// NewAlert carries a triggered alert.
type NewAlert struct {
	Alert model.Alert `json:"alert"`
}

// AlertResolved reports that an alert was resolved.
type AlertResolved struct {
	AlertID int `json:"alert_id"`
}

// Pong answers a [Ping].
type Pong struct {
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// Error is a server-side complaint about a frame the client sent.
type Error struct {
	Message string `json:"message"`
}

// Unknown is any frame whose type this package does not recognise.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (InitialData) Kind() Kind       { return KindInitialData }
func (ServiceUpdate) Kind() Kind     { return KindServiceUpdate }
func (StatusChange) Kind() Kind      { return KindStatusChange }
func (NewEvent) Kind() Kind          { return KindNewEvent }
func (MetricsUpdate) Kind() Kind     { return KindMetricsUpdate }
func (ContainerUpdate) Kind() Kind   { return KindContainerUpdate }
func (Logs) Kind() Kind              { return KindLogs }
func (HealthCheckResult) Kind() Kind { return KindHealthCheckResult }
func (NewAlert) Kind() Kind          { return KindNewAlert }
func (AlertResolved) Kind() Kind     { return KindAlertResolved }
func (Pong) Kind() Kind              { return KindPong }
func (Error) Kind() Kind             { return KindError }
func (u Unknown) Kind() Kind         { return Kind(u.Type) }

func (InitialData) isMessage()       {}
func (ServiceUpdate) isMessage()     {}
func (StatusChange) isMessage()      {}
func (NewEvent) isMessage()          {}
func (MetricsUpdate) isMessage()     {}
func (ContainerUpdate) isMessage()   {}
func (Logs) isMessage()              {}
func (HealthCheckResult) isMessage() {}
func (NewAlert) isMessage()          {}
func (AlertResolved) isMessage()     {}
func (Pong) isMessage()              {}
func (Error) isMessage()             {}
func (Unknown) isMessage()           {}

// Decode parses one frame.
//
// It fails when the frame is not a JSON object, has no type, or has a known
// type whose payload does not match that type's shape.
func Decode(data []byte) (Message, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	if envelope.Type == "" {
		return nil, ErrMissingType
	}

	switch Kind(envelope.Type) {
	case KindInitialData:
		return decodeAs[InitialData](data)
	case KindServiceUpdate:
		return decodeAs[ServiceUpdate](data)
	case KindStatusChange:
		return decodeAs[StatusChange](data)
	case KindNewEvent:
		return decodeAs[NewEvent](data)
	case KindMetricsUpdate:
		return decodeAs[MetricsUpdate](data)
	case KindContainerUpdate:
		return decodeAs[ContainerUpdate](data)
	case KindLogs:
		return decodeAs[Logs](data)
	case KindHealthCheckResult:
		return decodeAs[HealthCheckResult](data)
	case KindNewAlert:
		return decodeAs[NewAlert](data)
	case KindAlertResolved:
		return decodeAs[AlertResolved](data)
	case KindPong:
		return decodeAs[Pong](data)
	case KindError:
		return decodeAs[Error](data)
	default:
		return Unknown{Type: envelope.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

func decodeAs[T Message](data []byte) (Message, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", m.Kind(), err)
	}
	return m, nil
}
