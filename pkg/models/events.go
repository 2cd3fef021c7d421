package models

import (
	"encoding/json"
	"fmt"
)

// Stage is a step of an analysis session.
type Stage string

const (
	StageReceived     Stage = "received"
	StageGenerating   Stage = "generating"
	StageExecuting    Stage = "executing"
	StageSynthesizing Stage = "synthesizing"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

// StreamEvent is one frame of an analysis stream. The set of implementations is
// closed: StatusEvent, CompleteEvent and FailedEvent.
type StreamEvent interface {
	// Terminal reports whether the event ends the session.
	Terminal() bool
	streamEvent()
}

// StatusEvent reports progress into a new stage.
type StatusEvent struct {
	Stage   Stage
	Message string
}

// CompleteEvent ends a successful session.
type CompleteEvent struct {
	Payload AnalysisPayload
}

// FailedEvent ends a failed session with a stable error code.
type FailedEvent struct {
	Code    string
	Message string
}

func (StatusEvent) Terminal() bool   { return false }
func (CompleteEvent) Terminal() bool { return true }
func (FailedEvent) Terminal() bool   { return true }

func (StatusEvent) streamEvent()   {}
func (CompleteEvent) streamEvent() {}
func (FailedEvent) streamEvent()   {}

// MarshalJSON encodes the event as {"type":"status","stage":...,"message":...}.
func (e StatusEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string `json:"type"`
		Stage   Stage  `json:"stage"`
		Message string `json:"message"`
	}{"status", e.Stage, e.Message})
}

// MarshalJSON encodes the event as {"type":"complete","data":{...}}.
func (e CompleteEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string          `json:"type"`
		Data AnalysisPayload `json:"data"`
	}{"complete", e.Payload})
}

// MarshalJSON encodes the event as {"type":"error","code":...,"error":...}.
func (e FailedEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Code  string `json:"code"`
		Error string `json:"error"`
	}{"error", e.Code, e.Message})
}

// ParseStreamEvent decodes one frame produced by the MarshalJSON methods above.
func ParseStreamEvent(data []byte) (StreamEvent, error) {
	var frame struct {
		Type    string          `json:"type"`
		Stage   Stage           `json:"stage"`
		Message string          `json:"message"`
		Data    AnalysisPayload `json:"data"`
		Code    string          `json:"code"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode stream event: %w", err)
	}
	switch frame.Type {
	case "status":
		return StatusEvent{Stage: frame.Stage, Message: frame.Message}, nil
	case "complete":
		return CompleteEvent{Payload: frame.Data}, nil
	case "error":
		return FailedEvent{Code: frame.Code, Message: frame.Error}, nil
	default:
		return nil, fmt.Errorf("unknown stream event type %q", frame.Type)
	}
}
