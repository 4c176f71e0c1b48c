package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"agfdash/internal/core"
	"agfdash/internal/report"
)

// ReportGeneratedMessage announces a finished dashboard build.
// It carries the flattened cells so consumers never call back into the pipeline.
type ReportGeneratedMessage struct {
	RunID       string             `json:"run_id"`
	EntityID    string             `json:"entity_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	DurationMS  int64              `json:"duration_ms"`
	Diagnostics report.Diagnostics `json:"diagnostics"`
	Rows        []core.Row         `json:"rows"`
}

// NewReportGeneratedMessage builds the event for one run.
func NewReportGeneratedMessage(runID, entityID string, p report.Payload, took time.Duration) *ReportGeneratedMessage {
	return &ReportGeneratedMessage{
		RunID:       runID,
		EntityID:    entityID,
		GeneratedAt: time.Now().UTC(),
		DurationMS:  took.Milliseconds(),
		Diagnostics: p.Diagnostics,
		Rows:        p.Rows(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReportGeneratedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReportGeneratedMessageFromJSON decodes a message and checks it names a run.
func ReportGeneratedMessageFromJSON(data []byte) (*ReportGeneratedMessage, error) {
	var msg ReportGeneratedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.RunID == "" || msg.EntityID == "" {
		return nil, errors.New("report message without run or entity id")
	}
	return &msg, nil
}
