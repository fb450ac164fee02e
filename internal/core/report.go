package core

import (
	"encoding/json"
	"sync"
)

// LogLevel of a tracking log entry.
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelError LogLevel = "error"
)

// LogEntry records one outbound request and its outcome.
type LogEntry struct {
	Level       LogLevel `json:"level"`
	Message     string   `json:"message,omitempty"`
	Request     string   `json:"request,omitempty"`
	Response    string   `json:"response,omitempty"`
	RecordIndex int      `json:"recordIndex"`
	RequestID   string   `json:"requestId,omitempty"`
}

// TrackingReport is the aggregate result of one write call.
type TrackingReport struct {
	mu           sync.Mutex
	SuccessCount int         `json:"success"`
	FailureCount int         `json:"failed"`
	Logs         []*LogEntry `json:"logs,omitempty"`
}

// NewTrackingReport creates an empty report.
func NewTrackingReport() *TrackingReport {
	return &TrackingReport{}
}

// Succeed counts n successes and appends the log, if any.
func (t *TrackingReport) Succeed(n int, log *LogEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.SuccessCount += n
	if log != nil {
		t.Logs = append(t.Logs, log)
	}
}

// Fail counts n failures and appends the log, if any.
func (t *TrackingReport) Fail(n int, log *LogEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.FailureCount += n
	if log != nil {
		t.Logs = append(t.Logs, log)
	}
}

// LastLog returns the most recent log entry.
func (t *TrackingReport) LastLog() *LogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.Logs) == 0 {
		return nil
	}
	return t.Logs[len(t.Logs)-1]
}

// MessageType distinguishes tracking acknowledgments from control messages.
type MessageType string

const (
	MessageTracking MessageType = "tracking"
	MessageControl  MessageType = "control"
)

// ControlMessage reports a structural failure of the destination.
type ControlMessage struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Message is what a destination returns from a write.
type Message struct {
	Type     MessageType     `json:"type"`
	Tracking *TrackingReport `json:"tracking,omitempty"`
	Control  *ControlMessage `json:"control,omitempty"`
}

// TrackingMessage wraps a report.
func TrackingMessage(report *TrackingReport) *Message {
	return &Message{Type: MessageTracking, Tracking: report}
}

// ControlFailure builds a failed control message.
func ControlFailure(reason string) *Message {
	return &Message{Type: MessageControl, Control: &ControlMessage{Status: "failed", Reason: reason}}
}

// Acknowledgment returns the tracking report, or a *FatalError when the
// message is not a valid tracking acknowledgment.
func (m *Message) Acknowledgment() (*TrackingReport, error) {
	if m == nil {
		return nil, &FatalError{Reason: "destination returned no message"}
	}
	if m.Type != MessageTracking || m.Tracking == nil {
		reason := "destination returned a non-tracking message"
		if m.Control != nil && m.Control.Reason != "" {
			reason = m.Control.Reason
		}
		return nil, &FatalError{Reason: reason, Control: m.Control}
	}
	return m.Tracking, nil
}

// Marshal renders any value as compact JSON for log entries.
func Marshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
