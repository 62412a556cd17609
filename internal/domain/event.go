package domain

import "time"

// EventType enumerates the closed set of SystemEvent kinds (spec.md §3).
type EventType string

const (
	EventQueryRoute             EventType = "QUERY_ROUTE"
	EventModelState             EventType = "MODEL_STATE"
	EventCGRAG                  EventType = "CGRAG"
	EventCache                  EventType = "CACHE"
	EventError                  EventType = "ERROR"
	EventPerformance             EventType = "PERFORMANCE"
	EventPipelineStageStart     EventType = "PIPELINE_STAGE_START"
	EventPipelineStageComplete  EventType = "PIPELINE_STAGE_COMPLETE"
	EventPipelineStageFailed    EventType = "PIPELINE_STAGE_FAILED"
	EventPipelineComplete       EventType = "PIPELINE_COMPLETE"
	EventPipelineFailed         EventType = "PIPELINE_FAILED"
	EventTopologyHealthUpdate   EventType = "TOPOLOGY_HEALTH_UPDATE"
	EventTopologyDataflowUpdate EventType = "TOPOLOGY_DATAFLOW_UPDATE"
	EventLog                    EventType = "LOG"
	EventCodeChatActionPending  EventType = "CODECHAT_ACTION_PENDING"
)

// Severity is the closed severity set for SystemEvent.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

var severityRank = map[Severity]int{
	SeverityInfo:    0,
	SeverityWarning: 1,
	SeverityError:   2,
}

// AtLeast reports whether s is at least as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// SystemEvent is a single point on the telemetry/event stream.
type SystemEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	Type      EventType              `json:"type"`
	Message   string                 `json:"message"`
	Severity  Severity               `json:"severity"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// maxEventMessageLen is the spec.md §3 cap on SystemEvent.Message.
const maxEventMessageLen = 1000

// TruncateMessage clamps msg to the event message length cap.
func TruncateMessage(msg string) string {
	if len(msg) <= maxEventMessageLen {
		return msg
	}
	return msg[:maxEventMessageLen]
}
