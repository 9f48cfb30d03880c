package job

// EventType enumerates the job lifecycle notifications the service
// broadcasts to subscribers.
type EventType string

const (
	EventJobStarted       EventType = "job_started"
	EventJobProgress      EventType = "job_progress"
	EventTimeframeStarted EventType = "timeframe_started"
	EventTimeframeDone    EventType = "timeframe_done"
	EventTimeframeFailed  EventType = "timeframe_failed"
	EventJobDone          EventType = "job_done"
	EventJobFailed        EventType = "job_failed"
)

// Event is one broadcast update. Period is set only for timeframe
// events; Payload carries event-specific extras such as a summary.
type Event struct {
	JobID    string         `json:"job_id"`
	Type     EventType      `json:"type"`
	Progress int            `json:"progress"`
	Phase    string         `json:"phase,omitempty"`
	Period   string         `json:"period,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
}
