package model

// WebSocket message types
const (
	WSMessageTypeStage     = "stage"
	WSMessageTypeCompleted = "completed"
	WSMessageTypeFailed    = "failed"
)

// WSStageMessage announces that a pipeline run entered a stage.
type WSStageMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
	Stage Stage  `json:"stage"`
}

// WSCompletedMessage carries the final job record on success.
type WSCompletedMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
	Job   *Job   `json:"job"`
}

// WSFailedMessage carries the failure reason shown to subscribers.
type WSFailedMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
	Error string `json:"error"`
}
