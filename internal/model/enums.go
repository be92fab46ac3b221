package model

// Stage names the step a pipeline run is currently executing. Stages are
// broadcast over the progress hub and logged; the persisted record only
// carries the terminal booleans.
type Stage string

const (
	StageAcquiring   Stage = "acquiring"
	StageTranscoding Stage = "transcoding"
	StageTagging     Stage = "tagging"
	StagePublishing  Stage = "publishing"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)
