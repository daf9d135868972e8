package queue

const (
	TypeVideoGenerate  = "video:generate"
	TypeWorkspaceSweep = "workspace:sweep"
)

// VideoGeneratePayload points at uploads already staged in the job's workspace.
type VideoGeneratePayload struct {
	JobID     string `json:"job_id"`
	Text      string `json:"text"`
	ImagePath string `json:"image_path"`
	AudioPath string `json:"audio_path"`
}
