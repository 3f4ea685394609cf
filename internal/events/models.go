package events

const (
	JobSubmittedKind    string = "qrng.job.submitted"
	JobCompletedKind    string = "qrng.job.completed"
	JobFailedKind       string = "qrng.job.failed"
	BackendRejectedKind string = "qrng.backend.rejected"
)

type JobEvent struct {
	JobID       string `json:"job_id"`
	Backend     string `json:"backend"`
	BackendKind string `json:"backend_kind"`
	BitLength   int    `json:"bit_length"`
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
	ElapsedMs   int64  `json:"elapsed_ms,omitempty"`
}

type RejectionEvent struct {
	Backend string `json:"backend"`
	Reason  string `json:"reason"`
}
