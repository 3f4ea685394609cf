package job

import (
	"errors"
	"fmt"
	"time"
)

type ErrSubmission struct {
	error
	Backend string
}

func NewErrSubmission(backendName string, cause error) *ErrSubmission {
	return &ErrSubmission{
		error:   fmt.Errorf("submission to backend %s failed: %w", backendName, cause),
		Backend: backendName,
	}
}

func (e *ErrSubmission) Unwrap() error {
	return errors.Unwrap(e.error)
}

type ErrBackendExecution struct {
	error
	JobID  string
	Detail string
}

func NewErrBackendExecution(jobID, backendName, detail string) *ErrBackendExecution {
	return &ErrBackendExecution{
		error:  fmt.Errorf("job %s failed on backend %s: %s", jobID, backendName, detail),
		JobID:  jobID,
		Detail: detail,
	}
}

type ErrTimeout struct {
	error
	JobID string
}

func NewErrTimeout(jobID string, maxWait time.Duration) *ErrTimeout {
	return &ErrTimeout{
		error: fmt.Errorf("job %s did not complete within %s and was cancelled", jobID, maxWait),
		JobID: jobID,
	}
}

// ErrAborted is returned when the caller's context ends before the job does.
type ErrAborted struct {
	error
	JobID string
}

func NewErrAborted(jobID string, cause error) *ErrAborted {
	return &ErrAborted{
		error: fmt.Errorf("waiting for job %s aborted: %w", jobID, cause),
		JobID: jobID,
	}
}

// Unwrap returns the context error which ended the wait.
func (e *ErrAborted) Unwrap() error {
	return errors.Unwrap(e.error)
}
