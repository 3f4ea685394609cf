package validator

import "fmt"

// ErrMalformedResult means the backend broke its contract. It is never retried.
type ErrMalformedResult struct {
	error
}

func NewErrMalformedResult(jobID, reason string) *ErrMalformedResult {
	return &ErrMalformedResult{fmt.Errorf("malformed result for job %s: %s", jobID, reason)}
}
