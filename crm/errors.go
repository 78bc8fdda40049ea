package crm

import (
	"fmt"
)

// ValidationError reports a malformed inbound request. No upstream call is
// made when it is returned.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// AuthenticationError reports a failed login exchange. It does not
// distinguish rejected credentials from an unreachable upstream.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// UpstreamError reports a forwarded call that failed. StatusCode and Body are
// set when the upstream answered; Err is set on transport failures.
type UpstreamError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream request failed: %v", e.Err)
	}
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// PartialUploadError reports that at least one file of an attachment batch
// failed. Err is the first failure observed; Results holds every file's
// outcome in input order. Files that succeeded stay uploaded.
type PartialUploadError struct {
	Err     error
	Results []AttachmentResult
}

func (e *PartialUploadError) Error() string {
	failed := 0
	for _, r := range e.Results {
		if r.Err != nil {
			failed++
		}
	}
	return fmt.Sprintf("%d of %d attachments failed: %v", failed, len(e.Results), e.Err)
}

func (e *PartialUploadError) Unwrap() error {
	return e.Err
}
