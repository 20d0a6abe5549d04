// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pipeline

import "fmt"

// ValidationReject wraps a validator.RejectError with the job it
// belongs to; the pipeline stops here and the job is reported failed.
type ValidationReject struct {
	JobID string
	Err   error
}

func (e *ValidationReject) Error() string {
	return fmt.Sprintf("job %s: validation rejected: %v", e.JobID, e.Err)
}

func (e *ValidationReject) Unwrap() error { return e.Err }

// ExtractionError wraps a failure from the extractor stage.
type ExtractionError struct {
	JobID string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("job %s: extraction failed: %v", e.JobID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// DetectionWarning marks a detection-stage failure that does not abort
// the job (an empty entity set is still a valid, if disappointing,
// outcome — the document proceeds through redaction with no matches).
type DetectionWarning struct {
	JobID string
	Err   error
}

func (e *DetectionWarning) Error() string {
	return fmt.Sprintf("job %s: detection warning: %v", e.JobID, e.Err)
}

func (e *DetectionWarning) Unwrap() error { return e.Err }

// RedactionPartial marks that one or more entities could not be redacted
// (no bbox and no text-search fallback match), without failing the job.
type RedactionPartial struct {
	JobID       string
	SkippedText []string
	Err         error
}

func (e *RedactionPartial) Error() string {
	return fmt.Sprintf("job %s: %d entities could not be redacted: %v", e.JobID, len(e.SkippedText), e.Err)
}

func (e *RedactionPartial) Unwrap() error { return e.Err }

// SigningError wraps a failure from the signer stage.
type SigningError struct {
	JobID string
	Err   error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("job %s: signing failed: %v", e.JobID, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// StageTimeoutError marks that the job's context deadline expired while
// running stage; the job is failed and any artifacts already written for
// it under the processing directory are considered discarded (a later
// run, if retried, starts the whole pipeline over rather than resuming).
type StageTimeoutError struct {
	JobID string
	Stage string
	Err   error
}

func (e *StageTimeoutError) Error() string {
	return fmt.Sprintf("job %s: stage %q exceeded its deadline: %v", e.JobID, e.Stage, e.Err)
}

func (e *StageTimeoutError) Unwrap() error { return e.Err }

// AuditWriteError wraps a failure to persist the job's audit record. The
// job's stages have already finished, successfully or not, by this point;
// Run returns this error only when the stages themselves returned none,
// and it does not change the job's terminal status.
type AuditWriteError struct {
	JobID string
	Err   error
}

func (e *AuditWriteError) Error() string {
	return fmt.Sprintf("job %s: audit write failed: %v", e.JobID, e.Err)
}

func (e *AuditWriteError) Unwrap() error { return e.Err }
