// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package pipeline orchestrates the full document-processing flow:
// validate, extract, detect, resolve bounding boxes, redact, sign, and
// audit a single submitted file.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/secure-doc-ai/pipeline/internal/audit"
	"github.com/secure-doc-ai/pipeline/internal/detector"
	"github.com/secure-doc-ai/pipeline/internal/document"
	"github.com/secure-doc-ai/pipeline/internal/extractor"
	"github.com/secure-doc-ai/pipeline/internal/observability"
	"github.com/secure-doc-ai/pipeline/internal/redactor"
	"github.com/secure-doc-ai/pipeline/internal/resolver"
	"github.com/secure-doc-ai/pipeline/internal/signer"
	"github.com/secure-doc-ai/pipeline/internal/storage"
	"github.com/secure-doc-ai/pipeline/internal/validator"
	"github.com/secure-doc-ai/pipeline/internal/worker"
)

// Pipeline wires every stage together behind a single Run entrypoint,
// following the original system's validate -> extract -> detect ->
// resolve -> redact -> sign -> audit sequence.
type Pipeline struct {
	layout    *storage.Layout
	validator *validator.Validator
	extractor *extractor.Extractor
	detector  *detector.Detector
	redactor  *redactor.Redactor
	signer    *signer.Signer
	store     *audit.Store
	observer  *observability.StandardObserver
}

// New assembles a Pipeline from its already-constructed stage
// components.
func New(
	layout *storage.Layout,
	v *validator.Validator,
	e *extractor.Extractor,
	d *detector.Detector,
	r *redactor.Redactor,
	s *signer.Signer,
	store *audit.Store,
	observer *observability.StandardObserver,
) *Pipeline {
	return &Pipeline{
		layout:    layout,
		validator: v,
		extractor: e,
		detector:  d,
		redactor:  r,
		signer:    s,
		store:     store,
		observer:  observer,
	}
}

// Run executes every stage for one job and returns its terminal
// ProcessResult. It matches worker.ProcessFunc so a Pool can invoke it
// directly.
func (p *Pipeline) Run(ctx context.Context, job worker.Job) (document.ProcessResult, error) {
	start := time.Now()
	originalName := filepath.Base(job.FilePath)

	var finishTiming func(bool, map[string]interface{})
	if p.observer != nil {
		finishTiming = p.observer.StartTiming("pipeline", "run", job.FilePath)
	} else {
		finishTiming = func(bool, map[string]interface{}) {}
	}

	result, err := p.runStages(ctx, job, originalName, start)
	finishTiming(err == nil, map[string]interface{}{
		"job_id":       job.JobID,
		"status":       string(result.Status),
		"entity_count": result.EntityCount,
	})

	if auditErr := p.store.Log(result); auditErr != nil {
		wrapped := &AuditWriteError{JobID: job.JobID, Err: auditErr}
		if err == nil {
			err = wrapped
		}
	}

	return result, err
}

func (p *Pipeline) runStages(ctx context.Context, job worker.Job, originalName string, start time.Time) (document.ProcessResult, error) {
	// fail builds a timed-out job's terminal result and discards any
	// partial output file(s) already written for it under the processing
	// or signed directories, per the requirement that a job exceeding its
	// deadline leaves no partial artifact behind.
	fail := func(stage string, entities []document.DetectedEntity, discard ...string) (document.ProcessResult, error) {
		for _, path := range discard {
			if path != "" && path != job.FilePath {
				_ = os.Remove(path)
			}
		}
		err := &StageTimeoutError{JobID: job.JobID, Stage: stage, Err: ctx.Err()}
		return document.ProcessResult{
			JobID:        job.JobID,
			Filename:     originalName,
			Status:       document.StatusFailed,
			EntityCount:  len(entities),
			Entities:     entities,
			Error:        err.Error(),
			DurationSecs: time.Since(start).Seconds(),
			CreatedAt:    start,
		}, err
	}

	// 1. Validate.
	if err := ctx.Err(); err != nil {
		return fail("validate", nil)
	}
	if err := p.validator.Validate(job.FilePath); err != nil {
		if _, rejectErr := p.validator.Reject(job.FilePath); rejectErr != nil {
			err = fmt.Errorf("%w (and quarantine also failed: %v)", err, rejectErr)
		}
		return document.ProcessResult{
			JobID:        job.JobID,
			Filename:     originalName,
			Status:       document.StatusFailed,
			Error:        err.Error(),
			DurationSecs: time.Since(start).Seconds(),
			CreatedAt:    start,
		}, &ValidationReject{JobID: job.JobID, Err: err}
	}

	// 2. Extract.
	if err := ctx.Err(); err != nil {
		return fail("extract", nil)
	}
	pages, err := p.extract(ctx, job.FilePath)
	if err != nil {
		if ctx.Err() != nil {
			return fail("extract", nil)
		}
		return document.ProcessResult{
			JobID:        job.JobID,
			Filename:     originalName,
			Status:       document.StatusFailed,
			Error:        err.Error(),
			DurationSecs: time.Since(start).Seconds(),
			CreatedAt:    start,
		}, &ExtractionError{JobID: job.JobID, Err: err}
	}

	// 3. Detect PII per page.
	if err := ctx.Err(); err != nil {
		return fail("detect", nil)
	}
	var entities []document.DetectedEntity
	for _, page := range pages {
		entities = append(entities, p.detector.Detect(page.Text, page.PageNumber)...)
	}

	// 3b. Resolve bounding boxes.
	pageMap := make(map[int]document.PageContent, len(pages))
	for _, page := range pages {
		pageMap[page.PageNumber] = page
	}
	resolver.Resolve(entities, pageMap)

	// 4. Redact (PDF only — any other input is passed on to the sign
	// stage unmodified).
	if err := ctx.Err(); err != nil {
		return fail("redact", entities)
	}
	redactedPath := filepath.Join(p.layout.Processing, fmt.Sprintf("%s_redacted.pdf", job.JobID))
	var redactErr error
	if isPDF(job.FilePath) {
		redactErr = p.redactor.Redact(job.FilePath, redactedPath, entities, pageMap)
	} else {
		redactedPath = job.FilePath
	}
	if redactErr != nil {
		if ctx.Err() != nil {
			return fail("redact", entities, redactedPath)
		}
		_ = os.Remove(redactedPath)
		return document.ProcessResult{
			JobID:        job.JobID,
			Filename:     originalName,
			Status:       document.StatusFailed,
			EntityCount:  len(entities),
			Entities:     entities,
			Error:        redactErr.Error(),
			DurationSecs: time.Since(start).Seconds(),
			CreatedAt:    start,
		}, &RedactionPartial{JobID: job.JobID, Err: redactErr}
	}

	// 5. Sign.
	if err := ctx.Err(); err != nil {
		return fail("sign", entities, redactedPath)
	}
	signedPath := filepath.Join(p.layout.Signed, fmt.Sprintf("%s_signed.pdf", job.JobID))
	if err := p.copyThenSign(redactedPath, signedPath); err != nil {
		if ctx.Err() != nil {
			return fail("sign", entities, redactedPath, signedPath)
		}
		_ = os.Remove(signedPath)
		return document.ProcessResult{
			JobID:        job.JobID,
			Filename:     originalName,
			Status:       document.StatusFailed,
			EntityCount:  len(entities),
			Entities:     entities,
			Error:        err.Error(),
			DurationSecs: time.Since(start).Seconds(),
			CreatedAt:    start,
		}, &SigningError{JobID: job.JobID, Err: err}
	}

	return document.ProcessResult{
		JobID:        job.JobID,
		Filename:     originalName,
		Status:       document.StatusCompleted,
		EntityCount:  len(entities),
		Entities:     entities,
		OutputPath:   signedPath,
		DurationSecs: time.Since(start).Seconds(),
		CreatedAt:    start,
	}, nil
}

// copyThenSign copies the redacted document into the signed directory
// and signs that copy in place, so the processing-directory redacted
// file is left untouched for diagnostics. PDFs carry their signature in
// their own keywords metadata; every other document type (images pass
// through redaction unmodified) gets a "<path>.sig.json" sidecar since
// it has no metadata slot of its own.
func (p *Pipeline) copyThenSign(redactedPath, signedPath string) error {
	data, err := os.ReadFile(redactedPath)
	if err != nil {
		return fmt.Errorf("reading redacted document: %w", err)
	}
	if err := os.WriteFile(signedPath, data, 0o600); err != nil {
		return fmt.Errorf("writing signed document copy: %w", err)
	}

	if isPDF(signedPath) {
		_, err = p.signer.SignPDF(signedPath)
		return err
	}
	_, err = p.signer.SignSidecar(signedPath)
	return err
}

func (p *Pipeline) extract(ctx context.Context, path string) ([]document.PageContent, error) {
	if isPDF(path) {
		return p.extractor.ExtractPDF(ctx, path)
	}
	page, err := extractor.ExtractImage(path)
	if err != nil {
		return nil, err
	}
	return []document.PageContent{page}, nil
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// NewJobID generates a unique identifier for an incoming file, the same
// way storage.UUIDName derives collision-free on-disk names.
func NewJobID() string {
	return uuid.NewString()
}
