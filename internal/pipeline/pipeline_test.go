// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/secure-doc-ai/pipeline/internal/audit"
	"github.com/secure-doc-ai/pipeline/internal/document"
	"github.com/secure-doc-ai/pipeline/internal/storage"
	"github.com/secure-doc-ai/pipeline/internal/validator"
	"github.com/secure-doc-ai/pipeline/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLayout(t *testing.T) *storage.Layout {
	t.Helper()
	root := t.TempDir()
	l := &storage.Layout{
		Processing: filepath.Join(root, "processing"),
		Processed:  filepath.Join(root, "processed"),
		Signed:     filepath.Join(root, "signed"),
		Error:      filepath.Join(root, "error"),
		Keys:       filepath.Join(root, "keys"),
	}
	for _, dir := range []string{l.Processing, l.Processed, l.Signed, l.Error, l.Keys} {
		require.NoError(t, os.MkdirAll(dir, 0o750))
	}
	return l
}

func newTestStore(t *testing.T) *audit.Store {
	t.Helper()
	s, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIsPDF_IsCaseInsensitive(t *testing.T) {
	assert.True(t, isPDF("report.PDF"))
	assert.True(t, isPDF("report.pdf"))
	assert.False(t, isPDF("scan.png"))
	assert.False(t, isPDF("noextension"))
}

func TestNewJobID_ProducesUniqueValues(t *testing.T) {
	a := NewJobID()
	b := NewJobID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

// TestRun_ValidationRejectStopsBeforeLaterStages confirms a file that
// fails the validator's extension gate never reaches extraction: the
// pipeline's later stage collaborators are left nil and would panic if
// invoked, so a clean failure here proves validation ran first.
func TestRun_ValidationRejectStopsBeforeLaterStages(t *testing.T) {
	layout := newTestLayout(t)
	store := newTestStore(t)

	srcPath := filepath.Join(t.TempDir(), "memo.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("hello"), 0o600))

	p := New(layout, validator.New(10, 100, layout.Error), nil, nil, nil, nil, store, nil)

	result, err := p.Run(context.Background(), worker.Job{JobID: "job-reject", FilePath: srcPath})

	require.Error(t, err)
	assert.IsType(t, &ValidationReject{}, err)
	assert.Equal(t, document.StatusFailed, result.Status)
	assert.NotEmpty(t, result.Error)

	stored, getErr := store.GetJob("job-reject")
	require.NoError(t, getErr)
	require.NotNil(t, stored)
	assert.Equal(t, document.StatusFailed, stored.Status)
}

func TestErrorTaxonomy_UnwrapsToUnderlyingError(t *testing.T) {
	underlying := assert.AnError

	cases := []error{
		&ValidationReject{JobID: "j", Err: underlying},
		&ExtractionError{JobID: "j", Err: underlying},
		&DetectionWarning{JobID: "j", Err: underlying},
		&RedactionPartial{JobID: "j", Err: underlying},
		&SigningError{JobID: "j", Err: underlying},
		&AuditWriteError{JobID: "j", Err: underlying},
		&StageTimeoutError{JobID: "j", Stage: "validate", Err: underlying},
	}

	for _, c := range cases {
		assert.ErrorIs(t, c, underlying)
		assert.NotEmpty(t, c.Error())
	}
}

// TestRun_RespectsExpiredDeadline proves the real pipeline (not a
// synthetic stand-in) checks its context before doing any stage's work:
// a context whose deadline has already elapsed before Run is even called
// must fail the job immediately with a StageTimeoutError rather than
// running the validator, extractor, and the rest of the stages to
// completion as if no deadline applied.
func TestRun_RespectsExpiredDeadline(t *testing.T) {
	layout := newTestLayout(t)
	store := newTestStore(t)

	srcPath := filepath.Join(t.TempDir(), "memo.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("hello"), 0o600))

	p := New(layout, validator.New(10, 100, layout.Error), nil, nil, nil, nil, store, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	result, err := p.Run(ctx, worker.Job{JobID: "job-timeout", FilePath: srcPath})

	require.Error(t, err)
	assert.IsType(t, &StageTimeoutError{}, err)
	assert.Equal(t, document.StatusFailed, result.Status)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	stageErr, ok := err.(*StageTimeoutError)
	require.True(t, ok)
	assert.Equal(t, "validate", stageErr.Stage)
}
