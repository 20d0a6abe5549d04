// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/secure-doc-ai/pipeline/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	jobs []worker.Job
}

func (f *fakeSubmitter) Submit(job worker.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
}

func (f *fakeSubmitter) snapshot() []worker.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]worker.Job, len(f.jobs))
	copy(out, f.jobs)
	return out
}

func TestWatcher_SubmitsPreExistingFileOnStart(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "already-here.pdf"), []byte("%PDF-1.4"), 0o600))

	sub := &fakeSubmitter{}
	w, err := New(dir, 10*time.Millisecond, sub, nil)
	require.NoError(t, err)
	defer w.Stop()

	w.Start()
	require.Eventually(t, func() bool { return len(sub.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	jobs := sub.snapshot()
	assert.NotEmpty(t, jobs[0].JobID)
	assert.FileExists(t, jobs[0].FilePath)
	assert.NoFileExists(t, filepath.Join(dir, "already-here.pdf"))
}

func TestWatcher_IgnoresHiddenAndUnacceptedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.pdf"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	sub := &fakeSubmitter{}
	w, err := New(dir, 10*time.Millisecond, sub, nil)
	require.NoError(t, err)
	defer w.Stop()

	w.Start()
	time.Sleep(100 * time.Millisecond)

	assert.Empty(t, sub.snapshot())
}

func TestWatcher_SubmitsNewlyCreatedFile(t *testing.T) {
	dir := t.TempDir()

	sub := &fakeSubmitter{}
	w, err := New(dir, 10*time.Millisecond, sub, nil)
	require.NoError(t, err)
	defer w.Stop()

	w.Start()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scan.png"), []byte("png-bytes"), 0o600))

	require.Eventually(t, func() bool { return len(sub.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestJobIDFromIngestName_RecoversUUIDPrefix(t *testing.T) {
	id := jobIDFromIngestName("/data/processing/ab12cd34_report.pdf")
	assert.Equal(t, "ab12cd34", id)
}
