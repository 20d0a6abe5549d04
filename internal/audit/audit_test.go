// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/secure-doc-ai/pipeline/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLogAndGetJob_RoundTrips(t *testing.T) {
	s := openTestStore(t)

	result := document.ProcessResult{
		JobID:       "job-1",
		Filename:    "report.pdf",
		Status:      document.StatusCompleted,
		EntityCount: 2,
		Entities: []document.DetectedEntity{
			{EntityType: "SSN", Text: "123-45-6789", Start: 0, End: 11, Confidence: 1.0, Page: 0, Source: document.SourceRegex},
		},
		OutputPath:   "/data/signed/report.pdf",
		DurationSecs: 1.25,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, s.Log(result))

	got, err := s.GetJob("job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, result.Filename, got.Filename)
	assert.Equal(t, result.Status, got.Status)
	assert.Equal(t, 1, len(got.Entities))
	assert.Equal(t, "SSN", got.Entities[0].EntityType)
}

func TestGetJob_UnknownReturnsNil(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetJob("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLog_UpsertsByJobID(t *testing.T) {
	s := openTestStore(t)

	first := document.ProcessResult{JobID: "job-2", Filename: "a.pdf", Status: document.StatusQueued, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.Log(first))

	second := first
	second.Status = document.StatusCompleted
	second.EntityCount = 3
	require.NoError(t, s.Log(second))

	got, err := s.GetJob("job-2")
	require.NoError(t, err)
	assert.Equal(t, document.StatusCompleted, got.Status)
	assert.Equal(t, 3, got.EntityCount)
}

func TestGetStats_AggregatesAcrossJobs(t *testing.T) {
	s := openTestStore(t)

	jobs := []document.ProcessResult{
		{JobID: "1", Filename: "a.pdf", Status: document.StatusCompleted, EntityCount: 2, DurationSecs: 1.0, CreatedAt: time.Now().UTC()},
		{JobID: "2", Filename: "b.pdf", Status: document.StatusCompleted, EntityCount: 4, DurationSecs: 3.0, CreatedAt: time.Now().UTC()},
		{JobID: "3", Filename: "c.pdf", Status: document.StatusFailed, EntityCount: 0, DurationSecs: 0.5, CreatedAt: time.Now().UTC()},
	}
	for _, j := range jobs {
		require.NoError(t, s.Log(j))
	}

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalJobs)
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 6, stats.TotalEntitiesDetected)
	assert.InDelta(t, 1.5, stats.AvgDurationSeconds, 0.01)
}
