// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package watcher monitors the processing directory for newly arrived
// files and submits each one, once its write has settled, to the
// job-level worker pool.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/secure-doc-ai/pipeline/internal/storage"
	"github.com/secure-doc-ai/pipeline/internal/worker"
)

// acceptedExtensions mirrors the validator's extension gate at the
// watcher level, so obviously-wrong files never even enter the queue;
// the validator still runs its own deeper checks once a job is submitted.
var acceptedExtensions = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tiff": true,
	".tif":  true,
}

// Submitter is the subset of worker.Pool the watcher depends on.
type Submitter interface {
	Submit(job worker.Job)
}

// Watcher watches one directory for new files and, after letting each
// file's write settle, renames it to a collision-free UUID-prefixed name
// and submits it as a job.
type Watcher struct {
	dir           string
	settleDelay   time.Duration
	pool          Submitter
	onError       func(error)
	fsWatcher     *fsnotify.Watcher
	stopOnce      sync.Once
	done          chan struct{}
	inFlight      sync.Map // path -> struct{}, guards against duplicate debounce goroutines
}

// New builds a Watcher over dir. settleDelay is how long a file must sit
// unmodified before it is considered fully written (spec default 1.5s).
// onError receives any error that does not abort the watcher itself; a
// nil onError discards them.
func New(dir string, settleDelay time.Duration, pool Submitter, onError func(error)) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating watch directory %q: %w", dir, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %q: %w", dir, err)
	}

	if onError == nil {
		onError = func(error) {}
	}

	return &Watcher{
		dir:         dir,
		settleDelay: settleDelay,
		pool:        pool,
		onError:     onError,
		fsWatcher:   fsw,
		done:        make(chan struct{}),
	}, nil
}

// Start processes any files already sitting in the watch directory (except
// UUID-prefixed ones, see handleCandidate), then
// begins reacting to filesystem events. It returns immediately; events
// are handled on a background goroutine until Stop is called.
func (w *Watcher) Start() {
	w.processExisting()
	go w.loop()
}

// Stop releases the underlying filesystem watch. Debounce goroutines
// already in flight are allowed to finish.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsWatcher.Close()
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.handleCandidate(event.Name)
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.onError(fmt.Errorf("watcher error: %w", err))
		}
	}
}

func (w *Watcher) processExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.onError(fmt.Errorf("listing %q: %w", w.dir, err))
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.handleCandidate(filepath.Join(w.dir, entry.Name()))
	}
}

func (w *Watcher) handleCandidate(path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") {
		return
	}
	if !acceptedExtensions[strings.ToLower(filepath.Ext(name))] {
		return
	}
	// A name that already starts with a storage.UUIDName prefix was produced
	// inside this process (the rename below, an HTTP upload, a redacted
	// copy) rather than newly arrived, so it is not submitted again.
	if _, err := uuid.Parse(jobIDFromIngestName(path)); err == nil {
		return
	}

	if _, loaded := w.inFlight.LoadOrStore(path, struct{}{}); loaded {
		return
	}

	go w.debounceAndSubmit(path)
}

// debounceAndSubmit waits for the configured settle delay, then moves the
// file to a UUID-prefixed name (so two files with the same original
// basename never collide) and submits it as a job.
func (w *Watcher) debounceAndSubmit(path string) {
	defer w.inFlight.Delete(path)

	time.Sleep(w.settleDelay)

	if _, err := os.Stat(path); err != nil {
		return // removed or never finished arriving
	}

	destPath := filepath.Join(filepath.Dir(path), storage.UUIDName(filepath.Base(path)))
	if err := os.Rename(path, destPath); err != nil {
		w.onError(fmt.Errorf("renaming %q for ingestion: %w", path, err))
		return
	}

	w.pool.Submit(worker.Job{JobID: jobIDFromIngestName(destPath), FilePath: destPath})
}

// jobIDFromIngestName recovers the UUID storage.UUIDName prefixed onto
// the file, which doubles as that job's identifier.
func jobIDFromIngestName(path string) string {
	name := filepath.Base(path)
	if idx := strings.Index(name, "_"); idx > 0 {
		return name[:idx]
	}
	return name
}
