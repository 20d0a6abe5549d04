// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package storage manages the pipeline's on-disk directory layout: the
// processing/processed/signed/error directories a document moves through,
// and the keys directory holding the signing key.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/secure-doc-ai/pipeline/internal/config"
)

// Layout resolves the absolute paths for each stage directory and
// guarantees they exist.
type Layout struct {
	Processing string
	Processed  string
	Signed     string
	Error      string
	Keys       string
}

// NewLayout builds a Layout from configuration, creating any directory
// that does not already exist.
func NewLayout(cfg *config.DirectoriesConfig) (*Layout, error) {
	l := &Layout{
		Processing: cfg.Processing,
		Processed:  cfg.Processed,
		Signed:     cfg.Signed,
		Error:      cfg.Error,
		Keys:       cfg.Keys,
	}

	for _, dir := range []string{l.Processing, l.Processed, l.Signed, l.Error, l.Keys} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating directory %q: %w", dir, err)
		}
	}

	return l, nil
}

// KeyFile returns the path to the ECDSA signing key PEM file.
func (l *Layout) KeyFile() string {
	return filepath.Join(l.Keys, "signing_key.pem")
}

// UUIDName prefixes the given filename with a fresh UUID so concurrently
// ingested files with the same base name never collide on disk.
func UUIDName(originalName string) string {
	return fmt.Sprintf("%s_%s", uuid.NewString(), originalName)
}

// MoveTo moves srcPath into destDir, preserving its base filename, and
// returns the new absolute path. It uses os.Rename, which is atomic when
// src and dest share a filesystem — the layout's directories are expected
// to live under one root for this reason.
func MoveTo(srcPath, destDir string) (string, error) {
	destPath := filepath.Join(destDir, filepath.Base(srcPath))
	if err := os.Rename(srcPath, destPath); err != nil {
		return "", fmt.Errorf("moving %q to %q: %w", srcPath, destPath, err)
	}
	return destPath, nil
}

// ValidatePath rejects paths containing a null byte, the one input that
// can corrupt OS path APIs regardless of platform.
func ValidatePath(path string) error {
	for _, c := range path {
		if c == 0 {
			return fmt.Errorf("invalid path %q: contains null byte", path)
		}
	}
	return nil
}
