// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package validator runs the pipeline's five structural gates over an
// ingested file before any expensive extraction work begins.
package validator

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// RejectReason names which gate failed.
type RejectReason string

const (
	ReasonExtension  RejectReason = "unsupported_extension"
	ReasonMIME       RejectReason = "unsupported_mime_type"
	ReasonTooLarge   RejectReason = "file_too_large"
	ReasonEncrypted  RejectReason = "pdf_encrypted"
	ReasonPageCount  RejectReason = "too_many_pages"
	ReasonUnreadable RejectReason = "pdf_unreadable"
)

// RejectError is returned when a gate fails. It carries the exact reason
// so the pipeline can report it verbatim (the only error class in the
// taxonomy considered user-caused).
type RejectError struct {
	Reason  RejectReason
	Message string
}

func (e *RejectError) Error() string {
	return e.Message
}

func reject(reason RejectReason, format string, args ...any) *RejectError {
	return &RejectError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tiff": true,
	".tif":  true,
}

var allowedMIMETypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/tiff":      true,
}

// magicSignatures maps magic-byte prefixes to MIME types for sniffMIME's
// fallback. net/http.DetectContentType recognizes PDF, JPEG and PNG but
// has no TIFF signature, so TIFF files are classified only through the
// two TIFF entries here.
var magicSignatures = map[string]string{
	"%PDF":         "application/pdf",
	"II*\x00":      "image/tiff",
	"MM\x00*":      "image/tiff",
	"\xff\xd8\xff": "image/jpeg",
	"\x89PNG":      "image/png",
}

// Validator runs the five structural gates from the pipeline's external
// contract: extension, content-sniffed MIME, size, PDF encryption, PDF
// page count.
type Validator struct {
	maxSizeBytes int64
	maxPages     int
	errorDir     string
}

// New builds a Validator. maxSizeMB and maxPages are the thresholds for
// gates 3 and 5; errorDir is where reject quarantines rejected files.
func New(maxSizeMB int64, maxPages int, errorDir string) *Validator {
	return &Validator{
		maxSizeBytes: maxSizeMB * 1024 * 1024,
		maxPages:     maxPages,
		errorDir:     errorDir,
	}
}

// Validate runs all five gates in order; the first failure aborts and is
// returned as a *RejectError.
func (v *Validator) Validate(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !allowedExtensions[ext] {
		return reject(ReasonExtension, "unsupported file extension %q", ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return reject(ReasonUnreadable, "cannot stat file: %v", err)
	}

	mimeType, err := sniffMIME(path)
	if err != nil {
		return reject(ReasonUnreadable, "cannot read file for MIME sniffing: %v", err)
	}
	if !allowedMIMETypes[mimeType] {
		return reject(ReasonMIME, "unsupported content type %q", mimeType)
	}

	if info.Size() > v.maxSizeBytes {
		return reject(ReasonTooLarge, "file size %d bytes exceeds limit of %d bytes", info.Size(), v.maxSizeBytes)
	}

	if mimeType == "application/pdf" {
		if err := v.validatePDF(path); err != nil {
			return err
		}
	}

	return nil
}

func (v *Validator) validatePDF(path string) error {
	pageCount, err := api.PageCountFile(path)
	if err != nil {
		if isEncryptionError(err) {
			return reject(ReasonEncrypted, "PDF is password-protected")
		}
		return reject(ReasonUnreadable, "PDF failed to open: %v", err)
	}

	if pageCount > v.maxPages {
		return reject(ReasonPageCount, "PDF has %d pages, exceeds limit of %d", pageCount, v.maxPages)
	}

	return nil
}

// isEncryptionError inspects a pdfcpu error for the substrings it uses to
// report a missing decryption password.
func isEncryptionError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "encrypted") ||
		strings.Contains(msg, "password") ||
		strings.Contains(msg, "decrypt")
}

// sniffMIME content-sniffs a file's MIME type from its leading bytes with
// net/http.DetectContentType, falling back to magicSignatures when that
// result is not an allowed type (gate 2 requires magic bytes, not the
// file extension).
func sniffMIME(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return "", err
	}
	buf = buf[:n]

	sniffed := http.DetectContentType(buf)
	// net/http reports "text/plain; charset=utf-8" style suffixes; strip them.
	if idx := strings.IndexByte(sniffed, ';'); idx >= 0 {
		sniffed = sniffed[:idx]
	}

	if allowedMIMETypes[sniffed] {
		return sniffed, nil
	}

	for sig, mime := range magicSignatures {
		if strings.HasPrefix(string(buf), sig) {
			return mime, nil
		}
	}

	return sniffed, nil
}

// Reject moves a rejected file into the error directory, unchanged, for
// later inspection.
func (v *Validator) Reject(path string) (string, error) {
	destPath := filepath.Join(v.errorDir, filepath.Base(path))
	if err := os.Rename(path, destPath); err != nil {
		return "", fmt.Errorf("quarantining %q: %w", path, err)
	}
	return destPath, nil
}
