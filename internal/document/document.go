// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package document holds the data objects that flow through the
// validate -> extract -> detect -> resolve -> redact -> sign -> audit
// pipeline.
package document

import "time"

// JobStatus tracks which pipeline stage a job is in, or its terminal state.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusValidating JobStatus = "validating"
	StatusExtracting JobStatus = "extracting"
	StatusDetecting  JobStatus = "detecting"
	StatusRedacting  JobStatus = "redacting"
	StatusSigning    JobStatus = "signing"
	StatusAuditing   JobStatus = "auditing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Source identifies which detector family produced an entity.
type Source string

const (
	SourceRegex Source = "regex"
	SourceNER   Source = "ner"
	SourceOCR   Source = "ocr"
)

// BoundingBox is an axis-aligned rectangle in PDF user-space points
// (1/72 inch), with the origin at the bottom-left of the page.
type BoundingBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Union returns the smallest BoundingBox that contains both b and other.
func (b BoundingBox) Union(other BoundingBox) BoundingBox {
	return BoundingBox{
		X0: minF(b.X0, other.X0),
		Y0: minF(b.Y0, other.Y0),
		X1: maxF(b.X1, other.X1),
		Y1: maxF(b.Y1, other.Y1),
	}
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// DetectedEntity is a contiguous substring of a page's extracted text
// identified as PII. It is produced by the detector with Bbox nil, and
// mutated exactly once by the resolver to fill Bbox in (unless the
// source already supplied one, e.g. OCR word boxes).
type DetectedEntity struct {
	EntityType string       `json:"entity_type"`
	Text       string       `json:"text"`
	Start      int          `json:"start"`
	End        int          `json:"end"`
	Confidence float64      `json:"confidence"`
	Page       int          `json:"page"`
	Source     Source       `json:"source"`
	Bbox       *BoundingBox `json:"bbox,omitempty"`
}

// TextBlock is the atomic unit emitted by the extractor: a span of text,
// its rectangle on the page, and the half-open character range it
// occupies in the page's full text.
type TextBlock struct {
	Text       string
	Bbox       BoundingBox
	PageNumber int
	CharStart  int
	CharEnd    int
}

// PageContent is everything the extractor produced for one page.
type PageContent struct {
	PageNumber int
	Text       string
	Blocks     []TextBlock
	OCRUsed    bool
}

// BlocksOverlapping returns every block whose character range overlaps
// the half-open range [start, end), in the block's emission order.
func (p PageContent) BlocksOverlapping(start, end int) []TextBlock {
	var out []TextBlock
	for _, b := range p.Blocks {
		if b.CharEnd > start && b.CharStart < end {
			out = append(out, b)
		}
	}
	return out
}

// ProcessResult is the pipeline's terminal output record for one job.
type ProcessResult struct {
	JobID        string           `json:"job_id"`
	Filename     string           `json:"filename"`
	Status       JobStatus        `json:"status"`
	EntityCount  int              `json:"entity_count"`
	Entities     []DetectedEntity `json:"entities"`
	OutputPath   string           `json:"output_path,omitempty"`
	Error        string           `json:"error,omitempty"`
	DurationSecs float64          `json:"duration_s"`
	CreatedAt    time.Time        `json:"created_at"`
}
