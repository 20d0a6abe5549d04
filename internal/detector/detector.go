// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package detector finds PII in extracted page text using a closed
// regex vocabulary, plus an optional injected named-entity tagger.
package detector

import (
	"regexp"
	"sort"
	"strings"

	"github.com/secure-doc-ai/pipeline/internal/document"
)

// pattern pairs an entity type tag with its compiled regex.
type pattern struct {
	entityType string
	regex      *regexp.Regexp
}

// patterns is the closed regex vocabulary. Order is insertion order only;
// matches are later sorted by (start, -confidence) during dedup.
var patterns = []pattern{
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"PHONE_US", regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	{"PHONE_IN", regexp.MustCompile(`\b(?:\+91[\s-]?)?[6-9]\d{4}[\s-]?\d{5}\b`)},
	{"EMAIL", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"AADHAAR", regexp.MustCompile(`\b\d{4}\s\d{4}\s\d{4}\b`)},
	{"PAN", regexp.MustCompile(`\b[A-Z]{5}\d{4}[A-Z]\b`)},
	{"CREDIT_CARD", regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)},
	{"DATE_OF_BIRTH", regexp.MustCompile(`\b(?:0?[1-9]|[12]\d|3[01])[/\-.](?:0?[1-9]|1[0-2])[/\-.](?:19|20)\d{2}\b`)},
	{"IP_ADDRESS", regexp.MustCompile(`\b(?:25[0-5]|2[0-4]\d|[01]?\d\d?)(?:\.(?:25[0-5]|2[0-4]\d|[01]?\d\d?)){3}\b`)},
	{"URL_LINKEDIN", regexp.MustCompile(`\b(?:https?://)?(?:www\.)?linkedin\.com/in/[\w-]+\b`)},
	{"URL_GITHUB", regexp.MustCompile(`\b(?:https?://)?(?:www\.)?github\.com/[\w-]+\b`)},
	// EXIF_GPS_LOCATION and EXIF_CAMERA_OWNER match the synthetic text
	// blocks extractor.appendEXIFMetadata appends for image inputs, not
	// anything an OCR or native-text page would ever contain verbatim.
	{"EXIF_GPS_LOCATION", regexp.MustCompile(`EXIF_GPS: -?\d+\.\d+,-?\d+\.\d+`)},
	{"EXIF_CAMERA_OWNER", regexp.MustCompile(`EXIF_OWNER: [^\n]+`)},
}

const (
	nerChunkSize       = 450
	nerConfidenceFloor = 0.90
	nerMinEntityLength = 3
)

// nerLabelMap maps the tagger's raw labels to the pipeline's entity vocabulary.
var nerLabelMap = map[string]string{
	"PER": "PERSON",
	"LOC": "LOCATION",
	"ORG": "ORGANIZATION",
}

// Span is one tagged span returned by a NamedEntityTagger, with offsets
// relative to the chunk passed to Tag (not the full page text).
type Span struct {
	Label string
	Text  string
	Start int
	End   int
	Score float64
}

// NamedEntityTagger is an optional collaborator that recognizes PERSON,
// LOCATION, and ORGANIZATION entities beyond the regex vocabulary. A nil
// tagger means regex-only detection. Tag must be safe for concurrent use
// since one tagger instance may be shared across worker-pool jobs.
type NamedEntityTagger interface {
	Tag(chunk string) ([]Span, error)
}

// Detector runs the regex family and, when configured, the NER family,
// then deduplicates the merged result.
type Detector struct {
	tagger NamedEntityTagger
}

// New builds a Detector. A nil tagger disables NER detection entirely;
// the detector still matches the full regex vocabulary.
func New(tagger NamedEntityTagger) *Detector {
	return &Detector{tagger: tagger}
}

// Detect runs every regex pattern and, if a tagger is configured, chunked
// NER inference, then deduplicates the combined result per the dedup rule:
// sort by (start ascending, confidence descending); drop any entity whose
// start falls inside the previous kept entity's [start, end) range.
func (d *Detector) Detect(pageText string, page int) []document.DetectedEntity {
	var found []document.DetectedEntity
	found = append(found, detectRegex(pageText, page)...)
	if d.tagger != nil {
		found = append(found, d.detectNER(pageText, page)...)
	}
	return deduplicate(found)
}

func detectRegex(text string, page int) []document.DetectedEntity {
	var found []document.DetectedEntity
	for _, p := range patterns {
		for _, loc := range p.regex.FindAllStringIndex(text, -1) {
			found = append(found, document.DetectedEntity{
				EntityType: p.entityType,
				Text:       text[loc[0]:loc[1]],
				Start:      loc[0],
				End:        loc[1],
				Confidence: 1.0,
				Page:       page,
				Source:     document.SourceRegex,
			})
		}
	}
	return found
}

// detectNER slices text into fixed-size chunks (to stay inside a typical
// tagger's token window) and tags each independently. A chunk whose Tag
// call errors is skipped; other chunks still run. The error is not
// reported to the caller, and a failing tagger is never treated as an
// absent one.
func (d *Detector) detectNER(text string, page int) []document.DetectedEntity {
	var found []document.DetectedEntity

	for chunkStart := 0; chunkStart < len(text); chunkStart += nerChunkSize {
		chunkEnd := chunkStart + nerChunkSize
		if chunkEnd > len(text) {
			chunkEnd = len(text)
		}
		chunk := text[chunkStart:chunkEnd]

		spans, err := d.tagger.Tag(chunk)
		if err != nil {
			continue
		}

		for _, span := range spans {
			label := strings.ToUpper(span.Label)
			mapped, ok := nerLabelMap[label]
			if !ok {
				continue
			}

			textContent := strings.TrimSpace(span.Text)
			if len(textContent) < nerMinEntityLength {
				continue
			}
			if span.Score < nerConfidenceFloor {
				continue
			}

			found = append(found, document.DetectedEntity{
				EntityType: mapped,
				Text:       textContent,
				Start:      chunkStart + span.Start,
				End:        chunkStart + span.End,
				Confidence: span.Score,
				Page:       page,
				Source:     document.SourceNER,
			})
		}
	}

	return found
}

// deduplicate sorts by (start ascending, confidence descending) and drops
// any entity whose start falls within the previous kept entity's range.
func deduplicate(entities []document.DetectedEntity) []document.DetectedEntity {
	if len(entities) == 0 {
		return nil
	}

	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Start != entities[j].Start {
			return entities[i].Start < entities[j].Start
		}
		return entities[i].Confidence > entities[j].Confidence
	})

	deduped := []document.DetectedEntity{entities[0]}
	for _, ent := range entities[1:] {
		prev := deduped[len(deduped)-1]
		if ent.Start < prev.End {
			continue
		}
		deduped = append(deduped, ent)
	}

	return deduped
}
