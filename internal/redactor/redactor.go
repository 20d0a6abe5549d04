// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package redactor removes detected entities from a PDF by rewriting each
// affected page's content stream: every text-showing operator that falls
// under a resolved bounding box is dropped outright (not merely painted
// over), then a solid black rectangle is drawn over the same area so the
// redaction is still visible. Entities the resolver could not place fall
// back to a first-match text search.
package redactor

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/secure-doc-ai/pipeline/internal/document"
)

// minTextSearchLength is the shortest entity text a bbox-less fallback
// will search for; anything shorter is too likely to false-positive
// against unrelated page content and is skipped instead.
const minTextSearchLength = 4

// defaultFontHeight is the fallback font size used to estimate a glyph
// run's rectangle when a content stream never sets one explicitly before
// its first show-text operator.
const defaultFontHeight = 12.0

// Redactor writes a black-box-redacted copy of a PDF.
type Redactor struct {
	conf *model.Configuration
}

// New builds a Redactor using pdfcpu's default configuration.
func New() *Redactor {
	return &Redactor{conf: model.NewDefaultConfiguration()}
}

// Redact rewrites srcPath into destPath with every entity in entities
// removed from its page's content stream outright and a solid black
// rectangle drawn over the same area, then saves with garbage collection
// so the orphaned original content streams never reach the output file.
// Entities whose bbox is set are redacted at that rectangle; entities
// without a bbox and at least minTextSearchLength characters long fall
// back to the rectangle of the first page block whose text contains the
// entity's text verbatim. pages maps entity page numbers to that page's
// extracted content (needed only for the fallback path, since it carries
// block geometry the resolver could not use).
func (r *Redactor) Redact(srcPath, destPath string, entities []document.DetectedEntity, pages map[int]document.PageContent) error {
	if err := api.ValidateFile(srcPath, r.conf); err != nil {
		return fmt.Errorf("validating source PDF: %w", err)
	}

	boxesByPage := make(map[int][]document.BoundingBox)
	for _, entity := range entities {
		bbox := entity.Bbox
		if bbox == nil {
			if len(entity.Text) < minTextSearchLength {
				continue
			}
			found, fallbackBox := locateByTextSearch(entity, pages)
			if !found {
				continue
			}
			bbox = &fallbackBox
		}
		boxesByPage[entity.Page] = append(boxesByPage[entity.Page], *bbox)
	}

	ctx, err := api.ReadContextFile(srcPath)
	if err != nil {
		return fmt.Errorf("reading PDF context: %w", err)
	}

	for pageZeroBased, boxes := range boxesByPage {
		if err := r.redactPage(ctx, pageZeroBased, boxes); err != nil {
			return fmt.Errorf("redacting page %d: %w", pageZeroBased, err)
		}
	}

	if err := api.WriteContextFile(ctx, destPath); err != nil {
		return fmt.Errorf("writing redacted PDF: %w", err)
	}

	return optimizeFile(destPath, r.conf)
}

// redactPage replaces one page's Contents entry with a freshly built
// stream: the page's original content run through redactContentStream to
// drop every text-showing operator intersecting boxes, followed by fill
// operators that paint a black rectangle over each box. The old Contents
// object(s) are left dangling so optimizeFile's garbage collection strips
// them from the saved file; nothing in the output references the glyphs
// that used to sit under a redaction.
func (r *Redactor) redactPage(ctx *model.Context, pageZeroBased int, boxes []document.BoundingBox) error {
	pageDict, _, _, err := ctx.PageDict(pageZeroBased+1, false)
	if err != nil {
		return fmt.Errorf("locating page dictionary: %w", err)
	}
	if pageDict == nil {
		return fmt.Errorf("page has no page dictionary")
	}

	original, err := pageContentBytes(ctx, pageDict)
	if err != nil {
		return fmt.Errorf("reading page content: %w", err)
	}

	rewritten := redactContentStream(original, boxes)
	rewritten = append(rewritten, blackBoxOperators(boxes)...)

	return replacePageContent(ctx, pageDict, rewritten)
}

// pageContentBytes returns the fully decoded bytes of a page's content,
// concatenating every stream referenced by its Contents entry in order
// (Contents may be a single indirect reference or an array of them).
func pageContentBytes(ctx *model.Context, pageDict types.Dict) ([]byte, error) {
	entry, found := pageDict.Find("Contents")
	if !found {
		return nil, nil
	}
	return flattenContents(ctx, entry)
}

func flattenContents(ctx *model.Context, entry types.Object) ([]byte, error) {
	switch v := entry.(type) {
	case types.IndirectRef:
		obj, err := ctx.Dereference(v)
		if err != nil {
			return nil, fmt.Errorf("dereferencing content stream: %w", err)
		}
		sd, ok := obj.(types.StreamDict)
		if !ok {
			return nil, fmt.Errorf("Contents entry is not a stream, got %T", obj)
		}
		return streamContentBytes(&sd)
	case types.Array:
		var buf bytes.Buffer
		for _, el := range v {
			part, err := flattenContents(ctx, el)
			if err != nil {
				return nil, err
			}
			buf.Write(part)
			buf.WriteString("\n")
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported Contents entry type %T", entry)
	}
}

// streamContentBytes returns a content stream's decoded bytes, inflating
// Flate-compressed raw data when pdfcpu has not already decoded it into
// Content.
func streamContentBytes(sd *types.StreamDict) ([]byte, error) {
	if len(sd.Content) > 0 {
		return sd.Content, nil
	}
	if len(sd.Raw) == 0 {
		return nil, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(sd.Raw))
	if err != nil {
		return sd.Raw, nil
	}
	defer zr.Close()
	decoded, err := io.ReadAll(zr)
	if err != nil {
		return sd.Raw, nil
	}
	return decoded, nil
}

// replacePageContent registers content as a brand-new, uncompressed
// stream object and points the page's Contents entry at it exclusively,
// discarding whatever it pointed at before.
func replacePageContent(ctx *model.Context, pageDict types.Dict, content []byte) error {
	streamDict := types.NewDict()
	streamDict.Insert("Length", types.Integer(len(content)))

	streamLength := int64(len(content))
	sd := types.NewStreamDict(streamDict, 0, &streamLength, nil, nil)
	sd.Content = content
	sd.Raw = content

	indRef, err := ctx.IndRefForNewObject(sd)
	if err != nil {
		return fmt.Errorf("allocating content stream object: %w", err)
	}

	pageDict.Update("Contents", *indRef)
	return nil
}

// blackBoxOperators returns content-stream operators that paint an
// opaque black rectangle over each box, appended after the page's
// surviving content so the fill always sits on top.
func blackBoxOperators(boxes []document.BoundingBox) []byte {
	var buf bytes.Buffer
	for _, box := range boxes {
		width := box.X1 - box.X0
		height := box.Y1 - box.Y0
		if width <= 0 || height <= 0 {
			continue
		}
		fmt.Fprintf(&buf, "\nq\n0 0 0 rg\n%.3f %.3f %.3f %.3f re\nf\nQ\n", box.X0, box.Y0, width, height)
	}
	return buf.Bytes()
}

// locateByTextSearch finds the first page block whose text contains
// entity.Text verbatim and returns its rectangle. This only runs for
// entities the resolver left without a bbox (no block's character range
// overlapped the entity's offsets), so it is a genuinely independent
// recovery path rather than a repeat of resolution.
func locateByTextSearch(entity document.DetectedEntity, pages map[int]document.PageContent) (bool, document.BoundingBox) {
	page, ok := pages[entity.Page]
	if !ok {
		return false, document.BoundingBox{}
	}
	for _, block := range page.Blocks {
		if entity.Text != "" && strings.Contains(block.Text, entity.Text) {
			return true, block.Bbox
		}
	}
	return false, document.BoundingBox{}
}

func optimizeFile(path string, conf *model.Configuration) error {
	conf.OptimizeDuplicateContentStreams = true
	return api.OptimizeFile(path, "", conf)
}
