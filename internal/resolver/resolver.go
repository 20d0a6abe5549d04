// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package resolver maps each detected entity's character-offset range to
// a bounding box on its page, bridging the text-offset-based detector and
// the rectangle-based redactor.
package resolver

import "github.com/secure-doc-ai/pipeline/internal/document"

// Resolve assigns a bbox to every entity in entities whose bbox is not
// already set (entities carrying a bbox, e.g. from OCR word boxes, are
// left untouched and skip this stage entirely). pages maps page number to
// that page's PageContent.
//
// For each entity, the blocks whose character range overlaps
// [entity.Start, entity.End) are collected from the entity's page:
//   - no overlapping blocks: bbox remains unset (redactor falls back to
//     text search).
//   - exactly one overlapping block: bbox is that block's rectangle
//     verbatim.
//   - multiple overlapping blocks: bbox is the axis-aligned union of
//     their rectangles.
func Resolve(entities []document.DetectedEntity, pages map[int]document.PageContent) {
	for i := range entities {
		entity := &entities[i]
		if entity.Bbox != nil {
			continue
		}

		page, ok := pages[entity.Page]
		if !ok {
			continue
		}

		overlapping := page.BlocksOverlapping(entity.Start, entity.End)
		if len(overlapping) == 0 {
			continue
		}

		bbox := overlapping[0].Bbox
		for _, block := range overlapping[1:] {
			bbox = bbox.Union(block.Bbox)
		}
		entity.Bbox = &bbox
	}
}
