// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package redactor

import (
	"bytes"
	"testing"

	"github.com/secure-doc-ai/pipeline/internal/document"
	"github.com/stretchr/testify/assert"
)

func TestLocateByTextSearch_FindsContainingBlock(t *testing.T) {
	pages := map[int]document.PageContent{
		0: {
			PageNumber: 0,
			Blocks: []document.TextBlock{
				{Text: "call 555-123-4567 now", Bbox: document.BoundingBox{X0: 1, Y0: 2, X1: 3, Y1: 4}},
			},
		},
	}
	entity := document.DetectedEntity{Page: 0, Text: "555-123-4567"}

	found, bbox := locateByTextSearch(entity, pages)

	assert.True(t, found)
	assert.Equal(t, document.BoundingBox{X0: 1, Y0: 2, X1: 3, Y1: 4}, bbox)
}

func TestLocateByTextSearch_NoMatchOnUnknownPage(t *testing.T) {
	entity := document.DetectedEntity{Page: 5, Text: "whatever"}
	found, _ := locateByTextSearch(entity, map[int]document.PageContent{})
	assert.False(t, found)
}

func TestLocateByTextSearch_RejectsEmptyEntityText(t *testing.T) {
	pages := map[int]document.PageContent{
		0: {Blocks: []document.TextBlock{{Text: "anything"}}},
	}
	entity := document.DetectedEntity{Page: 0, Text: ""}
	found, _ := locateByTextSearch(entity, pages)
	assert.False(t, found)
}

func TestMinTextSearchLength_MatchesSpecFloor(t *testing.T) {
	assert.Equal(t, 4, minTextSearchLength)
}

func TestRedactContentStream_DropsTjUnderTargetBox(t *testing.T) {
	content := []byte("BT\n/F1 12 Tf\n100 700 Td\n(123-45-6789) Tj\nET")
	targets := []document.BoundingBox{{X0: 90, Y0: 690, X1: 200, Y1: 720}}

	out := redactContentStream(content, targets)

	assert.NotContains(t, string(out), "123-45-6789")
	assert.Contains(t, string(out), "BT")
	assert.Contains(t, string(out), "ET")
	assert.Contains(t, string(out), "Tf")
}

func TestRedactContentStream_KeepsTjOutsideTargetBox(t *testing.T) {
	content := []byte("BT\n/F1 12 Tf\n100 700 Td\n(123-45-6789) Tj\nET")
	targets := []document.BoundingBox{{X0: 1000, Y0: 1000, X1: 1100, Y1: 1100}}

	out := redactContentStream(content, targets)

	assert.Contains(t, string(out), "123-45-6789")
}

func TestRedactContentStream_DropsTJArrayUnderTargetBox(t *testing.T) {
	content := []byte("BT\n/F1 12 Tf\n100 700 Td\n[(Secret) -30 (Name)] TJ\nET")
	targets := []document.BoundingBox{{X0: 90, Y0: 690, X1: 300, Y1: 720}}

	out := redactContentStream(content, targets)

	assert.NotContains(t, string(out), "Secret")
	assert.NotContains(t, string(out), "Name")
	assert.Contains(t, string(out), "BT")
	assert.Contains(t, string(out), "ET")
}

func TestRedactContentStream_DropsApostropheShowOperator(t *testing.T) {
	content := []byte("BT\n/F1 12 Tf\n12 TL\n100 700 Td\n(123-45-6789) '\nET")
	targets := []document.BoundingBox{{X0: 90, Y0: 680, X1: 200, Y1: 720}}

	out := redactContentStream(content, targets)

	assert.NotContains(t, string(out), "123-45-6789")
}

func TestRedactContentStream_PassesInlineImageBinaryThrough(t *testing.T) {
	var content bytes.Buffer
	content.WriteString("q\nBI\n/W 2\n/H 2\n/BPC 8\n/CS /G\nID\n")
	imageBytes := []byte{0x00, 0x01, 0xFF, 0x10}
	content.Write(imageBytes)
	content.WriteString("\nEI\nQ")
	targets := []document.BoundingBox{{X0: 0, Y0: 0, X1: 10000, Y1: 10000}}

	out := redactContentStream(content.Bytes(), targets)

	assert.True(t, bytes.Contains(out, imageBytes), "inline image payload must survive untouched")
	assert.Contains(t, string(out), "BI")
	assert.Contains(t, string(out), "EI")
}

func TestRedactContentStream_LeavesNonTextOperatorsUntouched(t *testing.T) {
	content := []byte("q\n1 0 0 1 0 0 cm\n0 0 0 rg\n0 0 100 100 re\nf\nQ")

	out := redactContentStream(content, nil)

	assert.Equal(t, string(content), string(out))
}

func TestBoxesIntersect_MarginExpandsHitTest(t *testing.T) {
	a := document.BoundingBox{X0: 0, Y0: 0, X1: 10, Y1: 10}
	justOutside := document.BoundingBox{X0: 11, Y0: 0, X1: 20, Y1: 10}

	assert.True(t, boxesIntersect(a, justOutside), "margin should treat near-adjacent boxes as intersecting")
}

func TestBlackBoxOperators_EmitsFillRectPerBox(t *testing.T) {
	boxes := []document.BoundingBox{{X0: 10, Y0: 20, X1: 30, Y1: 40}}

	out := blackBoxOperators(boxes)

	assert.Contains(t, string(out), "0 0 0 rg")
	assert.Contains(t, string(out), "re")
	assert.Contains(t, string(out), "f")
}

func TestBlackBoxOperators_SkipsDegenerateBoxes(t *testing.T) {
	boxes := []document.BoundingBox{{X0: 10, Y0: 20, X1: 10, Y1: 20}}

	out := blackBoxOperators(boxes)

	assert.Empty(t, out)
}
