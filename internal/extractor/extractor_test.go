// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package extractor

import (
	"testing"

	"github.com/secure-doc-ai/pipeline/internal/document"
	"github.com/stretchr/testify/assert"
)

func TestNonWhitespaceCount_IgnoresSpacingOnly(t *testing.T) {
	assert.Equal(t, 0, nonWhitespaceCount("   \n\t  \n"))
	assert.Equal(t, 4, nonWhitespaceCount("a b\nc\td"))
}

func TestScaleForDPI_MatchesSpecDefault(t *testing.T) {
	assert.InDelta(t, 72.0/300.0, scaleForDPI(300), 1e-9)
}

func TestScaleForDPI_FallsBackWhenUnset(t *testing.T) {
	assert.InDelta(t, pointsPerPixelAt300DPI, scaleForDPI(0), 1e-9)
}

func TestAverageY_EmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, averageY(nil))
}

func TestNew_CarriesConfiguredThresholds(t *testing.T) {
	e := New(300, 20)
	assert.Equal(t, 300, e.ocrDPI)
	assert.Equal(t, 20, e.ocrMinNativeChars)
}

// TestAppendEXIFMetadata_NoEXIFSegmentLeavesPageUnchanged confirms a file
// with no decodable EXIF segment (here, plain bytes with no JPEG/TIFF
// header at all) never fails extraction — it just returns page as-is.
func TestAppendEXIFMetadata_NoEXIFSegmentLeavesPageUnchanged(t *testing.T) {
	page := document.PageContent{
		PageNumber: 0,
		Text:       "some ocr text\n",
		Blocks: []document.TextBlock{
			{Text: "some ocr text", PageNumber: 0, CharStart: 0, CharEnd: 13},
		},
	}

	got := appendEXIFMetadata(page, []byte("not an image"))

	assert.Equal(t, page.Text, got.Text)
	assert.Equal(t, page.Blocks, got.Blocks)
}

// TestEXIFPrefixes_MatchDetectorVocabulary pins the exact prefix strings
// appendEXIFMetadata emits, since internal/detector's EXIF_GPS_LOCATION
// and EXIF_CAMERA_OWNER patterns are written against these literals and
// would silently stop matching if either prefix drifted.
func TestEXIFPrefixes_MatchDetectorVocabulary(t *testing.T) {
	assert.Equal(t, "EXIF_GPS:", exifGPSPrefix)
	assert.Equal(t, "EXIF_OWNER:", exifOwnerPrefix)
}
