// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package extractor produces, for each page of an input document, the
// page's text plus the text blocks (rectangle + character range) needed
// to later resolve detected entities back to on-page coordinates.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/otiai10/gosseract/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/secure-doc-ai/pipeline/internal/document"
)

// ocrTriggerMinChars is the native-text threshold below which a PDF page
// is treated as scanned and routed through OCR.
const ocrTriggerMinChars = 20

// pointsPerPixelAt300DPI converts a 300 DPI raster pixel coordinate into
// PDF user-space points (1/72 inch): 72/300.
const pointsPerPixelAt300DPI = 72.0 / 300.0

// defaultFontHeight approximates a text span's rectangle height when the
// underlying library reports only a baseline Y and font size.
const defaultFontHeight = 12.0

// Extractor produces PageContent for PDF and image inputs.
type Extractor struct {
	ocrDPI              int
	ocrMinNativeChars   int
	tesseractConfigured bool
}

// New builds an Extractor. dpi is the raster resolution used for the OCR
// fallback path (spec default 300); minNativeChars is the non-whitespace
// character threshold below which a PDF page is routed to OCR (spec
// default 20).
func New(dpi, minNativeChars int) *Extractor {
	return &Extractor{
		ocrDPI:            dpi,
		ocrMinNativeChars: minNativeChars,
	}
}

// ExtractPDF walks every page of a PDF, preferring native text
// extraction and falling back to OCR for pages whose native text is too
// sparse to be real (scanned pages). It checks ctx before starting each
// page so a deadline expiring mid-document stops further rasterization
// and OCR work — by far the slowest part of this stage — instead of
// running every remaining page to completion regardless of the caller's
// timeout.
func (e *Extractor) ExtractPDF(ctx context.Context, path string) ([]document.PageContent, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	numPages := r.NumPage()
	pages := make([]document.PageContent, 0, numPages)

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, document.PageContent{PageNumber: i - 1})
			continue
		}

		page, err := e.extractNativePage(p, i-1)
		if err != nil {
			return nil, fmt.Errorf("extracting page %d: %w", i, err)
		}

		if nonWhitespaceCount(page.Text) < e.ocrMinNativeChars {
			ocrPage, err := e.ocrPDFPage(path, i-1, i)
			if err != nil {
				// OCR-unavailable degrades to empty text rather than aborting the job.
				page.Text = ""
				page.Blocks = nil
				page.OCRUsed = true
				pages = append(pages, page)
				continue
			}
			pages = append(pages, ocrPage)
			continue
		}

		pages = append(pages, page)
	}

	return pages, nil
}

// extractNativePage builds PageContent from a PDF page's row/span layout,
// constructing the page text and each span's character range together
// (rather than locating spans in the assembled text after the fact) so
// that a repeated span can never steal an earlier span's offsets.
func (e *Extractor) extractNativePage(p pdf.Page, pageNumber int) (document.PageContent, error) {
	rows, err := p.GetTextByRow()
	if err != nil {
		return document.PageContent{PageNumber: pageNumber}, nil
	}

	sortedRows := make([]*pdf.Row, 0, len(rows))
	for _, row := range rows {
		if row != nil && len(row.Content) > 0 {
			sortedRows = append(sortedRows, row)
		}
	}
	sort.Slice(sortedRows, func(i, j int) bool {
		return averageY(sortedRows[i].Content) < averageY(sortedRows[j].Content)
	})

	var buf strings.Builder
	var blocks []document.TextBlock

	for _, row := range sortedRows {
		spans := make([]pdf.Text, len(row.Content))
		copy(spans, row.Content)
		sort.Slice(spans, func(i, j int) bool { return spans[i].X < spans[j].X })

		for i, span := range spans {
			text := strings.TrimSpace(span.S)
			if text == "" {
				continue
			}

			charStart := buf.Len()
			buf.WriteString(text)
			charEnd := buf.Len()

			fontSize := span.FontSize
			if fontSize <= 0 {
				fontSize = defaultFontHeight
			}

			blocks = append(blocks, document.TextBlock{
				Text: text,
				Bbox: document.BoundingBox{
					X0: span.X,
					Y0: span.Y,
					X1: span.X + span.W,
					Y1: span.Y + fontSize,
				},
				PageNumber: pageNumber,
				CharStart:  charStart,
				CharEnd:    charEnd,
			})

			if i < len(spans)-1 {
				buf.WriteString(" ")
			}
		}
		buf.WriteString("\n")
	}

	return document.PageContent{
		PageNumber: pageNumber,
		Text:       buf.String(),
		Blocks:     blocks,
	}, nil
}

func averageY(elements []pdf.Text) float64 {
	if len(elements) == 0 {
		return 0
	}
	var total float64
	for _, el := range elements {
		total += el.Y
	}
	return total / float64(len(elements))
}

func nonWhitespaceCount(text string) int {
	count := 0
	for _, r := range text {
		if !isWhitespace(r) {
			count++
		}
	}
	return count
}

func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// ocrPDFPage rasterizes one PDF page at the configured DPI and OCRs it,
// producing word-level text blocks scaled from raster pixels into PDF
// user-space points.
func (e *Extractor) ocrPDFPage(path string, pageNumber, pageNr int) (document.PageContent, error) {
	rasterPath, cleanup, err := e.rasterizePage(path, pageNr)
	if err != nil {
		return document.PageContent{}, err
	}
	defer cleanup()

	imgData, err := os.ReadFile(rasterPath)
	if err != nil {
		return document.PageContent{}, err
	}

	return ocrImageBytes(imgData, pageNumber, scaleForDPI(e.ocrDPI))
}

// rasterizePage renders one page of the PDF at the extractor's configured
// DPI using pdfcpu's page-to-image renderer, returning the path to the
// rendered PNG and a cleanup function that removes it.
func (e *Extractor) rasterizePage(path string, pageNr int) (string, func(), error) {
	outDir, err := os.MkdirTemp("", "secure-doc-ai-ocr-*")
	if err != nil {
		return "", func() {}, err
	}
	cleanup := func() { os.RemoveAll(outDir) }

	res := model.Resolution{Width: 0, Height: 0, Resolution: e.ocrDPI}
	selectedPages := []string{fmt.Sprintf("%d", pageNr)}

	if err := api.RenderImagesFile(path, outDir, "", selectedPages, res, nil); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("rendering page %d: %w", pageNr, err)
	}

	rendered, err := filepath.Glob(filepath.Join(outDir, "*"))
	if err != nil || len(rendered) == 0 {
		cleanup()
		return "", func() {}, fmt.Errorf("no raster output for page %d", pageNr)
	}

	return rendered[0], cleanup, nil
}

// scaleForDPI returns the raster-pixel-to-PDF-point conversion factor for
// a given render DPI (72/dpi; 72/300 at the spec default).
func scaleForDPI(dpi int) float64 {
	if dpi <= 0 {
		return pointsPerPixelAt300DPI
	}
	return 72.0 / float64(dpi)
}

// ocrImageBytes runs Tesseract word-level OCR over raw image bytes and
// builds a PageContent whose blocks carry OCR-reported word boxes scaled
// into PDF points.
func ocrImageBytes(imgData []byte, pageNumber int, scale float64) (document.PageContent, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImageFromBytes(imgData); err != nil {
		return document.PageContent{}, fmt.Errorf("loading OCR image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return document.PageContent{}, fmt.Errorf("running OCR: %w", err)
	}

	var buf strings.Builder
	var blocks []document.TextBlock

	for _, box := range boxes {
		word := strings.TrimSpace(box.Word)
		if word == "" {
			continue
		}

		charStart := buf.Len()
		buf.WriteString(word)
		charEnd := buf.Len()
		buf.WriteString(" ")

		blocks = append(blocks, document.TextBlock{
			Text:       word,
			Bbox:       scaleRect(box.Box, scale),
			PageNumber: pageNumber,
			CharStart:  charStart,
			CharEnd:    charEnd,
		})
	}

	return document.PageContent{
		PageNumber: pageNumber,
		Text:       buf.String(),
		Blocks:     blocks,
		OCRUsed:    true,
	}, nil
}

func scaleRect(r image.Rectangle, scale float64) document.BoundingBox {
	return document.BoundingBox{
		X0: float64(r.Min.X) * scale,
		Y0: float64(r.Min.Y) * scale,
		X1: float64(r.Max.X) * scale,
		Y1: float64(r.Max.Y) * scale,
	}
}

// ExtractImage builds a single-page PageContent from a standalone raster
// image file, using the image's own pixel coordinates as PDF points
// (1:1 — an image file has no intrinsic PDF coordinate system). EXIF
// metadata (GPS coordinates, the Artist tag) is appended as synthetic
// text blocks so the same detect/resolve/redact path that flags OCR'd
// page text also flags PII carried in an image's own metadata.
func ExtractImage(path string) (document.PageContent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return document.PageContent{}, fmt.Errorf("reading image: %w", err)
	}
	page, err := ocrImageBytes(data, 0, 1.0)
	if err != nil {
		return page, err
	}
	return appendEXIFMetadata(page, data), nil
}

// exifGPSPrefix and exifOwnerPrefix mark synthetic EXIF text blocks so
// detector.go can match them with dedicated patterns rather than the
// general-purpose regex vocabulary built for free-form page text.
const (
	exifGPSPrefix   = "EXIF_GPS:"
	exifOwnerPrefix = "EXIF_OWNER:"
)

// appendEXIFMetadata decodes EXIF metadata from raw image bytes and
// appends any GPS coordinate and Artist tag it finds as additional text
// blocks on page, continuing page.Text's character offsets so the new
// blocks behave exactly like any other extracted block downstream. A
// file with no EXIF segment (or none of these specific tags) is returned
// unchanged — this never fails the extraction.
func appendEXIFMetadata(page document.PageContent, imgData []byte) document.PageContent {
	x, err := exif.Decode(bytes.NewReader(imgData))
	if err != nil {
		return page
	}

	var buf strings.Builder
	buf.WriteString(page.Text)
	blocks := page.Blocks

	appendLine := func(line string) {
		charStart := buf.Len()
		buf.WriteString(line)
		charEnd := buf.Len()
		buf.WriteString("\n")
		blocks = append(blocks, document.TextBlock{
			Text:       line,
			PageNumber: page.PageNumber,
			CharStart:  charStart,
			CharEnd:    charEnd,
		})
	}

	if lat, long, latLongErr := x.LatLong(); latLongErr == nil {
		appendLine(fmt.Sprintf("%s %.6f,%.6f", exifGPSPrefix, lat, long))
	}

	if tag, tagErr := x.Get(exif.Artist); tagErr == nil {
		if owner := strings.Trim(tag.String(), "\""); owner != "" {
			appendLine(fmt.Sprintf("%s %s", exifOwnerPrefix, owner))
		}
	}

	page.Text = buf.String()
	page.Blocks = blocks
	return page
}
