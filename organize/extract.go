package organize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	pdfTextMaxPages = 100 // guardrail for the text-layer strategies
	ocrMaxPages     = 4   // pages rasterized for OCR
	renderDPI       = 250.0
	minUsefulChars  = 40 // below this, the longest strategy wins
)

// ContentExtractor produces ExtractedContent from a file path.
// Implemented by Extractor; tests substitute fakes.
type ContentExtractor interface {
	Extract(ctx context.Context, path string) (*ExtractedContent, error)
}

// Extractor tries ordered strategies (text layer, alternate text
// layer, rendered-page OCR) and scores the result. It also renders
// page 1 to PNG for vision-capable providers.
type Extractor struct {
	root              string
	lang              string
	detectOrientation bool

	pdfText pdfReader
	pdfAlt  pdfReader
	ocr     ocrEngine
	orient  orientationDetector
}

// NewExtractor wires the real strategies for the given input root.
func NewExtractor(cfg Config) *Extractor {
	engine := tesseractEngine{}
	e := &Extractor{
		root:              cfg.InputDir,
		lang:              cfg.OCRLanguage,
		detectOrientation: cfg.DetectOrientation,
		pdfText:           fitzReader{},
		pdfAlt:            altReader{},
		ocr:               engine,
	}
	if cfg.DetectOrientation {
		e.orient = &samplingDetector{engine: engine, lang: cfg.OCRLanguage}
	}
	return e
}

// Extract runs the strategy chain for one file.
// The returned error is tagged with its kind where known; the content
// carries the quality verdict either way.
func (e *Extractor) Extract(ctx context.Context, path string) (*ExtractedContent, error) {
	l := sub("extract")

	if err := e.guard(path); err != nil {
		return &ExtractedContent{Quality: QualityFailed, ErrMsg: err.Error()}, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pdf" {
		return e.extractImage(ctx, path)
	}

	// Page-1 image for the visual channel, independent of which text
	// strategy wins.
	pageImage, renderErr := e.pdfText.RenderPage(path, 0, renderDPI)
	if renderErr != nil {
		l.Debug("page render failed", "path", path, "err", renderErr)
	}

	type candidate struct {
		text   string
		method string
		ocr    bool
	}
	var candidates []candidate

	// Strategy 1: structured text.
	text1, err1 := e.pdfText.ExtractText(path, pdfTextMaxPages)
	if err1 == nil && strings.TrimSpace(text1) != "" {
		candidates = append(candidates, candidate{text1, e.pdfText.Name(), false})
		if len(strings.TrimSpace(text1)) >= minUsefulChars {
			return e.finish(text1, pageImage, e.pdfText.Name(), false), nil
		}
	}

	// Strategy 2: alternate text layer, only when 1 yielded nothing
	// useful or errored.
	text2, err2 := e.pdfAlt.ExtractText(path, pdfTextMaxPages)
	if err2 != nil {
		if kindIs(err2, KindEncrypted) {
			return &ExtractedContent{Quality: QualityFailed, ErrMsg: "encrypted"}, err2
		}
		l.Debug("alternate strategy failed", "path", path, "err", err2)
	} else if strings.TrimSpace(text2) != "" {
		candidates = append(candidates, candidate{text2, e.pdfAlt.Name(), false})
		if len(strings.TrimSpace(text2)) >= minUsefulChars {
			return e.finish(text2, pageImage, e.pdfAlt.Name(), false), nil
		}
	}

	// Strategy 3: OCR over rasterized pages.
	text3, err3 := e.ocrPDF(ctx, path)
	if err3 != nil {
		l.Debug("ocr strategy failed", "path", path, "err", err3)
	} else if strings.TrimSpace(text3) != "" {
		candidates = append(candidates, candidate{text3, "ocr", true})
		if len(strings.TrimSpace(text3)) >= minUsefulChars {
			return e.finish(text3, pageImage, "ocr", true), nil
		}
	}

	// Under 40 chars everywhere: longest text wins, tie to declared
	// strategy order.
	var best *candidate
	for i := range candidates {
		if best == nil || len(candidates[i].text) > len(best.text) {
			best = &candidates[i]
		}
	}
	if best != nil && strings.TrimSpace(best.text) != "" {
		return e.finish(best.text, pageImage, best.method, best.ocr), nil
	}

	if len(pageImage) > 0 {
		// Image-only: the visual channel still gives providers a shot.
		return &ExtractedContent{PageImage: pageImage, Quality: QualityPoor, Method: "render"}, nil
	}

	err := firstErr(err1, err2, err3)
	if err == nil {
		err = kindErrorf(KindUnsupportedFormat, "no content extracted from %s", filepath.Base(path))
	}
	return &ExtractedContent{Quality: QualityFailed, ErrMsg: err.Error()}, err
}

// extractImage handles raster inputs: OCR directly, with the image
// itself as the visual channel.
func (e *Extractor) extractImage(ctx context.Context, path string) (*ExtractedContent, error) {
	png, err := loadImagePNG(path)
	if err != nil {
		return &ExtractedContent{Quality: QualityFailed, ErrMsg: err.Error()}, err
	}
	if err := ctx.Err(); err != nil {
		return &ExtractedContent{Quality: QualityFailed, ErrMsg: err.Error()}, err
	}

	img := png
	if e.orient != nil {
		if o := e.orient.Orientation(img); o != 0 {
			sub("extract").Debug("correcting orientation", "path", path, "deg", o)
			img = correctOrientation(img, o)
		}
	}

	text, ocrErr := e.ocr.Recognize(img, e.lang)
	if ocrErr != nil || strings.TrimSpace(text) == "" {
		if ocrErr != nil {
			sub("extract").Debug("image ocr failed", "path", path, "err", ocrErr)
		}
		return &ExtractedContent{PageImage: png, Quality: QualityPoor, Method: "ocr"}, nil
	}
	return e.finish(text, png, "ocr", true), nil
}

// ocrPDF rasterizes up to ocrMaxPages pages and concatenates their OCR
// text.
func (e *Extractor) ocrPDF(ctx context.Context, path string) (string, error) {
	var b strings.Builder
	for page := 0; page < ocrMaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return b.String(), err
		}
		img, err := e.pdfText.RenderPage(path, page, renderDPI)
		if err != nil {
			if page == 0 {
				return "", err
			}
			break // past the last page
		}
		if e.orient != nil {
			if o := e.orient.Orientation(img); o != 0 {
				img = correctOrientation(img, o)
			}
		}
		text, err := e.ocr.Recognize(img, e.lang)
		if err != nil {
			return b.String(), err
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// finish scores the text and assembles the content. OCR-derived text
// is downgraded one tier.
func (e *Extractor) finish(text string, pageImage []byte, method string, viaOCR bool) *ExtractedContent {
	q := ScoreText(text)
	if viaOCR {
		q = q.downgrade()
	}
	if q == QualityFailed && len(pageImage) == 0 {
		return &ExtractedContent{Quality: QualityFailed, Method: method, ErrMsg: "no substantive content"}
	}
	if q == QualityFailed {
		// Invariant: Failed carries no image; keep the image by
		// capping at Poor instead.
		q = QualityPoor
	}
	return &ExtractedContent{Text: text, PageImage: pageImage, Quality: q, Method: method}
}

// guard applies the security constraints: path inside the input root,
// size within 50 MB, not empty.
func (e *Extractor) guard(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	root, err := filepath.Abs(e.root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return kindErrorf(KindUnsupportedFormat, "path escapes input root: %s", path)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if info.Size() == 0 {
		return kindErrorf(KindUnsupportedFormat, "empty file: %s", filepath.Base(path))
	}
	if info.Size() > maxInputSize {
		return kindErrorf(KindUnsupportedFormat, "file exceeds 50MB: %s", filepath.Base(path))
	}
	return nil
}

// kindIs reports whether err carries the given tagged kind.
func kindIs(err error, kind Kind) bool {
	c := Classify(err)
	return c.Kind == kind
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
