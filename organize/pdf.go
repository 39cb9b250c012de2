package organize

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
)

// pdfReader is one PDF text-layer strategy. Strategy 1 is the MuPDF
// text layer (fastest, also renders pages); strategy 2 is a second
// library used when the first yields nothing.
type pdfReader interface {
	Name() string
	ExtractText(path string, maxPages int) (string, error)
	// RenderPage returns PNG bytes of the zero-based page at the given
	// DPI, or an error when the strategy cannot render.
	RenderPage(path string, page int, dpi float64) ([]byte, error)
}

// --- strategy 1: MuPDF (go-fitz) ---

type fitzReader struct{}

func (fitzReader) Name() string { return "pdf_text" }

func (fitzReader) ExtractText(path string, maxPages int) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", wrapPDFErr(err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}

	var b strings.Builder
	for i := 0; i < pages; i++ {
		text, err := doc.Text(i)
		if err != nil {
			return b.String(), wrapPDFErr(err)
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (fitzReader) RenderPage(path string, page int, dpi float64) ([]byte, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, wrapPDFErr(err)
	}
	defer doc.Close()

	if page >= doc.NumPage() {
		return nil, fmt.Errorf("render page %d: out of range", page)
	}
	img, err := doc.ImageDPI(page, dpi)
	if err != nil {
		return nil, wrapPDFErr(err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode page png: %w", err)
	}
	return buf.Bytes(), nil
}

// --- strategy 2: pure-Go text layer (ledongthuc/pdf) ---

type altReader struct{}

func (altReader) Name() string { return "pdf_text_alt" }

func (altReader) ExtractText(path string, maxPages int) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", wrapPDFErr(err)
	}
	defer f.Close()

	pages := r.NumPage()
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}

	var b strings.Builder
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue // a single bad page does not void the rest
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (altReader) RenderPage(string, int, float64) ([]byte, error) {
	return nil, fmt.Errorf("render: not supported by this strategy")
}

// wrapPDFErr tags library errors whose kind is already evident.
func wrapPDFErr(err error) error {
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "encrypt") || strings.Contains(text, "password"):
		return withKind(KindEncrypted, fmt.Errorf("encrypted: %w", err))
	case strings.Contains(text, "malformed") || strings.Contains(text, "corrupt") ||
		strings.Contains(text, "not a pdf") || strings.Contains(text, "no objects"):
		return withKind(KindUnsupportedFormat, fmt.Errorf("corrupt pdf: %w", err))
	}
	return err
}
