package pdf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BenHamm/bluesky-times/logger"
	"github.com/PuerkitoBio/goquery"
	wkhtmltopdf "github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"golang.org/x/net/html"
)

// ErrMalformedMarkup reports markup the exporter refuses to print. Export
// never leaves a partial or empty PDF behind it.
var ErrMalformedMarkup = errors.New("malformed document markup")

// Exporter drives wkhtmltopdf with the edition's page geometry.
type Exporter struct {
	PageSize string
	MarginMM uint
	Title    string
}

// ValidateMarkup checks the document for the pieces a printable edition
// cannot be missing. It runs before any engine or filesystem work.
func ValidateMarkup(markup string) error {
	if strings.TrimSpace(markup) == "" {
		return fmt.Errorf("%w: empty document", ErrMalformedMarkup)
	}
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMarkup, err)
	}
	doc := goquery.NewDocumentFromNode(root)
	if doc.Find(".masthead").Length() == 0 {
		return fmt.Errorf("%w: missing masthead", ErrMalformedMarkup)
	}
	if doc.Find(".section-header").Length() == 0 {
		return fmt.Errorf("%w: no sections", ErrMalformedMarkup)
	}
	if strings.TrimSpace(doc.Find("body").Text()) == "" {
		return fmt.Errorf("%w: empty body", ErrMalformedMarkup)
	}
	return nil
}

// Export prints the markup to a letter-sized PDF at outputPath. The raw
// markup lands next to the PDF with an .html extension for inspection. The
// PDF is written to a temporary file and renamed into place, so a failed run
// never clobbers an earlier edition.
func (e Exporter) Export(markup, outputPath string) error {
	if err := ValidateMarkup(markup); err != nil {
		return err
	}

	htmlPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".html"
	if err := os.WriteFile(htmlPath, []byte(markup), 0644); err != nil {
		return fmt.Errorf("writing markup to %s: %w", htmlPath, err)
	}
	logger.Log.Debugf("wrote debug markup to %s", htmlPath)

	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return fmt.Errorf("launching wkhtmltopdf: %w", err)
	}
	pdfg.PageSize.Set(pageSizeName(e.PageSize))
	pdfg.MarginTop.Set(e.MarginMM)
	pdfg.MarginBottom.Set(e.MarginMM)
	pdfg.MarginLeft.Set(e.MarginMM)
	pdfg.MarginRight.Set(e.MarginMM)
	if e.Title != "" {
		pdfg.Title.Set(e.Title)
	}

	page := wkhtmltopdf.NewPageReader(strings.NewReader(markup))
	page.FooterCenter.Set("[page]")
	page.FooterFontSize.Set(7)
	pdfg.AddPage(page)

	if err := pdfg.Create(); err != nil {
		return fmt.Errorf("rendering PDF: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".bluesky-times-*.pdf")
	if err != nil {
		return fmt.Errorf("creating temporary PDF: %w", err)
	}
	if _, err := tmp.Write(pdfg.Buffer().Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing PDF: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing PDF: %w", err)
	}
	if err := os.Rename(tmp.Name(), outputPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("moving PDF into place: %w", err)
	}
	return nil
}

// pageSizeName maps a style-file page size onto the engine's names. Anything
// unrecognized prints on letter, the edition's designed page.
func pageSizeName(size string) string {
	if strings.EqualFold(strings.TrimSpace(size), "a4") {
		return wkhtmltopdf.PageSizeA4
	}
	return wkhtmltopdf.PageSizeLetter
}
