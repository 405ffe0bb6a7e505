package pdf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	wkhtmltopdf "github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/stretchr/testify/require"
)

const printableMarkup = `<!DOCTYPE html>
<html><body>
<div class="masthead"><h1>The Bluesky Times</h1></div>
<div class="section-header"><h2>All Posts</h2></div>
<div class="post"><div class="post-text">something happened</div></div>
</body></html>`

func TestValidateMarkup(t *testing.T) {
	require.Equal(t, nil, ValidateMarkup(printableMarkup))
}

func TestValidateMarkupRejectsEmptyDocument(t *testing.T) {
	err := ValidateMarkup("   \n")
	require.True(t, errors.Is(err, ErrMalformedMarkup))
	require.Contains(t, err.Error(), "empty document")
}

func TestValidateMarkupRejectsMissingMasthead(t *testing.T) {
	err := ValidateMarkup(`<html><body><div class="section-header"><h2>X</h2></div></body></html>`)
	require.True(t, errors.Is(err, ErrMalformedMarkup))
	require.Contains(t, err.Error(), "missing masthead")
}

func TestValidateMarkupRejectsNoSections(t *testing.T) {
	err := ValidateMarkup(`<html><body><div class="masthead"><h1>X</h1></div></body></html>`)
	require.True(t, errors.Is(err, ErrMalformedMarkup))
	require.Contains(t, err.Error(), "no sections")
}

func TestExportRefusesMalformedMarkup(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "edition.pdf")

	err := Exporter{PageSize: "Letter", MarginMM: 10}.Export("<html><body></body></html>", outputPath)
	require.True(t, errors.Is(err, ErrMalformedMarkup))

	// Nothing was written, not even the debug markup
	_, statErr := os.Stat(outputPath)
	require.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(dir, "edition.html"))
	require.True(t, os.IsNotExist(statErr))
}

func TestPageSizeName(t *testing.T) {
	require.Equal(t, wkhtmltopdf.PageSizeLetter, pageSizeName(""))
	require.Equal(t, wkhtmltopdf.PageSizeLetter, pageSizeName("Letter"))
	require.Equal(t, wkhtmltopdf.PageSizeA4, pageSizeName("a4"))
	require.Equal(t, wkhtmltopdf.PageSizeLetter, pageSizeName("tabloid"))
}
