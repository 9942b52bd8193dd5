package services

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"github.com/edulight/edulight-backend/internal/apperr"
)

// ExtractDocumentText sniffs the true file type from bytes and extracts plain
// text accordingly. Supported: PDF, DOCX, TXT/MD. The lecture preview and the
// publish pipeline share this path, so it must not depend on the stored
// file_type column, which reflects the upload form and not the bytes.
func ExtractDocumentText(originalName string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))

	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file: name=%s", apperr.ErrFormat, originalName)
	}

	if isPDF(data) {
		return extractPDF(data)
	}
	if isZip(data) {
		if hasZipPrefix(data, "word/") {
			return extractDOCX(data)
		}
		return "", fmt.Errorf("%w: unsupported zip container: name=%s", apperr.ErrFormat, originalName)
	}
	if isProbablyText(data) || ext == ".txt" || ext == ".md" {
		return normalizeText(string(data)), nil
	}

	if ext == ".pdf" {
		return "", fmt.Errorf("%w: file claims pdf but missing %%PDF header: name=%s", apperr.ErrFormat, originalName)
	}
	if ext == ".docx" || ext == ".doc" {
		return "", fmt.Errorf("%w: file claims docx but is not a valid zip container: name=%s", apperr.ErrFormat, originalName)
	}

	return "", fmt.Errorf("%w: unsupported file type: name=%s ext=%s", apperr.ErrFormat, originalName, ext)
}

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

func hasZipPrefix(zipBytes []byte, prefix string) bool {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, prefix) {
			return true
		}
	}
	return false
}

func isProbablyText(b []byte) bool {
	sample := b[:minInt(len(b), 4096)]
	good := 0
	for _, c := range sample {
		if c == 0x00 {
			return false
		}
		if c == '\n' || c == '\r' || c == '\t' || (c >= 0x20 && c <= 0x7E) || c >= 0x80 {
			good++
		}
	}
	return float64(good)/float64(len(sample)) > 0.9
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// extractPDF walks pages in order and joins non-empty pages with page
// markers, so chunk boundaries downstream tend to fall between pages.
func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: pdf reader: %v", apperr.ErrParse, err)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			// Skip broken pages rather than losing the whole document.
			continue
		}
		pageText = normalizeText(pageText)
		if pageText == "" {
			continue
		}
		pages = append(pages, fmt.Sprintf("--- Страница %d ---\n\n%s", i, pageText))
	}
	if len(pages) == 0 {
		return "", nil
	}
	return strings.Join(pages, "\n\n"), nil
}

// extractDOCX pulls paragraph text out of word/document.xml, joining
// non-empty paragraphs with blank lines.
func extractDOCX(zipBytes []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", fmt.Errorf("%w: docx zip: %v", apperr.ErrParse, err)
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("%w: docx missing word/document.xml", apperr.ErrParse)
	}

	rc, err := doc.Open()
	if err != nil {
		return "", err
	}
	raw, readErr := io.ReadAll(rc)
	_ = rc.Close()
	if readErr != nil {
		return "", readErr
	}

	paragraphs := docxParagraphs(raw)
	return strings.Join(paragraphs, "\n\n"), nil
}

// docxParagraphs gathers the text runs (<w:t>) of each paragraph (<w:p>)
// and returns the non-empty paragraphs in document order.
func docxParagraphs(xmlBytes []byte) []string {
	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	var paragraphs []string
	var cur strings.Builder
	depth := 0

	flush := func() {
		if s := normalizeText(cur.String()); s != "" {
			paragraphs = append(paragraphs, s)
		}
		cur.Reset()
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "p":
				if depth > 0 {
					flush()
				}
				depth++
			case "t":
				var v string
				_ = dec.DecodeElement(&v, &el)
				cur.WriteString(v)
			}
		case xml.EndElement:
			if el.Name.Local == "p" && depth > 0 {
				depth--
				if depth == 0 {
					flush()
				}
			}
		}
	}
	flush()
	return paragraphs
}

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	out := strings.Join(lines, "\n")
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(out)
}
