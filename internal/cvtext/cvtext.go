// Package cvtext extracts plain text from local CV files for previews.
package cvtext

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	"github.com/spigell/cv-matcher/internal/utils"
)

// PreviewLength is the maximum length of a preview, in characters.
const PreviewLength = 120

var xmlTag = regexp.MustCompile(`<[^>]*>`)

// Extract returns the plain text of a PDF or DOCX file.
func Extract(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		return extractPDF(path)
	case ".docx":
		return extractDocx(path)
	default:
		return "", fmt.Errorf("unsupported file type %q", ext)
	}
}

// Preview returns the first PreviewLength characters of the file text.
// Extraction failures are reported inside the preview.
func Preview(path string) string {
	text, err := Extract(path)
	if err != nil {
		return fmt.Sprintf("<<failed to extract text: %s>>", err)
	}
	return utils.TruncateForLog(text, PreviewLength)
}

func extractPDF(path string) (text string, err error) {
	// The pdf reader panics on some malformed documents.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	b, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	if _, err := buf.ReadFrom(b); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func extractDocx(path string) (string, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer doc.Close()

	content := xmlTag.ReplaceAllString(doc.Editable().GetContent(), " ")
	return strings.Join(strings.Fields(content), " "), nil
}
