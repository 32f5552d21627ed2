package fileprocessing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/russross/blackfriday/v2"
	"github.com/unidoc/unioffice/document"
)

// IdentifyFileType maps content to one of .pdf, .txt, .md, .docx or .doc.
func IdentifyFileType(b []byte) (string, error) {
	if bytes.HasPrefix(b, []byte("%PDF-")) {
		return ".pdf", nil
	}
	mime := mimetype.Detect(b).String()
	switch {
	case strings.HasPrefix(mime, "application/pdf"):
		return ".pdf", nil
	case strings.HasPrefix(mime, "text/markdown"):
		return ".md", nil
	case strings.HasPrefix(mime, "text/plain"):
		if looksLikeMarkdown(b) {
			return ".md", nil
		}
		return ".txt", nil
	case strings.HasPrefix(mime, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"):
		return ".docx", nil
	case strings.HasPrefix(mime, "application/msword"):
		return ".doc", nil
	default:
		return "", errors.New("unknown or unsupported file type: " + mime)
	}
}

var markdownMarkers = [][]byte{
	[]byte("# "), []byte("## "), []byte("- "), []byte("* "),
	[]byte("```"), []byte("---"), []byte("]("),
}

func looksLikeMarkdown(b []byte) bool {
	for _, m := range markdownMarkers {
		if bytes.Contains(b, m) {
			return true
		}
	}
	return false
}

// ExtractText returns normalized text for content of the given type.
func ExtractText(typ string, b []byte) (string, error) {
	switch typ {
	case ".pdf":
		return ExtractTextFromPDF(b)
	case ".txt", ".text":
		return ProcessText(string(b)), nil
	case ".md":
		return ExtractTextFromMarkdown(b), nil
	case ".doc", ".docx":
		return ExtractTextFromDOCX(b)
	default:
		return "", fmt.Errorf("unsupported file type: %s", typ)
	}
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// ExtractTextFromMarkdown renders markdown and keeps only the text.
func ExtractTextFromMarkdown(b []byte) string {
	html := blackfriday.Run(b)
	return ProcessText(htmlTag.ReplaceAllString(string(html), " "))
}

// ExtractTextFromPDF reads page text with the pdf reader and falls back to
// pdfcpu content extraction for files it cannot parse.
func ExtractTextFromPDF(b []byte) (string, error) {
	text, err := plainTextFromPDF(b)
	if err == nil && strings.TrimSpace(text) != "" {
		return ProcessText(text), nil
	}
	fallback, ferr := contentFromPDF(bytes.NewReader(b))
	if ferr != nil {
		if err != nil {
			return "", fmt.Errorf("error extracting text from PDF: %w", errors.Join(err, ferr))
		}
		return "", ferr
	}
	return ProcessText(fallback), nil
}

func plainTextFromPDF(b []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("error creating PDF reader: %w", err)
	}
	rd, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("error extracting plain text: %w", err)
	}
	out, err := io.ReadAll(rd)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func contentFromPDF(rs io.ReadSeeker) (string, error) {
	conf := model.NewDefaultConfiguration()

	dir, err := os.MkdirTemp("", "pdf-extract-")
	if err != nil {
		return "", fmt.Errorf("error creating temp directory: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := api.ExtractContent(rs, dir, "extracted", nil, conf); err != nil {
		return "", fmt.Errorf("error extracting content from PDF: %w", err)
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("error reading temp directory: %w", err)
	}
	var text strings.Builder
	for _, f := range files {
		if !strings.HasPrefix(f.Name(), "extracted") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			return "", fmt.Errorf("error reading extracted content from %s: %w", f.Name(), err)
		}
		text.WriteString(decodeContentStream(string(content)))
	}
	if text.Len() == 0 {
		return "", errors.New("no extracted content found")
	}
	return text.String(), nil
}

var hexRun = regexp.MustCompile(`<([0-9A-Fa-f]+)>`)

// decodeContentStream pulls hex-encoded strings out of a PDF content stream.
func decodeContentStream(content string) string {
	var text strings.Builder
	for _, m := range hexRun.FindAllStringSubmatch(content, -1) {
		text.WriteString(decodeHex(m[1]))
		text.WriteString(" ")
	}
	return text.String()
}

func decodeHex(s string) string {
	var text strings.Builder
	for i := 0; i+1 < len(s); i += 2 {
		c, err := strconv.ParseUint(s[i:i+2], 16, 8)
		if err == nil && unicode.IsPrint(rune(c)) {
			text.WriteRune(rune(c))
		}
	}
	return text.String()
}

func ExtractTextFromDOCX(b []byte) (string, error) {
	doc, err := document.Read(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("error opening DOCX: %w", err)
	}

	var text strings.Builder
	for _, para := range doc.Paragraphs() {
		for _, run := range para.Runs() {
			text.WriteString(run.Text())
		}
		text.WriteString("\n")
	}
	return ProcessText(text.String()), nil
}
