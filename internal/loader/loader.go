// Package loader turns uploaded or local files into documents.
package loader

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/ledongthuc/pdf"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// Metadata keys set on every loaded document.
const (
	MetaSource   = "source"
	MetaFilename = "filename"
	MetaFormat   = "format"
)

// Formats.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatPDF      = "pdf"
)

// DefaultMaxBytes caps a single file.
const DefaultMaxBytes = 32 << 20

var formats = map[string]string{
	".txt":      FormatText,
	".text":     FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".pdf":      FormatPDF,
}

// FormatOf returns the format for a file name, or "" when unsupported.
func FormatOf(name string) string {
	return formats[strings.ToLower(filepath.Ext(name))]
}

// LoadFile reads a document from the local file system.
func LoadFile(path string) (domain.Document, error) {
	f, err := os.Open(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return domain.Document{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := Load(path, f, DefaultMaxBytes)
	if err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// Load reads a document named name from r. The format is picked by the file
// extension; unknown extensions fail with domain.ErrUnsupportedFormat.
func Load(name string, r io.Reader, maxBytes int64) (domain.Document, error) {
	format := FormatOf(name)
	if format == "" {
		return domain.Document{}, fmt.Errorf("%s: %w", filepath.Base(name), domain.ErrUnsupportedFormat)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return domain.Document{}, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > maxBytes {
		return domain.Document{}, fmt.Errorf("%s exceeds %d bytes: %w", name, maxBytes, domain.ErrInvalidInput)
	}

	var content string
	switch format {
	case FormatText, FormatMarkdown:
		content, err = decodeText(data)
	case FormatHTML:
		content, err = htmlToMarkdown(data)
	case FormatPDF:
		content, err = pdfText(data)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("load %s: %w", name, err)
	}

	return domain.Document{
		Content: content,
		Metadata: map[string]string{
			MetaSource:   name,
			MetaFilename: filepath.Base(name),
			MetaFormat:   format,
		},
	}, nil
}

func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", fmt.Errorf("not valid UTF-8: %w", domain.ErrInvalidInput)
	}
	return string(data), nil
}

func htmlToMarkdown(data []byte) (string, error) {
	if _, err := decodeText(data); err != nil {
		return "", err
	}
	md, err := htmltomarkdown.ConvertString(string(data))
	if err != nil {
		return "", fmt.Errorf("convert html: %w", domain.ErrInvalidInput)
	}
	return strings.TrimSpace(md), nil
}

func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w: %w", domain.ErrInvalidInput, err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w: %w", domain.ErrInvalidInput, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
