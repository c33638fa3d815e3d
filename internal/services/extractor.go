package services

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-evaluator-pipeline/internal/apperrors"
)

// DocumentExtractor turns an uploaded file into plain text.
type DocumentExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

type extractFunc func(path string) (string, error)

// FileExtractor picks a parser by file extension.
type FileExtractor struct {
	parsers map[string]extractFunc
	log     logrus.FieldLogger
}

func NewDocumentExtractor(log logrus.FieldLogger) *FileExtractor {
	return &FileExtractor{
		parsers: map[string]extractFunc{
			".pdf":  extractPDF,
			".docx": extractDocx,
			".doc":  extractDocx,
			".txt":  extractTxt,
		},
		log: log.WithField("component", "extractor"),
	}
}

// SupportedExtension reports whether files with ext (including the dot) can be extracted.
func SupportedExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".docx", ".doc", ".txt":
		return true
	}
	return false
}

// Extract implements DocumentExtractor.
func (e *FileExtractor) Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	parse, ok := e.parsers[ext]
	if !ok {
		return "", apperrors.Newf(apperrors.ErrCodeUnsupportedFormat, "unsupported file format: %s", ext)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrCodeExtractionFailed, "document parsing failed for %s", filepath.Base(path))
	}

	raw, err := parse(path)
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrCodeExtractionFailed, "document parsing failed for %s", filepath.Base(path))
	}

	text := CleanText(raw)
	if text == "" {
		return "", apperrors.Newf(apperrors.ErrCodeExtractionFailed, "no text content found in %s", filepath.Base(path))
	}

	e.log.WithFields(logrus.Fields{"file": filepath.Base(path), "chars": len(text)}).Debug("📄 Document extracted")
	return text, nil
}

func extractPDF(filePath string) (string, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var textBuilder strings.Builder
	totalPage := r.NumPage()

	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip unreadable pages; an entirely unreadable file ends up empty.
			continue
		}

		textBuilder.WriteString(text)
		textBuilder.WriteString("\n\n")
	}

	return textBuilder.String(), nil
}

func extractDocx(filePath string) (string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open DOCX: %w", err)
	}
	defer r.Close()

	return wordXMLText(r.Editable().GetContent())
}

// wordXMLText collects the w:t runs of a WordprocessingML body, one line per paragraph.
func wordXMLText(content string) (string, error) {
	decoder := xml.NewDecoder(strings.NewReader(content))

	var (
		sb     strings.Builder
		inText bool
	)

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read DOCX body: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteString("\t")
			case "br", "cr":
				sb.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}

	return sb.String(), nil
}

func extractTxt(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CleanText trims every line and drops blank ones.
func CleanText(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	lines := strings.Split(text, "\n")
	cleanedLines := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleanedLines = append(cleanedLines, line)
		}
	}

	return strings.Join(cleanedLines, "\n")
}
