// Package ingest implements the offline document pipeline: extraction,
// chunking, embedding, and index building.
package ingest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kart-io/logger"
	"github.com/ledongthuc/pdf"
)

// Document is a named source and its full cleaned text. Documents are
// immutable after extraction.
type Document struct {
	Source string
	Text   string
}

// SourceSpec names a source document on disk.
type SourceSpec struct {
	// Source is the logical label, e.g. "country_requirements".
	Source string `json:"source" mapstructure:"source"`
	// Path is the file to extract, PDF or plain text.
	Path string `json:"path" mapstructure:"path"`
}

var (
	pageNumberRegex = regexp.MustCompile(`(?m)^\s*\d{1,3}\s*$`)
	blankLineRegex  = regexp.MustCompile(`(?m)^[ \t]+$`)
	multiNewline    = regexp.MustCompile(`\n{2,}`)
)

// CleanText normalizes extracted text: standalone page numbers removed,
// non-breaking spaces replaced, whitespace-only lines emptied, runs of
// newlines collapsed to one, outer whitespace trimmed.
func CleanText(text string) string {
	text = pageNumberRegex.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, " ", " ")
	text = blankLineRegex.ReplaceAllString(text, "")
	text = multiNewline.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

// ExtractFile extracts the cleaned text of a single file. PDFs go through
// the PDF text extractor; anything else is read as plain text.
func ExtractFile(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return extractPDF(path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return CleanText(string(content)), nil
}

// extractPDF pulls text blocks out of a PDF in reading order.
func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	plainText, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plainText); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}

	return CleanText(buf.String()), nil
}

// LoadDocuments extracts all sources in order. A missing or corrupt
// source is skipped with a warning so ingestion continues over the
// remaining sources.
func LoadDocuments(specs []SourceSpec) []Document {
	docs := make([]Document, 0, len(specs))
	for _, spec := range specs {
		text, err := ExtractFile(spec.Path)
		if err != nil {
			logger.Warnf("Skipping source %s (%s): %v", spec.Source, spec.Path, err)
			continue
		}
		if text == "" {
			logger.Warnf("Skipping source %s: no text extracted", spec.Source)
			continue
		}
		docs = append(docs, Document{Source: spec.Source, Text: text})
	}
	return docs
}
