// Package ioformats writes crawl results as reports.
package ioformats

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"sitecrawl/internal/models"
)

type Format string

const (
	FormatCSV      Format = "csv"
	FormatNDJSON   Format = "ndjson"
	FormatMarkdown Format = "markdown"
)

var ErrUnknownFormat = errors.New("unknown report format")

// ErrNoData is returned by WriteFile when there is nothing to report.
var ErrNoData = errors.New("no data to write")

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatNDJSON, FormatMarkdown:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	case "jsonl":
		return FormatNDJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType is the HTTP media type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatNDJSON:
		return "application/x-ndjson"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Records orders the crawl result by normalized key so reports are stable.
func Records(pages map[string]models.PageRecord) []models.PageRecord {
	keys := make([]string, 0, len(pages))
	for k := range pages {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]models.PageRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, pages[k])
	}
	return out
}

func Write(w io.Writer, f Format, records []models.PageRecord) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, records)
	case FormatNDJSON:
		return WriteNDJSON(w, records)
	case FormatMarkdown:
		return WriteMarkdown(w, records)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// WriteFile writes the report for pages to path. An empty result writes no
// file and returns ErrNoData.
func WriteFile(path string, f Format, pages map[string]models.PageRecord) error {
	if len(pages) == 0 {
		return ErrNoData
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := Write(file, f, Records(pages)); err != nil {
		file.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return file.Close()
}
