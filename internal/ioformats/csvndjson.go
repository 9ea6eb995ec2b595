package ioformats

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"

	"sitecrawl/internal/models"
)

// ListSeparator joins the URL list columns of the CSV report.
const ListSeparator = "; "

var csvHeader = []string{"page_url", "h1", "first_paragraph", "outgoing_link_urls", "image_urls"}

// WriteCSV writes one row per record under the fixed report header.
func WriteCSV(w io.Writer, records []models.PageRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.URL,
			r.H1,
			r.FirstParagraph,
			strings.Join(r.OutgoingLinks, ListSeparator),
			strings.Join(r.ImageURLs, ListSeparator),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteNDJSON writes one JSON object per record.
func WriteNDJSON(w io.Writer, records []models.PageRecord) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
