package models

import "time"

// PageRecord is the data extracted from one crawled page.
type PageRecord struct {
	URL            string   `json:"url"`
	H1             string   `json:"h1"`
	FirstParagraph string   `json:"firstParagraph"`
	OutgoingLinks  []string `json:"outgoingLinks"`
	ImageURLs      []string `json:"imageUrls"`
}

// Document is a successfully fetched page body.
type Document struct {
	URL         string        `json:"url"`
	FinalURL    string        `json:"finalUrl"`
	ContentType string        `json:"contentType,omitempty"`
	Body        []byte        `json:"-"`
	Elapsed     time.Duration `json:"elapsed"`
}
