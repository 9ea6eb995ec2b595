package parser

import (
	"bytes"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"sitecrawl/internal/models"
	"sitecrawl/internal/urlnorm"
)

type Parser struct{}

func New() *Parser { return &Parser{} }

// Extract builds the PageRecord for body fetched from sourceURL. It never
// fails: markup it cannot make sense of yields empty fields.
func (p *Parser) Extract(body []byte, contentType, sourceURL string) models.PageRecord {
	rec := models.PageRecord{
		URL:           sourceURL,
		OutgoingLinks: []string{},
		ImageURLs:     []string{},
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(toUTF8(body, contentType)))
	if err != nil {
		return rec
	}

	rec.H1 = strings.TrimSpace(doc.Find("h1").First().Text())
	rec.FirstParagraph = firstParagraph(doc)
	rec.OutgoingLinks = collect(doc, "a[href]", "href", sourceURL)
	rec.ImageURLs = collect(doc, "img[src]", "src", sourceURL)
	return rec
}

// firstParagraph prefers the first <p> inside <main> over the first <p> of
// the page. A <main> without paragraphs yields "".
func firstParagraph(doc *goquery.Document) string {
	scope := doc.Selection
	if main := doc.Find("main").First(); main.Length() > 0 {
		scope = main
	}
	return strings.TrimSpace(scope.Find("p").First().Text())
}

// collect resolves attr of every node matching sel against base, then
// dedupes and sorts the results.
func collect(doc *goquery.Document, sel, attr, base string) []string {
	seen := map[string]struct{}{}
	doc.Find(sel).Each(func(i int, s *goquery.Selection) {
		raw, _ := s.Attr(attr)
		if abs, ok := urlnorm.Resolve(base, raw); ok {
			seen[abs] = struct{}{}
		}
	})

	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// toUTF8 decodes data using the charset declared in contentType or sniffed
// from the document; undecodable input is passed through unchanged.
func toUTF8(data []byte, contentType string) []byte {
	enc, _, _ := charset.DetermineEncoding(data, contentType)
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		if utf8.Valid(data) {
			return data
		}
		return bytes.ToValidUTF8(data, []byte("�"))
	}
	return out
}
