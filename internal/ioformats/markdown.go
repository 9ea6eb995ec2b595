package ioformats

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"

	"sitecrawl/internal/models"
)

// WriteMarkdown renders the records as a single table.
func WriteMarkdown(w io.Writer, records []models.PageRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.URL,
			cell(r.H1),
			cell(r.FirstParagraph),
			strconv.Itoa(len(r.OutgoingLinks)),
			strconv.Itoa(len(r.ImageURLs)),
		})
	}

	md := markdown.NewMarkdown(w)
	md.H1("Crawl Report")
	md.PlainText("")
	md.PlainText("Pages crawled: " + strconv.Itoa(len(records)))
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Page URL", "H1", "First Paragraph", "Outgoing Links", "Images"},
		Rows:   rows,
	})
	return md.Build()
}

// cell keeps free text on one table line.
func cell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
