package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"sitecrawl/internal/config"
	"sitecrawl/internal/crawler"
	"sitecrawl/internal/ioformats"
	"sitecrawl/internal/models"
	"sitecrawl/internal/parser"
	"sitecrawl/pkg/logger"
)

// crawlReq is the body of POST /crawl. Zero bounds fall back to the
// configured crawl defaults.
type crawlReq struct {
	URL            string `json:"url"`
	MaxConcurrency int    `json:"max_concurrency"`
	MaxPages       int    `json:"max_pages"`
	Format         string `json:"format"`
}

type crawlResp struct {
	Count   int                 `json:"count"`
	Partial bool                `json:"partial,omitempty"`
	Pages   []models.PageRecord `json:"pages"`
}

func newMux(cfg *config.Config, l *logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	client := crawler.NewHTTPClient(cfg.ClientOptions())
	par := parser.New()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// POST /crawl  { "url": "https://...", "max_concurrency": 5, "max_pages": 50, "format": "json" }
	mux.HandleFunc("/crawl", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		var req crawlReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}

		var format ioformats.Format
		if f := strings.TrimSpace(req.Format); f != "" && !strings.EqualFold(f, "json") {
			parsed, err := ioformats.ParseFormat(f)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			format = parsed
		}

		bounds := cfg.CrawlerConfig(req.MaxConcurrency, req.MaxPages)
		if bounds.MaxPages > cfg.Server.MaxPagesLimit {
			bounds.MaxPages = cfg.Server.MaxPagesLimit
		}
		c, err := crawler.New(client, par, bounds, crawler.WithLogger(l))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.Server.RequestTimeout)
		defer cancel()

		pages, err := c.Crawl(ctx, req.URL)
		switch {
		case errors.Is(err, crawler.ErrInvalidStartURL):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		case errors.Is(r.Context().Err(), context.Canceled):
			// client went away
			return
		case err != nil:
			l.Warnf("crawl of %s cut short: %v", req.URL, err)
		}

		records := ioformats.Records(pages)
		if format == "" {
			writeJSON(w, http.StatusOK, crawlResp{Count: len(records), Partial: err != nil, Pages: records})
			return
		}
		w.Header().Set("Content-Type", format.ContentType())
		w.WriteHeader(http.StatusOK)
		if err := ioformats.Write(w, format, records); err != nil {
			l.Errorf("write %s response: %v", format, err)
		}
	})

	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
