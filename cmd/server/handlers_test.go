package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitecrawl/internal/config"
	"sitecrawl/pkg/logger"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<h1>Home</h1><p>Hi</p><a href="/a">a</a><a href="/b">b</a>`)
		case "/a":
			fmt.Fprint(w, `<h1>A</h1>`)
		case "/b":
			fmt.Fprint(w, `<h1>B</h1>`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAPI(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	api := httptest.NewServer(newMux(cfg, logger.Nop()))
	t.Cleanup(api.Close)
	return api
}

func postCrawl(t *testing.T, api *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(api.URL+"/crawl", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	api := newAPI(t, config.Default())
	resp, err := http.Get(api.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCrawl_JSON(t *testing.T) {
	site := newSite(t)
	api := newAPI(t, config.Default())

	resp := postCrawl(t, api, fmt.Sprintf(`{"url":%q,"max_concurrency":2,"max_pages":10}`, site.URL))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out crawlResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 3, out.Count)
	require.Len(t, out.Pages, 3)
	assert.False(t, out.Partial)
	assert.Equal(t, "Home", out.Pages[0].H1)
}

func TestCrawl_ClampsMaxPages(t *testing.T) {
	site := newSite(t)
	cfg := config.Default()
	cfg.Server.MaxPagesLimit = 1
	api := newAPI(t, cfg)

	resp := postCrawl(t, api, fmt.Sprintf(`{"url":%q,"max_concurrency":2,"max_pages":100}`, site.URL))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out crawlResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 1, out.Count)
}

func TestCrawl_CSVFormat(t *testing.T) {
	site := newSite(t)
	api := newAPI(t, config.Default())

	resp := postCrawl(t, api, fmt.Sprintf(`{"url":%q,"max_pages":10,"format":"csv"}`, site.URL))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(body)), "\n"), 4)
}

func TestCrawl_BadRequests(t *testing.T) {
	api := newAPI(t, config.Default())

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing url", `{"max_pages":3}`},
		{"negative pages", `{"url":"https://example.com","max_pages":-1}`},
		{"negative concurrency", `{"url":"https://example.com","max_concurrency":-2}`},
		{"unknown format", `{"url":"https://example.com","format":"xml"}`},
		{"no host", `{"url":"/just/a/path"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := postCrawl(t, api, tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestCrawl_MethodNotAllowed(t *testing.T) {
	api := newAPI(t, config.Default())
	resp, err := http.Get(api.URL + "/crawl")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
