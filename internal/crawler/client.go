package crawler

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"sitecrawl/internal/models"
)

const (
	DefaultUserAgent    = "BootCrawler/1.0"
	DefaultTimeout      = 10 * time.Second
	DefaultDialTimeout  = 5 * time.Second
	DefaultMaxBodyBytes = 5 * 1024 * 1024
)

var (
	ErrUnexpectedStatus = errors.New("unexpected http status")
	ErrNonHTML          = errors.New("non-html content")
	ErrInvalidURL       = errors.New("invalid url")
)

// FetchError is the single failure type of the fetcher. StatusCode is zero
// when no response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %v %d", e.URL, e.Err, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ClientOptions configures an HTTPClient. Zero values take the defaults.
type ClientOptions struct {
	UserAgent    string
	Timeout      time.Duration
	DialTimeout  time.Duration
	MaxBodyBytes int64
	HTMLOnly     bool
}

type HTTPClient struct {
	client    *http.Client
	sizeCap   int64
	userAgent string
	htmlOnly  bool
}

func NewHTTPClient(opts ClientOptions) *HTTPClient {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		sizeCap:   opts.MaxBodyBytes,
		userAgent: opts.UserAgent,
		htmlOnly:  opts.HTMLOnly,
	}
}

// Fetch performs one GET of rawURL. Only a 200 response is a success; every
// other outcome is reported as a *FetchError. There are no retries.
func (h *HTTPClient) Fetch(ctx context.Context, rawURL string) (*models.Document, error) {
	start := time.Now()
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &FetchError{URL: rawURL, Err: ErrInvalidURL}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: ErrUnexpectedStatus}
	}

	contentType := resp.Header.Get("Content-Type")
	if h.htmlOnly {
		mediaType, _, _ := mime.ParseMediaType(contentType)
		// servers that omit the header still get through
		if mediaType != "" && !strings.Contains(mediaType, "text/html") && !strings.Contains(mediaType, "application/xhtml+xml") {
			return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: ErrNonHTML}
		}
	}

	body, err := h.readBody(resp)
	if err != nil {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}

	return &models.Document{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		ContentType: contentType,
		Body:        body,
		Elapsed:     time.Since(start),
	}, nil
}

// readBody decodes the content encoding and enforces the size cap by
// truncation.
func (h *HTTPClient) readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		r = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		r = fl
	case "br":
		r = brotli.NewReader(resp.Body)
	}

	body, err := io.ReadAll(io.LimitReader(r, h.sizeCap))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
