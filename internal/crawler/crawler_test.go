package crawler

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitecrawl/internal/models"
	"sitecrawl/internal/parser"
	"sitecrawl/internal/urlnorm"
	"sitecrawl/pkg/logger"
)

// fakeSite serves HTML from memory, looked up by normalized key, and counts
// fetches per key.
type fakeSite struct {
	pages map[string]string
	delay time.Duration

	mu     sync.Mutex
	counts map[string]int

	inFlight atomic.Int32
	peak     atomic.Int32
}

func newFakeSite(pages map[string]string) *fakeSite {
	byKey := make(map[string]string, len(pages))
	for u, body := range pages {
		byKey[urlnorm.Normalize(u)] = body
	}
	return &fakeSite{pages: byKey, counts: map[string]int{}}
}

func (f *fakeSite) Fetch(ctx context.Context, rawURL string) (*models.Document, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	key := urlnorm.Normalize(rawURL)
	f.mu.Lock()
	f.counts[key]++
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	body, ok := f.pages[key]
	if !ok {
		return nil, &FetchError{URL: rawURL, StatusCode: 404, Err: ErrUnexpectedStatus}
	}
	return &models.Document{URL: rawURL, FinalURL: rawURL, ContentType: "text/html", Body: []byte(body)}, nil
}

func (f *fakeSite) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[key]
}

func (f *fakeSite) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.counts {
		n += c
	}
	return n
}

func (f *fakeSite) maxPerKey() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := 0
	for _, c := range f.counts {
		m = max(m, c)
	}
	return m
}

func page(links ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><h1>Title</h1><p>Para</p>")
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">x</a>`, l)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func crawl(t *testing.T, site Fetcher, start string, concurrency, maxPages int) map[string]models.PageRecord {
	t.Helper()
	c, err := New(site, parser.New(), Config{MaxConcurrency: concurrency, MaxPages: maxPages})
	require.NoError(t, err)
	got, err := c.Crawl(context.Background(), start)
	require.NoError(t, err)
	return got
}

func keys(m map[string]models.PageRecord) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestCrawlSinglePage(t *testing.T) {
	site := newFakeSite(map[string]string{
		"https://example.com": "<html><body><h1>Solo</h1></body></html>",
	})

	got := crawl(t, site, "https://example.com", 3, 5)

	require.Len(t, got, 1)
	rec := got["example.com"]
	assert.Equal(t, "https://example.com", rec.URL)
	assert.Equal(t, "Solo", rec.H1)
	assert.Empty(t, rec.OutgoingLinks)
	assert.Empty(t, rec.ImageURLs)
}

func TestCrawlFollowsSameSiteLinks(t *testing.T) {
	site := newFakeSite(map[string]string{
		"https://example.com/p":   page("/p/q", "/p/r"),
		"https://example.com/p/q": page(),
		"https://example.com/p/r": page(),
	})

	got := crawl(t, site, "https://example.com/p", 2, 10)

	assert.ElementsMatch(t, []string{"example.com/p", "example.com/p/q", "example.com/p/r"}, keys(got))
}

func TestCrawlBudgetStopsMidFanout(t *testing.T) {
	site := newFakeSite(map[string]string{
		"https://example.com/p":   page("/p/q", "/p/r"),
		"https://example.com/p/q": page(),
		"https://example.com/p/r": page(),
	})

	got := crawl(t, site, "https://example.com/p", 4, 2)

	require.Len(t, got, 2)
	assert.Contains(t, got, "example.com/p")
	_, q := got["example.com/p/q"]
	_, r := got["example.com/p/r"]
	assert.True(t, q != r, "exactly one of q and r must win the last slot")
}

func TestCrawlRefillsSlotAfterFailure(t *testing.T) {
	// the failing link may hold the last slot while its siblings wait for it
	for i := 0; i < 20; i++ {
		site := newFakeSite(map[string]string{
			"https://example.com":   page("/a-missing", "/b", "/c"),
			"https://example.com/b": page(),
			"https://example.com/c": page(),
		})
		site.delay = 5 * time.Millisecond

		got := crawl(t, site, "https://example.com", 4, 3)

		require.ElementsMatch(t, []string{"example.com", "example.com/b", "example.com/c"}, keys(got), "run %d", i)
		assert.LessOrEqual(t, site.count("example.com/a-missing"), 1)
	}
}

func TestCrawlBudgetWithFailuresStillFills(t *testing.T) {
	pages := map[string]string{}
	var links []string
	for i := 0; i < 12; i++ {
		links = append(links, fmt.Sprintf("/gone%d", i), fmt.Sprintf("/ok%d", i))
		pages[fmt.Sprintf("https://example.com/ok%d", i)] = page()
	}
	pages["https://example.com"] = page(links...)

	for _, budget := range []int{2, 5, 10} {
		t.Run(fmt.Sprintf("budget=%d", budget), func(t *testing.T) {
			site := newFakeSite(pages)
			site.delay = time.Millisecond

			got := crawl(t, site, "https://example.com", 3, budget)

			assert.Len(t, got, budget)
			assert.Equal(t, 1, site.maxPerKey())
		})
	}
}

func TestCrawlIgnoresExternalLinks(t *testing.T) {
	site := newFakeSite(map[string]string{
		"https://example.com":   page("https://other.org/x", "/q"),
		"https://example.com/q": page(),
		"https://other.org/x":   page(),
	})

	got := crawl(t, site, "https://example.com", 2, 10)

	assert.ElementsMatch(t, []string{"example.com", "example.com/q"}, keys(got))
	assert.Zero(t, site.count("other.org/x"))
}

func TestCrawlStartURLFails(t *testing.T) {
	site := newFakeSite(map[string]string{})

	got := crawl(t, site, "https://example.com", 2, 10)

	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCrawlSkipsFailedPages(t *testing.T) {
	site := newFakeSite(map[string]string{
		"https://example.com":    page("/missing", "/ok"),
		"https://example.com/ok": page(),
	})

	got := crawl(t, site, "https://example.com", 2, 10)

	assert.ElementsMatch(t, []string{"example.com", "example.com/ok"}, keys(got))
}

func TestCrawlNeverFetchesTwice(t *testing.T) {
	site := newFakeSite(map[string]string{
		"https://example.com":   page("/a", "/a/", "/A", "/b?x=1", "/b?x=2", "/"),
		"https://example.com/a": page("/b", "https://example.com", "/a#frag"),
		"https://example.com/b": page("/a"),
	})
	site.delay = time.Millisecond

	got := crawl(t, site, "https://example.com", 8, 50)

	assert.Equal(t, 1, site.maxPerKey())
	assert.ElementsMatch(t, []string{"example.com", "example.com/a", "example.com/b"}, keys(got))
}

// wideSite is a two-level tree: the root links to n sections, each of which
// links to n leaves.
func wideSite(n int) map[string]string {
	pages := map[string]string{}
	var sections []string
	for i := 0; i < n; i++ {
		sec := fmt.Sprintf("/s%d", i)
		sections = append(sections, sec)
		var leaves []string
		for j := 0; j < n; j++ {
			leaf := fmt.Sprintf("%s/l%d", sec, j)
			leaves = append(leaves, leaf, "/") // back-links to the root
			pages["https://example.com"+leaf] = page("/", sec)
		}
		pages["https://example.com"+sec] = page(leaves...)
	}
	pages["https://example.com"] = page(sections...)
	return pages
}

func TestCrawlNeverExceedsBudget(t *testing.T) {
	for _, budget := range []int{1, 2, 3, 7, 15, 40} {
		t.Run(fmt.Sprintf("budget=%d", budget), func(t *testing.T) {
			site := newFakeSite(wideSite(6))
			site.delay = time.Millisecond

			got := crawl(t, site, "https://example.com", 5, budget)

			assert.Len(t, got, budget)
			assert.Equal(t, 1, site.maxPerKey())
			// nothing beyond the budget is fetched when every fetch succeeds
			assert.Equal(t, budget, site.total())
			for k := range got {
				assert.True(t, strings.HasPrefix(k, "example.com"), k)
			}
		})
	}
}

func TestCrawlExhaustsSite(t *testing.T) {
	pages := wideSite(4)
	site := newFakeSite(pages)

	got := crawl(t, site, "https://example.com", 3, 1000)

	assert.Len(t, got, len(pages))
	assert.Equal(t, len(pages), site.total())
}

func TestCrawlRespectsConcurrency(t *testing.T) {
	for _, limit := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			site := newFakeSite(wideSite(5))
			site.delay = 2 * time.Millisecond

			crawl(t, site, "https://example.com", limit, 100)

			assert.LessOrEqual(t, int(site.peak.Load()), limit)
		})
	}
}

func TestCrawlRecordsUnderNormalizedKeys(t *testing.T) {
	site := newFakeSite(map[string]string{
		"https://Example.com/Docs/":      page("guide"),
		"https://Example.com/Docs/guide": page(),
	})

	got := crawl(t, site, "https://Example.com/Docs/", 2, 10)

	require.Contains(t, got, "example.com/docs")
	assert.Equal(t, "https://Example.com/Docs/", got["example.com/docs"].URL)
	assert.Contains(t, got, "example.com/docs/guide")
	for k := range got {
		assert.Equal(t, k, urlnorm.Normalize(got[k].URL))
	}
}

func TestCrawlObserver(t *testing.T) {
	site := newFakeSite(wideSite(3))
	var seen sync.Map
	var calls atomic.Int32

	c, err := New(site, parser.New(), Config{MaxConcurrency: 3, MaxPages: 8},
		WithObserver(func(key string, rec models.PageRecord) {
			calls.Add(1)
			seen.Store(key, rec.URL)
		}))
	require.NoError(t, err)

	got, err := c.Crawl(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, len(got), int(calls.Load()))
	for k := range got {
		_, ok := seen.Load(k)
		assert.True(t, ok, k)
	}
}

func TestCrawlCallerCancellation(t *testing.T) {
	site := newFakeSite(wideSite(6))
	site.delay = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	c, err := New(site, parser.New(), Config{MaxConcurrency: 2, MaxPages: 1000},
		WithObserver(func(string, models.PageRecord) { cancel() }))
	require.NoError(t, err)

	got, err := c.Crawl(ctx, "https://example.com")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, got, 1)
}

func TestCrawlLogsFetchTiming(t *testing.T) {
	site := newFakeSite(map[string]string{"https://example.com": page()})
	var buf bytes.Buffer
	log, err := logger.NewWithConfig(logger.Config{Level: "debug", Console: &buf, NoColor: true})
	require.NoError(t, err)

	c, err := New(site, parser.New(), Config{MaxConcurrency: 1, MaxPages: 1}, WithLogger(log))
	require.NoError(t, err)
	_, err = c.Crawl(context.Background(), "https://example.com")
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "fetched https://example.com in")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	site := newFakeSite(nil)

	_, err := New(site, parser.New(), Config{MaxConcurrency: 0, MaxPages: 5})
	assert.ErrorIs(t, err, ErrInvalidConcurrency)

	_, err = New(site, parser.New(), Config{MaxConcurrency: 2, MaxPages: -1})
	assert.ErrorIs(t, err, ErrInvalidMaxPages)
}

func TestCrawlRejectsStartURLWithoutHost(t *testing.T) {
	site := newFakeSite(nil)
	c, err := New(site, parser.New(), Config{MaxConcurrency: 1, MaxPages: 1})
	require.NoError(t, err)

	for _, start := range []string{"", "/relative/path", "example.com"} {
		_, err := c.Crawl(context.Background(), start)
		assert.ErrorIs(t, err, ErrInvalidStartURL, start)
	}
	assert.Zero(t, site.total())
}
