package crawler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"sitecrawl/internal/models"
	"sitecrawl/internal/urlnorm"
	"sitecrawl/pkg/logger"
)

var (
	ErrInvalidConcurrency = errors.New("max concurrency must be a positive integer")
	ErrInvalidMaxPages    = errors.New("max pages must be a positive integer")
	ErrInvalidStartURL    = errors.New("start url must be absolute with a host")
)

// Fetcher retrieves one URL. Any error means no page for that URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*models.Document, error)
}

// Extractor turns a fetched body into a PageRecord without failing.
type Extractor interface {
	Extract(body []byte, contentType, sourceURL string) models.PageRecord
}

// Config bounds a crawl.
type Config struct {
	MaxConcurrency int
	MaxPages       int
}

func (c Config) Validate() error {
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidConcurrency, c.MaxConcurrency)
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxPages, c.MaxPages)
	}
	return nil
}

type Option func(*Crawler)

func WithLogger(l *logger.Logger) Option {
	return func(c *Crawler) { c.log = l }
}

// WithObserver registers fn to be called once for every recorded page.
// fn is called from many goroutines at once.
func WithObserver(fn func(key string, rec models.PageRecord)) Option {
	return func(c *Crawler) { c.observer = fn }
}

// Crawler walks a single site from a start URL, keeping at most
// MaxConcurrency fetches in flight and recording at most MaxPages pages.
type Crawler struct {
	fetcher   Fetcher
	extractor Extractor
	cfg       Config
	log       *logger.Logger
	observer  func(string, models.PageRecord)
}

func New(f Fetcher, e Extractor, cfg Config, opts ...Option) (*Crawler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Crawler{
		fetcher:   f,
		extractor: e,
		cfg:       cfg,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Crawl visits startURL and every same-site page reachable from it until
// the site is exhausted or the page budget is spent. The result maps each
// normalized URL to its record. Pages that fail to fetch are left out; an
// empty map is a valid result. If ctx is cancelled the pages recorded so
// far are returned together with ctx.Err().
func (c *Crawler) Crawl(ctx context.Context, startURL string) (map[string]models.PageRecord, error) {
	baseKey := urlnorm.Normalize(startURL)
	if !urlnorm.Absolute(startURL) || baseKey == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStartURL, startURL)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := newState(c.cfg.MaxPages, cancel)
	defer context.AfterFunc(runCtx, st.halt)()

	r := &run{
		Crawler: c,
		parent:  ctx,
		ctx:     runCtx,
		baseKey: baseKey,
		sem:     semaphore.NewWeighted(int64(c.cfg.MaxConcurrency)),
		state:   st,
		log:     c.log.With("run", uuid.NewString()),
	}

	r.log.Infof("starting crawl of %s (concurrency=%d, max pages=%d)", startURL, c.cfg.MaxConcurrency, c.cfg.MaxPages)
	r.visit(startURL)

	sum := st.snapshot()
	r.log.Infof("crawl finished: %d pages recorded, %d failed fetches, %d skipped, budget reached=%t",
		sum.recorded, sum.failed, sum.skipped, sum.stopped)

	return r.state.visited, ctx.Err()
}

// run holds everything scoped to one Crawl call.
type run struct {
	*Crawler
	parent  context.Context // caller context, used for the fetch itself
	ctx     context.Context // cancelled once the budget is spent
	baseKey string
	sem     *semaphore.Weighted
	state   *state
	log     *logger.Logger
}

// visit is one work unit. It returns only after every unit it spawned has
// returned.
func (r *run) visit(rawURL string) {
	if r.ctx.Err() != nil {
		return
	}
	key := urlnorm.Normalize(rawURL)
	if r.state.admit(key) != admitted {
		return
	}

	rec, more, ok := r.fetch(rawURL, key)
	if !ok {
		return
	}
	if r.observer != nil {
		r.observer(key, rec)
	}
	if more {
		r.spawn(rec)
	}
}

// fetch holds a limiter slot for the fetch, the extraction and the
// recording, and nothing else.
func (r *run) fetch(rawURL, key string) (rec models.PageRecord, more, ok bool) {
	if err := r.sem.Acquire(r.ctx, 1); err != nil {
		r.state.release(false)
		return rec, false, false
	}
	defer r.sem.Release(1)

	r.log.Debugf("crawling: %s", rawURL)
	doc, err := r.fetcher.Fetch(r.parent, rawURL)
	if err != nil {
		r.state.release(true)
		r.log.Warnf("skipping %s: %v", rawURL, err)
		return rec, false, false
	}
	r.log.Debugf("fetched %s in %s (%d bytes)", rawURL, doc.Elapsed, len(doc.Body))

	rec = r.extractor.Extract(doc.Body, doc.ContentType, rawURL)
	more = r.state.record(key, rec)
	return rec, more, true
}

// spawn starts a unit for every same-site link of rec and waits for all of
// them.
func (r *run) spawn(rec models.PageRecord) {
	var g errgroup.Group
	for _, link := range rec.OutgoingLinks {
		if r.ctx.Err() != nil {
			break
		}
		if !urlnorm.SameSite(r.baseKey, link) {
			continue
		}
		g.Go(func() error {
			r.visit(link)
			return nil
		})
	}
	_ = g.Wait()
}
