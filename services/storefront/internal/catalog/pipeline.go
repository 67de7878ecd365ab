// Package catalog loads products for the browse page and derives the
// filtered, sorted list shown to the customer. Searches are debounced and
// fall back to a bundled dataset when the backend cannot be reached.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"heritagecoffee/pkg/domain"
	"heritagecoffee/services/storefront/internal/productclient"
)

var ErrProductNotFound = errors.New("product not found")

// ProductSource is the subset of the product client the pipeline reads.
type ProductSource interface {
	Search(ctx context.Context, params productclient.SearchParams) ([]domain.Product, error)
	Get(ctx context.Context, id int64) (domain.Product, error)
}

type Options struct {
	Products    ProductSource
	QuietPeriod time.Duration
	// AfterFunc replaces the wall-clock timer, mainly in tests.
	AfterFunc AfterFunc
	Logger    *slog.Logger
}

// View is what the browse page renders.
type View struct {
	Query         string
	Results       []domain.Product
	Count         int
	Degraded      bool
	Loading       bool
	Bounds        PriceRange
	Filters       Filters
	ActiveFilters int
	// LastError is the fetch failure behind a degraded result.
	LastError error
}

type memo struct {
	rawVersion    uint64
	filterVersion uint64
	results       []domain.Product
}

// Pipeline holds the latest committed results and the filter state.
type Pipeline struct {
	products ProductSource
	logger   *slog.Logger
	debounce *Debouncer[string]

	mu            sync.Mutex
	ctx           context.Context
	cancel        context.CancelFunc
	query         string
	raw           []domain.Product
	rawVersion    uint64
	degraded      bool
	lastErr       error
	issued        uint64
	loading       bool
	filters       Filters
	filterVersion uint64
	cache         *memo
	derivations   int
	listeners     map[int]func(View)
	nextID        int
	closed        bool

	loads sync.WaitGroup
}

func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		products:  opts.Products,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		filters:   Filters{Sort: SortDefault},
		listeners: make(map[int]func(View)),
	}
	p.debounce = NewDebouncer(opts.QuietPeriod, opts.AfterFunc, p.debouncedLoad)
	return p
}

// Start binds debounced loads to ctx.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancel()
	p.ctx, p.cancel = context.WithCancel(ctx)
}

// Close drops pending input and waits for debounced loads to finish.
func (p *Pipeline) Close() {
	p.debounce.Stop()
	p.mu.Lock()
	p.closed = true
	p.cancel()
	p.mu.Unlock()
	p.loads.Wait()
}

// SetQuery records new search input. The search runs once input has been
// quiet for the configured period.
func (p *Pipeline) SetQuery(text string) {
	p.debounce.Trigger(text)
}

func (p *Pipeline) debouncedLoad(text string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	// Add under mu so Close cannot reach Wait first.
	p.loads.Add(1)
	ctx := p.ctx
	p.mu.Unlock()
	defer p.loads.Done()
	if err := p.Load(ctx, text); err != nil {
		p.logger.Debug("debounced search abandoned", "query", text, "err", err)
	}
}

// Load searches the backend for text and commits the results unless a
// newer load was issued meanwhile. A failed search commits the matching
// part of the bundled dataset in degraded mode. Load only fails when ctx
// ends first.
func (p *Pipeline) Load(ctx context.Context, text string) error {
	p.mu.Lock()
	p.issued++
	seq := p.issued
	p.loading = true
	p.query = text
	p.mu.Unlock()
	p.notify()

	products, err := p.products.Search(ctx, productclient.SearchParams{Search: text})
	if ctxErr := ctx.Err(); ctxErr != nil {
		p.finishAbandoned(seq)
		return ctxErr
	}
	degraded := false
	if err != nil {
		p.logger.Warn("product search failed, using bundled catalogue", "query", text, "err", err)
		products = SearchDataset(text)
		degraded = true
	}
	enriched := Enrich(products)

	p.mu.Lock()
	if seq != p.issued {
		p.mu.Unlock()
		p.logger.Debug("discarding stale search results", "query", text, "seq", seq)
		return nil
	}
	p.raw = enriched
	p.rawVersion++
	p.degraded = degraded
	p.lastErr = err
	p.loading = false
	p.mu.Unlock()
	p.notify()
	return nil
}

func (p *Pipeline) finishAbandoned(seq uint64) {
	p.mu.Lock()
	if seq == p.issued {
		p.loading = false
	}
	p.mu.Unlock()
	p.notify()
}

// Filters returns the current filter state.
func (p *Pipeline) Filters() Filters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filters.clone()
}

// SetFilters replaces the filter state.
func (p *Pipeline) SetFilters(f Filters) {
	if f.Sort == "" {
		f.Sort = SortDefault
	}
	p.mu.Lock()
	p.filters = f.clone()
	p.filterVersion++
	p.mu.Unlock()
	p.notify()
}

// ResetFilters clears text, roast and profile selections, restores the
// full price bounds and the default order.
func (p *Pipeline) ResetFilters() {
	p.mu.Lock()
	bounds := PriceBounds(p.raw)
	p.filters = Filters{Price: &bounds, Sort: SortDefault}
	p.filterVersion++
	p.mu.Unlock()
	p.notify()
}

// View returns the derived results. Derivation reruns only when the
// committed results or the filters changed.
func (p *Pipeline) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewLocked()
}

func (p *Pipeline) viewLocked() View {
	if p.cache == nil || p.cache.rawVersion != p.rawVersion || p.cache.filterVersion != p.filterVersion {
		p.cache = &memo{
			rawVersion:    p.rawVersion,
			filterVersion: p.filterVersion,
			results:       Derive(p.raw, p.filters),
		}
		p.derivations++
	}
	bounds := PriceBounds(p.raw)
	return View{
		Query:         p.query,
		Results:       slices.Clone(p.cache.results),
		Count:         len(p.cache.results),
		Degraded:      p.degraded,
		Loading:       p.loading,
		Bounds:        bounds,
		Filters:       p.filters.clone(),
		ActiveFilters: ActiveFilterCount(p.filters, bounds),
		LastError:     p.lastErr,
	}
}

// Products returns the committed, enriched results before filtering.
func (p *Pipeline) Products() []domain.Product {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.raw)
}

// Product fetches one product. When the backend fails the bundled dataset
// is consulted and degraded is true.
func (p *Pipeline) Product(ctx context.Context, id int64) (product domain.Product, degraded bool, err error) {
	prod, err := p.products.Get(ctx, id)
	if err == nil {
		return Enrich([]domain.Product{prod})[0], false, nil
	}
	p.logger.Warn("product lookup failed, using bundled catalogue", "product_id", id, "err", err)
	if fallback, ok := DatasetProduct(id); ok {
		return fallback, true, nil
	}
	return domain.Product{}, true, fmt.Errorf("%w: %d", ErrProductNotFound, id)
}

// Suggestions returns related products for the detail page, drawn from the
// committed results or the bundled dataset when nothing is loaded.
func (p *Pipeline) Suggestions(currentID int64) []domain.Product {
	products := p.Products()
	if len(products) == 0 {
		products = Dataset()
	}
	return Related(currentID, products)
}

// Subscribe registers fn for every change of the view inputs.
func (p *Pipeline) Subscribe(fn func(View)) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *Pipeline) notify() {
	p.mu.Lock()
	if len(p.listeners) == 0 {
		p.mu.Unlock()
		return
	}
	view := p.viewLocked()
	fns := make([]func(View), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(view)
	}
}
